package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	appLog "officeplanner/internal/log"
)

// EmailConfig holds the AWS SES settings for e-mail reminders.
type EmailConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
	To              []string
}

// sesAPI is the part of *ses.Client this package uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Email sends each notification as a plain-text message through SES.
type Email struct {
	client sesAPI
	from   string
	to     []string
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("email: from and to are required")
	}
	if cfg.Region == "" {
		return nil, errors.New("email: region is required")
	}
	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}
	return &Email{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.From,
		to:     cfg.To,
	}, nil
}

func (e *Email) Notify(ctx context.Context, msg Message) error {
	source := e.from
	if msg.AppName != "" {
		source = fmt.Sprintf("%s <%s>", msg.AppName, e.from)
	}
	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: e.to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}
	out, err := e.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("email: send via SES: %w", err)
	}
	appLog.Debug("email notification sent", "message_id", aws.ToString(out.MessageId))
	return nil
}
