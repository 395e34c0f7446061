package ics

import (
	"context"
	"errors"
	"time"

	"officeplanner/internal/event"
	appLog "officeplanner/internal/log"
)

// Sink receives imported events. *store.Store satisfies it.
type Sink interface {
	Get(id string) (event.Event, bool)
	Add(ev event.Event) (event.Event, error)
}

// ImportOptions bounds an import.
type ImportOptions struct {
	Now                time.Time
	HorizonDays        int
	DefaultLeadMinutes int
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Added int
	// Existing counts occurrences already present from an earlier import.
	Existing int
	// Skipped counts occurrences that could not become events.
	Skipped int
	// Truncated lists UIDs whose recurrence hit the expansion cap.
	Truncated []string
}

// Import reads the calendar at location, expands it over
// [Now, Now+HorizonDays] and adds every occurrence not yet in sink.
// Occurrence ids are derived from UID and start, so re-importing the same
// calendar only adds what is new.
func Import(ctx context.Context, f *Fetcher, location string, sink Sink, opts ImportOptions) (ImportResult, error) {
	var res ImportResult

	body, err := f.Read(ctx, location)
	if err != nil {
		return res, err
	}
	name := location
	if IsURL(location) {
		name = redactURL(location)
	}
	parsed, err := ParseICS(name, body)
	if err != nil {
		return res, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	horizon := opts.HorizonDays
	if horizon <= 0 {
		return res, errors.New("import horizon must be positive")
	}

	expanded, err := ExpandEvents(parsed, ExpandConfig{
		RangeStart:         now,
		RangeEnd:           now.AddDate(0, 0, horizon),
		DefaultLeadMinutes: opts.DefaultLeadMinutes,
	})
	if err != nil {
		return res, err
	}
	res.Skipped = expanded.Skipped
	res.Truncated = expanded.TruncatedEvents

	for _, ev := range expanded.Events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, ok := sink.Get(ev.ID); ok {
			res.Existing++
			continue
		}
		if _, err := sink.Add(ev); err != nil {
			appLog.Warn("ics import: skipping occurrence", "title", ev.Title, "err", err)
			res.Skipped++
			continue
		}
		res.Added++
	}

	appLog.Info("ics import completed",
		"source", name,
		"added", res.Added,
		"existing", res.Existing,
		"skipped", res.Skipped,
	)
	return res, nil
}
