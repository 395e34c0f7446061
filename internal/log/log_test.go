package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Info("hidden")
	Warn("shown", "path", "dogadjaji.json")
	Error("failed", errors.New("disk full"), "index", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "path=dogadjaji.json")
	assert.Contains(t, out, `err="disk full"`)
	assert.Contains(t, out, "index=3")
}

func TestStdAdapterLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelInfo)
	Std{}.Printf("endpoint %s", "sendMessage")
	assert.Empty(t, buf.String())

	SetLevel(LevelDebug)
	Std{}.Println("endpoint", "sendMessage")
	assert.Contains(t, buf.String(), `msg="endpoint sendMessage"`)
}
