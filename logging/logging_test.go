package logging_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/4thel00z/memcore/logging"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		level      string
		debugShown bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"bogus", false}, // falls back to info
	}
	for _, tc := range cases {
		buf := &bytes.Buffer{}
		logger := logging.New(tc.level, buf)
		logger.Debug("debug probe")
		if got := bytes.Contains(buf.Bytes(), []byte("debug probe")); got != tc.debugShown {
			t.Errorf("level %q: debug shown = %v, want %v", tc.level, got, tc.debugShown)
		}
	}
}

func TestNewWritesMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)
	logger.Info("hello there", "key", "value")
	if !bytes.Contains(buf.Bytes(), []byte("hello there")) {
		t.Errorf("output missing message: %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)

	ctx := logging.With(context.Background(), logger)
	if logging.From(ctx) != logger {
		t.Error("From did not return the attached logger")
	}
	if logging.From(context.Background()) != logging.Default() {
		t.Error("From without attachment must fall back to the default")
	}
}
