package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newSlogTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newSlogTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "scan attempt", "attempt", 1)
	log.Info(ctx, "annotation saved", "id", "a1")
	log.Warn(ctx, "peer unreachable", "peer", "wss://relay.example.net")
	log.Error(ctx, "store ack timeout", "node", "annotations_example_com")

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		attr  string
	}{
		{"DEBUG", "\"scan attempt\"", "attempt=1"},
		{"INFO", "\"annotation saved\"", "id=a1"},
		{"WARN", "\"peer unreachable\"", "peer=wss://relay.example.net"},
		{"ERROR", "\"store ack timeout\"", "node=annotations_example_com"},
	}

	for _, tc := range tests {
		assert.Contains(t, out, "level="+tc.level)
		assert.Contains(t, out, "msg="+tc.msg)
		assert.Contains(t, out, tc.attr)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newSlogTestLogger(t)
	ctx := context.Background()

	child := log.With("component", "peers", "client_id", "3f2a")
	child.Info(ctx, "registered", "ttl", "10m")

	out := buf.String()
	for _, want := range []string{
		"level=INFO",
		"msg=registered",
		"component=peers",
		"client_id=3f2a",
		"ttl=10m",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_ContextDoesNotPanic(t *testing.T) {
	log, _ := newSlogTestLogger(t)

	ctx := context.TODO()
	log.Debug(ctx, "ctx-ok")
	log.Info(ctx, "ctx-ok")
	log.Warn(ctx, "ctx-ok")
	log.Error(ctx, "ctx-ok")
}
