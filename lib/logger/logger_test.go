package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("Stored", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, NewConfig())
		ctx := AddToContext(context.Background(), log)

		got := FromContext(ctx)
		require.Same(t, log, got)

		got.InfoContext(ctx, "hello", "k", "v")
		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "k=v")
	})
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Config{Level: slog.LevelWarn, Format: "json"})

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestTee(t *testing.T) {
	var text, js bytes.Buffer
	textH := slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelInfo})
	jsonH := slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelWarn})

	t.Run("Single", func(t *testing.T) {
		assert.Equal(t, slog.Handler(textH), Tee(nil, textH))
	})

	log := slog.New(Tee(textH, jsonH)).With("build", "b1")
	log.Info("step")
	log.Warn("slow")

	assert.Contains(t, text.String(), "msg=step")
	assert.Contains(t, text.String(), "msg=slow")
	assert.Contains(t, text.String(), "build=b1")
	assert.NotContains(t, js.String(), "step")
	assert.Contains(t, js.String(), `"msg":"slow"`)
	assert.Contains(t, js.String(), `"build":"b1"`)
}
