package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_NormalizesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	logger.Warn("save failed", "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "err=boom")
	assert.NotContains(t, out, "error=")
}

func TestNewWithWriter_MasksPhones(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{"info masks", slog.LevelInfo, "phone=*******0001"},
		{"debug keeps", slog.LevelDebug, "phone=15550000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf, tt.level).Info("reply resolved", "phone", "15550000001")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, slog.LevelWarn).Info("hidden")
	assert.Empty(t, buf.String())
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "****5678", MaskPhone("12345678"))
	assert.Equal(t, "1234", MaskPhone("1234"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestNewNop(t *testing.T) {
	assert.False(t, NewNop().Enabled(context.Background(), slog.LevelError))
}
