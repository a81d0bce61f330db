package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		env   string
		debug bool
		info  bool
	}{
		{"debug", "development", true, true},
		{"info", "production", false, true},
		{"warn", "", false, false},
		{"nonsense", "", false, true},
	}
	for _, tt := range tests {
		l, err := New(tt.level, tt.env)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.level, tt.env, err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.debug {
			t.Errorf("New(%q) debug enabled = %v, want %v", tt.level, got, tt.debug)
		}
		if got := l.Core().Enabled(zapcore.InfoLevel); got != tt.info {
			t.Errorf("New(%q) info enabled = %v, want %v", tt.level, got, tt.info)
		}
	}
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewExample()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("empty context should return fallback")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Error("empty context without fallback should return a no-op logger")
	}
	reqLogger := zap.NewExample().With(zap.String("request_id", "r-1"))
	ctx := WithLogger(context.Background(), reqLogger)
	if got := FromContext(ctx, fallback); got != reqLogger {
		t.Error("FromContext should return the logger stored in ctx")
	}
}
