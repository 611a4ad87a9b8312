package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level string
		dev   bool
		want  zapcore.Level
	}{
		{"info", false, zapcore.InfoLevel},
		{"debug", true, zapcore.DebugLevel},
		{"warn", false, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		logger, err := New(tt.level, tt.dev)
		if err != nil {
			t.Fatalf("New(%s) failed: %v", tt.level, err)
		}
		if !logger.Core().Enabled(tt.want) {
			t.Errorf("Expected %s enabled", tt.want)
		}
		if tt.want > zapcore.DebugLevel && logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("Expected debug disabled at %s", tt.level)
		}
	}
}

func TestNewBadLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Error("Expected error for unknown level")
	}
}
