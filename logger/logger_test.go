package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"wheel-screener/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LogConfig
		level zapcore.Level
	}{
		{"debug json", config.LogConfig{Level: "DEBUG", Encoding: "json"}, zapcore.DebugLevel},
		{"console warn", config.LogConfig{Level: "warn", Encoding: "console"}, zapcore.WarnLevel},
		{"unknown level", config.LogConfig{Level: "chatty"}, zapcore.InfoLevel},
		{"sampled", config.LogConfig{Level: "error", Sampling: true}, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !log.Core().Enabled(tt.level) {
				t.Errorf("level %s should be enabled", tt.level)
			}
			if tt.level > zapcore.DebugLevel && log.Core().Enabled(tt.level-1) {
				t.Errorf("level %s should be disabled", tt.level-1)
			}
		})
	}
}
