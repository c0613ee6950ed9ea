package logger

import (
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name:   "default config",
			config: DefaultConfig(),
		},
		{
			name:   "debug config",
			config: DebugConfig(),
		},
		{
			name:        "invalid level",
			config:      &Config{Level: "loud", Format: TextFormat, Output: StderrOutput},
			expectError: true,
		},
		{
			name:        "invalid format",
			config:      &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput},
			expectError: true,
		},
		{
			name:        "file output without path",
			config:      &Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput},
			expectError: true,
		},
		{
			name:        "invalid output",
			config:      &Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Output: StderrOutput})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected a logger instance")
	}

	// Derived loggers share the entry but must not be nil.
	if log.WithComponent("test") == nil {
		t.Error("WithComponent returned nil")
	}
	if log.WithFields(Fields{"a": 1, "b": "two"}) == nil {
		t.Error("WithFields returned nil")
	}

	if _, err := NewLogger(&Config{Level: "loud", Format: TextFormat, Output: StderrOutput}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(original) })

	replacement, err := NewLogger(DebugConfig())
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	SetGlobalLogger(replacement)
	if GetGlobalLogger() != replacement {
		t.Error("expected the global logger to be replaced")
	}
}
