package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestOrDefault(t *testing.T) {
	own := zap.NewExample()
	if got := OrDefault(own, "link"); got != own {
		t.Error("OrDefault() should return the provided logger")
	}
	if got := OrDefault(nil, "link"); got == nil {
		t.Error("OrDefault(nil) returned nil")
	}
}

func TestLogFrame(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogFrame(l, "tx", 7, []byte{0x01, 0x07, 0x00, 0x01})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["direction"] != "tx" {
		t.Errorf("direction = %v, want tx", fields["direction"])
	}
	if fields["hex"] != "01070001" {
		t.Errorf("hex = %v, want 01070001", fields["hex"])
	}
}

func TestLogFrameSkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	LogFrame(zap.New(core), "rx", 1, []byte{0xFF})

	if logs.Len() != 0 {
		t.Errorf("got %d entries at info level, want 0", logs.Len())
	}
}

func TestAsciiDump(t *testing.T) {
	if got := asciiDump([]byte("ok\x00\x7e")); got != "ok.~" {
		t.Errorf("asciiDump() = %q, want %q", got, "ok.~")
	}
}
