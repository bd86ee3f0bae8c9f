package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		if err != nil {
			t.Fatalf("parseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := parseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	for _, json := range []bool{true, false} {
		log, err := New("debug", json)
		if err != nil {
			t.Fatalf("New(json=%v) error: %v", json, err)
		}
		if !log.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("New(json=%v) should enable debug", json)
		}
	}

	if _, err := New("nope", false); err == nil {
		t.Error("expected error for invalid level")
	}
}
