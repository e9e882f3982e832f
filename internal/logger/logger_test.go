package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "returns empty when limit non-positive", input: "hello world", limit: 0, expect: ""},
		{name: "shorter than limit", input: "hello", limit: 10, expect: "hello"},
		{name: "truncates and adds ellipsis", input: "hello world", limit: 5, expect: "hello..."},
		{name: "trims surrounding whitespace", input: "  spaced  ", limit: 5, expect: "space..."},
		{name: "counts runes not bytes", input: "привет мир", limit: 6, expect: "привет..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		json, debug bool
		level       zapcore.Level
	}{
		{json: false, debug: false, level: zapcore.InfoLevel},
		{json: true, debug: true, level: zapcore.DebugLevel},
	} {
		log, err := New(tc.json, tc.debug)
		if err != nil {
			t.Fatalf("New(%v, %v): %v", tc.json, tc.debug, err)
		}
		if !log.Core().Enabled(tc.level) {
			t.Fatalf("expected level %s to be enabled", tc.level)
		}
		if tc.level == zapcore.InfoLevel && log.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("debug must be disabled without the debug flag")
		}
	}
}

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	WithFields(log, zap.String("foo", "bar")).Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["foo"]; got != "bar" {
		t.Fatalf("expected field to be bar, got %q", got)
	}

	fallback := WithFields(nil, zap.String("baz", "qux"))
	if fallback == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
	fallback.Info("another log")
}

func TestMatchFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := WithFields(zap.New(core), MatchFields("0123456789abcdef0123", "cv-1", "")...)
	log = WithCommonFields(log, "gemini", "")
	log.Info("match")

	ctx := observed.All()[0].ContextMap()
	if ctx[FieldCacheKey] != "0123456789ab" {
		t.Fatalf("expected shortened cache key, got %q", ctx[FieldCacheKey])
	}
	if ctx[FieldCVID] != "cv-1" {
		t.Fatalf("expected cv id, got %q", ctx[FieldCVID])
	}
	if _, ok := ctx[FieldJobID]; ok {
		t.Fatalf("empty job id must be omitted")
	}
	if ctx[FieldProvider] != "gemini" {
		t.Fatalf("expected provider field, got %q", ctx[FieldProvider])
	}
	if _, ok := ctx[FieldModel]; ok {
		t.Fatalf("empty model must be omitted")
	}
}
