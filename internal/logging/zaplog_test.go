package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsAreSortedAndErrorsNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer Configure("info")

	Info("ingest_once", map[string]any{"count": 3, "batch": "b1"})
	Error("ingest_event_error", map[string]any{"error": errors.New("boom")})
	Debug("noisy", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["count"] != int64(3) || ctx["batch"] != "b1" {
		t.Fatalf("unexpected fields: %v", ctx)
	}
	if got := entries[0].Context[0].Key; got != "batch" {
		t.Fatalf("fields should be sorted, first key %q", got)
	}
	if entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("error field not rendered: %v", entries[1].ContextMap())
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if parseLevel("nonsense") != zapcore.InfoLevel {
		t.Fatal("expected info fallback")
	}
	if parseLevel(" DEBUG ") != zapcore.DebugLevel {
		t.Fatal("expected debug")
	}
}
