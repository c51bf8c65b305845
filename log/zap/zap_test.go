package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/rescache"
)

func TestLoggerWritesLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", rescache.Fields{"connection": "c1"})
	l.Warn("w", rescache.Fields{"b": 2, "a": 1})
	l.Error("e", rescache.Fields{"err": errors.New("boom")})

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("entries = %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level = %v", i, e.Level)
		}
	}
	if got := entries[1].ContextMap()["connection"]; got != "c1" {
		t.Fatalf("connection field = %v", got)
	}
	if ctx := entries[2].Context; ctx[0].Key != "a" || ctx[1].Key != "b" {
		t.Fatalf("fields not ordered: %v", ctx)
	}
	if got := entries[3].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err field = %v", got)
	}
}

func TestNewNilIsSilent(t *testing.T) {
	New(nil).Error("nothing", rescache.Fields{"k": "v"})
}
