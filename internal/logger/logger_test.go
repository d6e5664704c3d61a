package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env     string
		level   string
		wantErr bool
		debug   bool
	}{
		{env: "prod", debug: false},
		{env: "local", debug: true},
		{env: "prod", level: "debug", debug: true},
		{env: "local", level: "warn", debug: false},
		{env: "staging", wantErr: true},
		{env: "prod", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
		})
	}
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a nop logger")
	}
}

func TestWith_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))

	ctx = With(ctx, zap.String("tenant", "acme"))
	FromContext(ctx).Info("Search executed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].ContextMap()["tenant"] != "acme" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
	if With(ctx) != ctx {
		t.Error("no fields must return the same context")
	}
}
