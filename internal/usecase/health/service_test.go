package health

import (
	"context"
	"errors"
	"testing"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		db, emb   CheckFunc
		want      Status
		wantEmb   CheckResult
		skipEmbed bool
	}{
		{name: "all healthy", db: ok, emb: ok, want: Healthy, wantEmb: CheckOK},
		{name: "optional down", db: ok, emb: failing, want: Degraded, wantEmb: CheckError},
		{name: "required down", db: failing, emb: ok, want: Unhealthy, wantEmb: CheckOK},
		{name: "both down", db: failing, emb: failing, want: Unhealthy, wantEmb: CheckError},
		{name: "no embedding", db: ok, want: Healthy, skipEmbed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New().Require("database", tt.db)
			if !tt.skipEmbed {
				svc.Optional("embedding", tt.emb)
			}
			r := svc.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("status = %q, want %q", r.Status, tt.want)
			}
			if tt.skipEmbed {
				if _, ok := r.Checks["embedding"]; ok {
					t.Error("unregistered component must not be reported")
				}
				return
			}
			if r.Checks["embedding"] != tt.wantEmb {
				t.Errorf("embedding = %q, want %q", r.Checks["embedding"], tt.wantEmb)
			}
		})
	}
}

func TestCheck_Empty(t *testing.T) {
	if r := New().Check(context.Background()); r.Status != Healthy || len(r.Checks) != 0 {
		t.Errorf("report = %+v", r)
	}
}

func TestCheck_RespectsTimeout(t *testing.T) {
	svc := New().Require("database", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	svc.timeout = 1
	if r := svc.Check(context.Background()); r.Status != Unhealthy {
		t.Errorf("status = %q", r.Status)
	}
}
