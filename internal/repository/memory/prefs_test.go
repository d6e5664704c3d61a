package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences()

	if n, err := p.PreferredPageSize(ctx, "acme", "alice"); n != 0 || err != nil {
		t.Fatalf("empty = %d, %v", n, err)
	}
	if err := p.SetPreferredPageSize(ctx, "acme", "alice", 25); err != nil {
		t.Fatal(err)
	}
	if n, _ := p.PreferredPageSize(ctx, "acme", "alice"); n != 25 {
		t.Errorf("alice = %d, want 25", n)
	}
	if n, _ := p.PreferredPageSize(ctx, "globex", "alice"); n != 0 {
		t.Errorf("other tenant = %d, want 0", n)
	}

	if err := p.SetPreferredPageSize(ctx, "acme", "alice", -1); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
	if err := p.SetPreferredPageSize(ctx, "acme", "alice", 0); err != nil {
		t.Fatal(err)
	}
	if n, _ := p.PreferredPageSize(ctx, "acme", "alice"); n != 0 {
		t.Errorf("cleared = %d, want 0", n)
	}
}
