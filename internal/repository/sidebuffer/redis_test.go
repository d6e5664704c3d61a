package sidebuffer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
)

type evalCall struct {
	script string
	keys   []string
	args   []string
}

type mockScriptStore struct {
	calls   []evalCall
	intFn   func(args []string) (int64, error)
	bytesFn func(args []string) ([]byte, error)
}

func (m *mockScriptStore) EvalInt(_ context.Context, script string, keys, args []string) (int64, error) {
	m.calls = append(m.calls, evalCall{script, keys, args})
	if m.intFn != nil {
		return m.intFn(args)
	}
	return 1, nil
}

func (m *mockScriptStore) EvalBytes(_ context.Context, script string, keys, args []string) ([]byte, error) {
	m.calls = append(m.calls, evalCall{script, keys, args})
	if m.bytesFn != nil {
		return m.bytesFn(args)
	}
	return nil, db.ErrKeyNotFound
}

func newTestRedis(t *testing.T, compress bool) (*Redis, *mockScriptStore) {
	t.Helper()
	codec, err := NewCodec(compress)
	if err != nil {
		t.Fatal(err)
	}
	ss := &mockScriptStore{}
	return NewRedis(ss, codec, "fedsearch:"), ss
}

func TestRedis_InsertArgs(t *testing.T) {
	r, ss := newTestRedis(t, true)
	ok, err := r.Insert(context.Background(), entry("rs1", "acme", "alice", time.Minute), t0)
	if err != nil || !ok {
		t.Fatalf("Insert = %v, %v", ok, err)
	}
	c := ss.calls[0]
	if c.script != insertScript || c.keys[0] != "fedsearch:sb:rs1" {
		t.Errorf("call = %+v", c)
	}
	if c.args[0] != ms(t0) || c.args[1] != "acme" || c.args[2] != "alice" || c.args[3] != ms(t0.Add(time.Minute)) {
		t.Errorf("args = %v", c.args[:4])
	}
	if !strings.HasPrefix(c.args[4], string(zstdMagic)) {
		t.Error("payload must be zstd compressed")
	}
}

func TestRedis_InsertCollision(t *testing.T) {
	r, ss := newTestRedis(t, false)
	ss.intFn = func([]string) (int64, error) { return 0, nil }
	ok, err := r.Insert(context.Background(), entry("rs1", "acme", "alice", time.Minute), t0)
	if err != nil || ok {
		t.Errorf("Insert = %v, %v", ok, err)
	}
}

func TestRedis_TakeRoundTrip(t *testing.T) {
	r, ss := newTestRedis(t, true)
	var stored string
	ss.intFn = func(args []string) (int64, error) {
		stored = args[4]
		return 1, nil
	}
	ss.bytesFn = func(args []string) ([]byte, error) {
		if args[1] != "acme" || args[2] != "ops" || args[3] != "1" {
			t.Errorf("take args = %v", args)
		}
		return []byte(stored), nil
	}
	ctx := context.Background()
	r.Insert(ctx, entry("rs1", "acme", "alice", time.Minute), t0)

	got, err := r.Take(ctx, "rs1", domain.Identity{Tenant: "acme", User: "ops", Elevated: true}, t0)
	if err != nil || got == nil {
		t.Fatalf("Take = %v, %v", got, err)
	}
	if got.User != "alice" || got.Payload.PageSize != 10 || !got.ExpiresAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("entry = %+v", got)
	}
}

func TestRedis_TakeMissAndError(t *testing.T) {
	r, ss := newTestRedis(t, false)
	owner := domain.Identity{Tenant: "acme", User: "alice"}

	got, err := r.Take(context.Background(), "gone", owner, t0)
	if got != nil || err != nil {
		t.Errorf("miss = %v, %v", got, err)
	}

	ss.bytesFn = func([]string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpEval, Err: errors.New("NOSCRIPT")}
	}
	if _, err := r.Take(context.Background(), "rs1", owner, t0); err == nil {
		t.Error("store errors must surface")
	}
}

func TestCodec_ReadsBothForms(t *testing.T) {
	plain, _ := NewCodec(false)
	packed, _ := NewCodec(true)
	e := entry("rs1", "acme", "alice", time.Minute)

	raw, err := plain.Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := packed.Decode(raw)
	if err != nil || got.ID != "rs1" {
		t.Fatalf("plain via packed codec: %v, %v", got, err)
	}

	if _, err := plain.Decode([]byte(`{"id":"x"}`)); err == nil {
		t.Error("entry without snapshot must be rejected")
	}
}
