package sidebuffer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// --- Mocks ---

type mapStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	err     error
}

func newMapStore() *mapStore { return &mapStore{entries: make(map[string]Entry)} }

func (m *mapStore) Insert(_ context.Context, e Entry, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if old, ok := m.entries[e.ID]; ok && now.Before(old.ExpiresAt) {
		return false, nil
	}
	m.entries[e.ID] = e
	return true, nil
}

func (m *mapStore) Take(_ context.Context, id string, who domain.Identity, now time.Time) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	if !now.Before(e.ExpiresAt) {
		delete(m.entries, id)
		return nil, nil
	}
	if e.Tenant != who.Tenant || (!who.Elevated && e.User != who.User) {
		return nil, nil
	}
	delete(m.entries, id)
	return &e, nil
}

func (m *mapStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

type staticBackend struct {
	rows []search.SubRow
}

func (b *staticBackend) ExecuteSubQuery(_ context.Context, q search.SubQuery) search.SubResult {
	lo := min(q.Offset, len(b.rows))
	hi := min(lo+q.Limit, len(b.rows))
	return search.SubResult{Rows: b.rows[lo:hi], Total: len(b.rows), Done: hi == len(b.rows)}
}

type noCatalog struct{}

func (noCatalog) Fields(string) ([]field.Descriptor, bool) { return nil, false }
func (noCatalog) Hitlist(string, string) ([]string, bool)  { return nil, false }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- Fixtures ---

func newEngine(t *testing.T, n int) *search.Service {
	t.Helper()
	b := &staticBackend{}
	for i := range n {
		b.rows = append(b.rows, search.SubRow{
			Key:    string(rune('a' + i)),
			Fields: map[string]value.Value{"title": value.Str("t")},
		})
	}
	return search.New(
		map[resource.BackendType]search.Backend{resource.Typed: b},
		noCatalog{}, nil, nil, search.Config{},
	)
}

func execute(ctx context.Context, t *testing.T, eng *search.Service, pageSize int) *search.ResultSet {
	t.Helper()
	r, err := resource.New("ftOrder", resource.Typed, "")
	if err != nil {
		t.Fatal(err)
	}
	spec, err := hitlist.ExplicitSpec("title")
	if err != nil {
		t.Fatal(err)
	}
	expr, _ := filter.NewExpression(nil, nil, nil)
	req, err := request.New([]resource.Descriptor{r}, "", nil, expr, []sorting.Key(nil), spec,
		request.Options{PageSize: pageSize})
	if err != nil {
		t.Fatal(err)
	}
	rs, err := eng.Execute(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func as(tenant, user string, elevated bool) context.Context {
	return domain.ContextWithIdentity(context.Background(),
		domain.Identity{Tenant: tenant, User: user, Elevated: elevated})
}

func setup(t *testing.T) (*Service, *search.Service, *mapStore, *fakeClock) {
	t.Helper()
	eng := newEngine(t, 5)
	store := newMapStore()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(store, eng, 0, clock.now), eng, store, clock
}

// --- Tests ---

func TestPutAside_DetachesOriginal(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)
	rs := execute(ctx, t, eng, 2)

	id, err := svc.PutAside(ctx, rs, 60, "")
	if err != nil || id == "" {
		t.Fatalf("PutAside = %q, %v", id, err)
	}
	if _, err := rs.Loaded(); !errors.Is(err, domain.ErrDetached) {
		t.Errorf("original handle after put aside: %v", err)
	}

	back := svc.Reintegrate(ctx, id)
	if back == nil {
		t.Fatal("expected reintegrated result set")
	}
	if n, _ := back.Loaded(); n != 2 {
		t.Errorf("Loaded = %d, want 2", n)
	}
	if ok, _ := back.FetchNextPage(ctx); !ok {
		t.Error("paging must continue after reintegration")
	}
}

func TestPutAside_InvalidLifetime(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)
	rs := execute(ctx, t, eng, 0)

	for _, life := range []int{0, -1, MaxLifetimeSeconds + 1} {
		if _, err := svc.PutAside(ctx, rs, life, ""); !errors.Is(err, domain.ErrInvalidLifetime) {
			t.Errorf("lifetime %d: %v", life, err)
		}
	}
	if _, err := rs.Loaded(); err != nil {
		t.Errorf("rejected put aside must not detach: %v", err)
	}
}

func TestPutAside_InvalidID(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)
	rs := execute(ctx, t, eng, 0)

	for _, id := range []string{MandatoryMarker, "has space", strings.Repeat("x", MaxIDLength+1)} {
		if _, err := svc.PutAside(ctx, rs, 60, id); !errors.Is(err, domain.ErrInvalidID) {
			t.Errorf("id %q: %v", id, err)
		}
	}
}

func TestPutAside_MandatoryCollision(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)

	id, err := svc.PutAside(ctx, execute(ctx, t, eng, 0), 60, "!X")
	if err != nil || id != "X" {
		t.Fatalf("first put aside = %q, %v", id, err)
	}

	second := execute(ctx, t, eng, 0)
	id, err = svc.PutAside(ctx, second, 60, "!X")
	if err != nil || id != "" {
		t.Fatalf("colliding mandatory id = %q, %v; want empty", id, err)
	}
	if _, err := second.Loaded(); err != nil {
		t.Errorf("failed put aside must leave the handle usable: %v", err)
	}
}

func TestPutAside_PreferredCollision(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)

	first, _ := svc.PutAside(ctx, execute(ctx, t, eng, 0), 60, "X")
	second, err := svc.PutAside(ctx, execute(ctx, t, eng, 0), 60, "X")
	if err != nil {
		t.Fatal(err)
	}
	if first != "X" || second == "X" || !strings.HasPrefix(second, "X-") {
		t.Fatalf("ids = %q, %q", first, second)
	}
	if svc.Reintegrate(ctx, first) == nil || svc.Reintegrate(ctx, second) == nil {
		t.Error("both entries must be retrievable")
	}
}

func TestReintegrate_SingleConsumption(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := as("acme", "alice", false)
	id, _ := svc.PutAside(ctx, execute(ctx, t, eng, 0), 60, "")

	if svc.Reintegrate(ctx, id) == nil {
		t.Fatal("first reintegrate must hit")
	}
	if svc.Reintegrate(ctx, id) != nil {
		t.Error("second reintegrate must miss")
	}
}

func TestReintegrate_Expiry(t *testing.T) {
	svc, eng, store, clock := setup(t)
	ctx := as("acme", "alice", false)
	id, _ := svc.PutAside(ctx, execute(ctx, t, eng, 0), 10, "")

	clock.advance(11 * time.Second)
	if svc.Reintegrate(ctx, id) != nil {
		t.Error("expired entry must miss")
	}
	if len(store.entries) != 0 {
		t.Error("expired entry should be reclaimed on access")
	}
}

func TestReintegrate_Ownership(t *testing.T) {
	svc, eng, _, _ := setup(t)
	owner := as("acme", "alice", false)
	id, _ := svc.PutAside(owner, execute(owner, t, eng, 0), 60, "")

	if svc.Reintegrate(as("acme", "bob", false), id) != nil {
		t.Error("another user must miss")
	}
	if svc.Reintegrate(as("other", "alice", true), id) != nil {
		t.Error("elevated mode never bypasses the tenant")
	}
	if svc.Reintegrate(as("acme", "bob", true), id) == nil {
		t.Error("elevated mode bypasses the user check")
	}
}

func TestClaim_ReturnsOwner(t *testing.T) {
	svc, eng, _, _ := setup(t)
	owner := as("acme", "alice", false)
	id, _ := svc.PutAside(owner, execute(owner, t, eng, 0), 60, "")

	rs, who := svc.Claim(as("acme", "bob", true), id)
	if rs == nil {
		t.Fatal("elevated claim must hit")
	}
	if who.Tenant != "acme" || who.User != "alice" || who.Elevated {
		t.Errorf("owner = %+v, want acme/alice", who)
	}

	if rs, who := svc.Claim(owner, id); rs != nil || who != (domain.Identity{}) {
		t.Errorf("second claim = %v, %+v; want miss", rs, who)
	}
}

func TestValidateLifetime(t *testing.T) {
	svc := New(newMapStore(), nil, 300, nil)
	for _, life := range []int{1, 300} {
		if err := svc.ValidateLifetime(life); err != nil {
			t.Errorf("lifetime %d: %v", life, err)
		}
	}
	for _, life := range []int{0, -5, 301} {
		if err := svc.ValidateLifetime(life); !errors.Is(err, domain.ErrInvalidLifetime) {
			t.Errorf("lifetime %d: %v, want ErrInvalidLifetime", life, err)
		}
	}
}

func TestReintegrate_StoreErrorIsMiss(t *testing.T) {
	svc, _, store, _ := setup(t)
	store.err = errors.New("connection refused")
	if svc.Reintegrate(as("acme", "alice", false), "X") != nil {
		t.Error("store failure must surface as a miss")
	}
	if svc.Reintegrate(as("acme", "alice", false), "") != nil {
		t.Error("empty id must miss")
	}
}

func TestSweep(t *testing.T) {
	svc, eng, store, clock := setup(t)
	ctx := as("acme", "alice", false)
	_, _ = svc.PutAside(ctx, execute(ctx, t, eng, 0), 10, "short")
	_, _ = svc.PutAside(ctx, execute(ctx, t, eng, 0), 100, "long")

	clock.advance(30 * time.Second)
	n, err := svc.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if _, ok := store.entries["long"]; !ok {
		t.Error("unexpired entry must survive the sweep")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
