package fedsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbRedis "github.com/kailas-cloud/fedsearch/internal/db/redis"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/repository/catalog"
	"github.com/kailas-cloud/fedsearch/internal/repository/memory"
	prefsrepo "github.com/kailas-cloud/fedsearch/internal/repository/prefs"
	"github.com/kailas-cloud/fedsearch/internal/repository/records"
	"github.com/kailas-cloud/fedsearch/internal/repository/seed"
	"github.com/kailas-cloud/fedsearch/internal/repository/semantic"
	sbrepo "github.com/kailas-cloud/fedsearch/internal/repository/sidebuffer"
	"github.com/kailas-cloud/fedsearch/internal/usecase/cursor"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "fedsearch:"
	defaultMaxK             = 1000
)

var recordTypes = []resource.BackendType{
	resource.Typed, resource.ArchiveView, resource.ArchiveLegacy, resource.FederatedOnlyFilter,
}

// Internal interfaces, swapped for fakes in tests.
type searchUseCase interface {
	Execute(ctx context.Context, req request.Request) (*searchuc.ResultSet, error)
}

type sideBufferUseCase interface {
	PutAside(ctx context.Context, rs *searchuc.ResultSet, lifetimeSec int, id string) (string, error)
	Reintegrate(ctx context.Context, id string) *searchuc.ResultSet
}

type cursorUseCase interface {
	Open(ctx context.Context, resourceID string, expr filter.Expression, sort []sorting.Key) (*cursor.Cursor, error)
	Rebuild(resourceID string, data []byte) (*cursor.Cursor, error)
}

type preferenceStore interface {
	searchuc.Preferences
	SetPreferredPageSize(ctx context.Context, tenant, user string, n int) error
}

type resourceCatalog interface {
	Resource(id string) (resource.Descriptor, error)
	Field(resourceID, name string) (field.Descriptor, bool)
}

// Client is the fedsearch SDK entry point.
type Client struct {
	catalog    resourceCatalog
	searchSvc  searchUseCase
	sideBuffer sideBufferUseCase
	cursorSvc  cursorUseCase
	prefs      preferenceStore
	healthSvc  healthUseCase
	obs        *observer
	stop       func()
}

// New loads the catalog, connects the configured backend and starts the side
// buffer sweeper. The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{driver: "memory", prefix: defaultKeyPrefix}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.defaultPageSize <= 0 {
		cfg.defaultPageSize = searchuc.DefaultPageSize
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	health := healthuc.New()
	var w wiring
	switch cfg.driver {
	case "memory":
		w, err = memoryWiring(cfg, cat)
	case "redis":
		w, err = redisWiring(ctx, cfg, cat, health)
	default:
		err = fmt.Errorf("fedsearch: unknown driver %q", cfg.driver)
	}
	if err != nil {
		return nil, err
	}

	searchSvc := searchuc.New(w.byType, cat, w.loader, w.prefs, searchuc.Config{
		DefaultPageSize: cfg.defaultPageSize,
		MaxPageSize:     cfg.maxPageSize,
		MaxHits:         cfg.maxHits,
	})
	sb := sidebuffer.New(w.sbStore, searchSvc, cfg.maxLifetimeSec, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	go sb.Run(runCtx, cfg.sweepInterval)

	return &Client{
		catalog:    cat,
		searchSvc:  searchSvc,
		sideBuffer: sb,
		cursorSvc:  cursor.New(w.keys, w.loader, 0),
		prefs:      w.prefs,
		healthSvc:  health,
		obs:        obs,
		stop: func() {
			cancel()
			w.close()
		},
	}, nil
}

func loadCatalog(cfg *clientConfig) (*catalog.Catalog, error) {
	switch {
	case cfg.catalogYAML != nil:
		cat, err := catalog.Parse(cfg.catalogYAML)
		if err != nil {
			return nil, fmt.Errorf("fedsearch: %w", err)
		}
		return cat, nil
	case cfg.catalogPath != "":
		cat, err := catalog.Load(cfg.catalogPath)
		if err != nil {
			return nil, fmt.Errorf("fedsearch: %w", err)
		}
		return cat, nil
	default:
		return nil, errors.New("fedsearch: catalog required (use WithCatalogFile or WithCatalogYAML)")
	}
}

// wiring is the set of stores a driver provides.
type wiring struct {
	byType  map[resource.BackendType]searchuc.Backend
	loader  searchuc.RecordLoader
	keys    cursor.KeyLister
	prefs   preferenceStore
	sbStore sidebuffer.ExpiringStore
	close   func()
}

func memoryWiring(cfg *clientConfig, cat *catalog.Catalog) (wiring, error) {
	mem := memory.New()
	if cfg.seedYAML != nil {
		recs, err := seed.Parse(cfg.seedYAML, cat)
		if err != nil {
			return wiring{}, fmt.Errorf("fedsearch: %w", err)
		}
		mem.Put(recs...)
	}
	byType := make(map[resource.BackendType]searchuc.Backend, len(recordTypes)+1)
	for _, t := range recordTypes {
		byType[t] = mem
	}
	byType[resource.FederatedStore] = mem
	return wiring{
		byType:  byType,
		loader:  mem,
		keys:    mem,
		prefs:   memory.NewPreferences(),
		sbStore: sbrepo.NewArena(),
		close:   func() {},
	}, nil
}

func redisWiring(ctx context.Context, cfg *clientConfig, cat *catalog.Catalog, health *healthuc.Service) (wiring, error) {
	if len(cfg.addrs) == 0 {
		return wiring{}, errors.New("fedsearch: database address required (use WithRedis)")
	}
	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
	if err != nil {
		return wiring{}, fmt.Errorf("fedsearch: create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return wiring{}, fmt.Errorf("fedsearch: database not ready: %w", err)
	}
	health.Require("database", healthuc.CheckFunc(store.Ping))

	var emb domain.Embedder
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
	}
	recs := records.New(store, cat, cfg.prefix)
	sem := semantic.New(store, cat, emb, cfg.prefix, cfg.dimensions, defaultMaxK)
	if err := recs.EnsureIndexes(ctx, cat.Resources()); err != nil {
		store.Close()
		return wiring{}, fmt.Errorf("fedsearch: record indexes: %w", err)
	}
	if err := sem.EnsureIndexes(ctx, cat.Resources()); err != nil {
		store.Close()
		return wiring{}, fmt.Errorf("fedsearch: semantic indexes: %w", err)
	}

	codec, err := sbrepo.NewCodec(cfg.compress)
	if err != nil {
		store.Close()
		return wiring{}, fmt.Errorf("fedsearch: side buffer codec: %w", err)
	}

	byType := make(map[resource.BackendType]searchuc.Backend, len(recordTypes)+1)
	for _, t := range recordTypes {
		byType[t] = recs
	}
	byType[resource.FederatedStore] = sem
	return wiring{
		byType:  byType,
		loader:  recs,
		keys:    recs,
		prefs:   prefsrepo.New(store, cfg.prefix),
		sbStore: sbrepo.NewRedis(store, codec, cfg.prefix),
		close:   store.Close,
	}, nil
}

// Close stops the sweeper and releases the backend connection.
func (c *Client) Close() {
	if c.stop != nil {
		c.stop()
	}
}

// SetPageSize stores the preferred page size of the context's caller, used by
// queries that leave PageSize at 0. 0 clears the preference.
func (c *Client) SetPageSize(ctx context.Context, n int) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("set_page_size", start, err) }()

	who := domain.IdentityFromContext(ctx)
	if who.User == "" {
		return fmt.Errorf("%w: caller identity has no user", domain.ErrInvalidRequest)
	}
	return c.prefs.SetPreferredPageSize(ctx, who.Tenant, who.User, n)
}

// WithIdentity returns a context carrying the caller identity. Put-aside result
// sets can only be picked up by the tenant that stored them, unless elevated.
func WithIdentity(ctx context.Context, tenant, user string, elevated bool) context.Context {
	return domain.ContextWithIdentity(ctx, domain.Identity{Tenant: tenant, User: user, Elevated: elevated})
}
