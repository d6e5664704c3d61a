package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// Engine defaults.
const (
	DefaultFetchSize = 200
	DefaultPageSize  = 50
)

// Config holds the engine limits.
type Config struct {
	// DefaultPageSize applies to requests asking for the preferred page size when none is stored.
	DefaultPageSize int
	// MaxPageSize caps requested and preferred page sizes. 0 disables the cap.
	MaxPageSize int
	// FetchSize is the per-resource batch size when a result set loads everything at once.
	FetchSize int
	// MaxHits caps loaded rows unless the request allows an override. 0 disables the cap.
	MaxHits int
	// MaxColumnLength truncates string values unless the request asks for full length. 0 disables.
	MaxColumnLength int
}

// Service executes federated searches.
type Service struct {
	backends map[resource.BackendType]Backend
	catalog  hitlist.Catalog
	loader   RecordLoader
	prefs    Preferences
	hooks    []Hook
	cfg      Config
}

// New creates a search service. prefs may be nil.
func New(
	backends map[resource.BackendType]Backend,
	catalog hitlist.Catalog,
	loader RecordLoader,
	prefs Preferences,
	cfg Config,
	hooks ...Hook,
) *Service {
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = DefaultFetchSize
	}
	if cfg.DefaultPageSize < 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	return &Service{
		backends: backends,
		catalog:  catalog,
		loader:   loader,
		prefs:    prefs,
		hooks:    hooks,
		cfg:      cfg,
	}
}

// Execute runs hooks, resolves columns and loads the first page (or everything for
// page size 0). Backend failures never fail the call; they surface through the
// result set's Status. Only malformed requests and hook cancellations return an error.
func (s *Service) Execute(ctx context.Context, req request.Request) (*ResultSet, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	qc := newQueryContext(req)
	for _, h := range s.hooks {
		if err := h(ctx, qc); err != nil {
			if errors.Is(err, domain.ErrSearchCancelled) {
				log.Info("Search cancelled by hook", zap.Error(err))
				observe("cancelled", start)
				return nil, err
			}
			observe("invalid", start)
			return nil, fmt.Errorf("pre-search hook: %w", err)
		}
	}

	final, err := qc.request()
	if err != nil {
		observe("invalid", start)
		return nil, fmt.Errorf("hooked request: %w", err)
	}

	cols, warn, err := hitlist.Resolve(final.Resources(), final.Hitlist(), s.catalog)
	if err != nil {
		observe("invalid", start)
		return nil, fmt.Errorf("%w: %w: %w", domain.ErrInvalidRequest, domain.ErrHitlistConflict, err)
	}

	expr, err := final.EffectiveFilter()
	if err != nil {
		observe("invalid", start)
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	rs := s.newResultSet(ctx, final, cols, expr)
	rs.pageSize = s.pageSize(ctx, &final)
	rs.fetchSize = s.cfg.FetchSize
	if rs.pageSize > 0 {
		rs.fetchSize = rs.pageSize
	}
	if !final.Options().AllowHitLimitOverride {
		rs.maxHits = s.cfg.MaxHits
	}
	if !final.Options().FullColumnLength {
		rs.maxColLen = s.cfg.MaxColumnLength
	}
	rs.status = warn
	rs.diagnostic = qc.LastError()

	rs.mu.Lock()
	rs.load(ctx, rs.pageSize)
	rs.startCounting(ctx)
	st := rs.status
	loaded := len(rs.rows)
	rs.mu.Unlock()

	outcome := outcomeOf(st)
	observe(outcome, start)
	log.Debug("Search executed",
		zap.Int("resources", len(final.Resources())),
		zap.Int("columns", len(cols)),
		zap.Int("page_size", rs.pageSize),
		zap.Int("loaded", loaded),
		zap.String("outcome", outcome),
	)
	return rs, nil
}

func (s *Service) newResultSet(
	ctx context.Context, req request.Request, cols []hitlist.Column, expr filter.Expression,
) *ResultSet {
	resources := req.Resources()
	sources := make([]*source, len(resources))
	for i, r := range resources {
		sources[i] = newSource(r, s.backends[r.Type()])
	}
	colIdx := make(map[string]int, len(cols))
	for i, c := range cols {
		colIdx[c.Name] = i
	}
	return &ResultSet{
		loader:  s.loader,
		logger:  logger.FromContext(ctx),
		req:     req,
		columns: cols,
		colIdx:  colIdx,
		sources: sources,
		pos:     -1,
		query: SubQuery{
			Text:    req.Text(),
			Filter:  expr,
			Sort:    req.Sort(),
			Columns: cols,
		},
	}
}

// pageSize resolves a negative page size to the caller's preference or the configured
// default, capped by MaxPageSize.
func (s *Service) pageSize(ctx context.Context, req *request.Request) int {
	ps := s.preferredPageSize(ctx, req)
	if s.cfg.MaxPageSize > 0 && ps > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return ps
}

func (s *Service) preferredPageSize(ctx context.Context, req *request.Request) int {
	if ps := req.PageSize(); ps >= 0 {
		return ps
	}
	if s.prefs != nil {
		id := domain.IdentityFromContext(ctx)
		n, err := s.prefs.PreferredPageSize(ctx, id.Tenant, id.User)
		if err != nil {
			logger.FromContext(ctx).Warn("Preferred page size lookup failed", zap.Error(err))
		} else if n > 0 {
			return n
		}
	}
	return s.cfg.DefaultPageSize
}

func outcomeOf(st status.Status) string {
	switch {
	case st.IsFatal():
		return "fatal"
	case st.IsWarning():
		return "warning"
	default:
		return "ok"
	}
}

func observe(outcome string, start time.Time) {
	metrics.SearchExecutionsTotal.WithLabelValues(outcome).Inc()
	metrics.SearchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
