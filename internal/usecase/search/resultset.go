package search

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// maxCountWorkers bounds concurrent background count queries per result set.
const maxCountWorkers = 4

type state uint8

const (
	active state = iota
	disposed
	detached
)

// ResultSet is a paginated, lazily loaded table of federated hits.
// Rows grow only through FetchNextPage; GetAt never fetches.
type ResultSet struct {
	mu     sync.Mutex
	loader RecordLoader
	logger *zap.Logger

	req     request.Request
	query   SubQuery
	columns []hitlist.Column
	colIdx  map[string]int
	sources []*source
	rows    []*Row
	pos     int

	pageSize  int
	fetchSize int
	maxHits   int
	maxColLen int

	status     status.Status
	diagnostic string
	exhausted  bool
	state      state

	stopCount context.CancelFunc
	countDone chan struct{}
}

func (rs *ResultSet) checkLocked() error {
	switch rs.state {
	case disposed:
		return domain.ErrDisposed
	case detached:
		return domain.ErrDetached
	}
	return nil
}

// Columns returns the resolved columns.
func (rs *ResultSet) Columns() ([]hitlist.Column, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return nil, err
	}
	return append([]hitlist.Column(nil), rs.columns...), nil
}

// Request returns the executed request, after hooks.
func (rs *ResultSet) Request() request.Request { return rs.req }

// Status returns the non-fatal error channel: 0 ok, >0 warning, <0 fatal.
func (rs *ResultSet) Status() status.Status {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status
}

// Diagnostic returns the message recorded by pre-search hooks.
func (rs *ResultSet) Diagnostic() string { return rs.diagnostic }

// PageSize returns the effective page size; 0 means everything was loaded at once.
func (rs *ResultSet) PageSize() int { return rs.pageSize }

// Size returns the total hit count, -1 while background counting is in progress.
func (rs *ResultSet) Size() (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return 0, err
	}
	return rs.sizeLocked(), nil
}

func (rs *ResultSet) sizeLocked() int {
	if rs.exhausted {
		return len(rs.rows)
	}
	total := 0
	for _, s := range rs.sources {
		t := s.knownTotal()
		if t < 0 {
			return -1
		}
		total += t
	}
	if rs.maxHits > 0 && total > rs.maxHits {
		total = rs.maxHits
	}
	return max(total, len(rs.rows))
}

// Loaded returns the number of rows available for random access.
func (rs *ResultSet) Loaded() (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return 0, err
	}
	return len(rs.rows), nil
}

// AwaitCount blocks until background counting finishes and returns Size.
func (rs *ResultSet) AwaitCount(ctx context.Context) (int, error) {
	rs.mu.Lock()
	done := rs.countDone
	rs.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return -1, fmt.Errorf("await count: %w", ctx.Err())
		}
	}
	return rs.Size()
}

// FetchNextPage appends the next page (everything remaining when the page size is 0).
// It reports whether at least one row was appended and is safe after exhaustion.
func (rs *ResultSet) FetchNextPage(ctx context.Context) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return false, err
	}
	n := rs.load(ctx, rs.pageSize)
	if n > 0 {
		metrics.SearchPagesTotal.Inc()
	}
	return n > 0, nil
}

// First positions the shared cursor on row 0 without reloading. Returns nil when empty.
func (rs *ResultSet) First() (*Row, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return nil, err
	}
	if len(rs.rows) == 0 {
		rs.pos = -1
		return nil, nil
	}
	rs.pos = 0
	return rs.rows[0], nil
}

// Next advances the shared cursor. Returns nil at the end of the loaded rows;
// after FetchNextPage the cursor continues with the new rows.
func (rs *ResultSet) Next() (*Row, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return nil, err
	}
	if rs.pos+1 >= len(rs.rows) {
		return nil, nil
	}
	rs.pos++
	return rs.rows[rs.pos], nil
}

// GetAt returns the row at pos. Only loaded rows are addressable and the shared
// cursor is left untouched.
func (rs *ResultSet) GetAt(pos int) (*Row, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return nil, err
	}
	if pos < 0 || pos >= len(rs.rows) {
		return nil, fmt.Errorf("row %d of %d loaded: %w", pos, len(rs.rows), domain.ErrOutOfRange)
	}
	return rs.rows[pos], nil
}

// Dispose releases all rows. The result set and its rows become invalid. Idempotent.
func (rs *ResultSet) Dispose() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.state != active {
		return
	}
	rs.release(disposed)
}

// Detach invalidates the handle after its snapshot has been stored elsewhere.
func (rs *ResultSet) Detach() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return err
	}
	rs.release(detached)
	return nil
}

func (rs *ResultSet) release(to state) {
	rs.state = to
	rs.stopCounting()
	rs.rows = nil
	rs.sources = nil
}

func (rs *ResultSet) stopCounting() {
	if rs.stopCount != nil {
		rs.stopCount()
		rs.stopCount = nil
	}
}

// load merges up to n rows (all when n <= 0) and returns how many were appended.
func (rs *ResultSet) load(ctx context.Context, n int) int {
	appended := 0
	for !rs.exhausted && (n <= 0 || appended < n) {
		rs.prime(ctx)
		src := pick(rs.sources, rs.query.Sort)
		if src == nil {
			rs.exhausted = true
			break
		}
		if rs.maxHits > 0 && len(rs.rows) >= rs.maxHits {
			rs.status = rs.status.Merge(status.Warning(status.Truncated,
				fmt.Sprintf("hit limit %d reached", rs.maxHits)))
			rs.exhausted = true
			break
		}
		rs.appendRow(src)
		appended++
	}
	if !rs.exhausted && rs.drained() {
		rs.exhausted = true
	}
	if rs.exhausted {
		rs.stopCounting()
	}
	metrics.SearchRowsLoadedTotal.Add(float64(appended))
	return appended
}

func (rs *ResultSet) drained() bool {
	for _, s := range rs.sources {
		if !s.done || len(s.buf) > 0 {
			return false
		}
	}
	return true
}

// prime fetches a batch for every source that has no buffered row left, concurrently.
func (rs *ResultSet) prime(ctx context.Context) {
	var pending []*source
	for _, s := range rs.sources {
		if s.needsFill() {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return
	}

	statuses := make([]status.Status, len(pending))
	var g errgroup.Group
	for i, s := range pending {
		g.Go(func() error {
			statuses[i] = s.fill(ctx, rs.query, rs.fetchSize)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range pending {
		st := statuses[i]
		if st.IsOK() {
			continue
		}
		if !s.failed {
			rs.status = rs.status.Merge(st)
			continue
		}
		metrics.SubQueryErrorsTotal.WithLabelValues(string(s.res.Type())).Inc()
		rs.logger.Warn("Sub-query failed",
			zap.String("resource", s.res.String()),
			zap.Int("offset", s.offset),
			zap.String("error", st.Text()),
		)
		rs.status = rs.status.Merge(status.Warning(status.PartialFailure,
			fmt.Sprintf("resource %s: %s", s.res.ID(), st.Text())))
	}

	if !rs.status.IsFatal() && rs.allFailed() {
		rs.status = status.Fatal(status.BackendFailure, "all resources failed").Merge(rs.status)
	}
}

func (rs *ResultSet) allFailed() bool {
	for _, s := range rs.sources {
		if !s.failed {
			return false
		}
	}
	return len(rs.sources) > 0
}

func (rs *ResultSet) appendRow(src *source) {
	h := src.pop()
	values := make([]value.Value, len(rs.columns))
	for i, c := range rs.columns {
		v := h.Fields[c.Name]
		if rs.maxColLen > 0 {
			v = v.Truncate(rs.maxColLen)
		}
		values[i] = v
	}
	rs.rows = append(rs.rows, &Row{
		rs:     rs,
		index:  len(rs.rows),
		ref:    record.Ref{ResourceID: src.res.ID(), Key: h.Key},
		values: values,
	})
}

// startCounting counts resources with unknown totals in the background. Caller holds mu.
func (rs *ResultSet) startCounting(ctx context.Context) {
	if rs.exhausted {
		return
	}
	type target struct {
		src     *source
		counter Counter
	}
	var targets []target
	for _, s := range rs.sources {
		if s.knownTotal() >= 0 {
			continue
		}
		if c, ok := s.backend.(Counter); ok {
			targets = append(targets, target{src: s, counter: c})
		}
	}
	if len(targets) == 0 {
		return
	}

	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	rs.stopCount = cancel
	rs.countDone = done
	tmpl := rs.query

	go func() {
		defer close(done)
		defer cancel()
		var g errgroup.Group
		g.SetLimit(maxCountWorkers)
		for _, t := range targets {
			g.Go(func() error {
				q := tmpl
				q.Resource = t.src.res
				n, err := t.counter.Count(cctx, q)
				if err != nil {
					if cctx.Err() == nil {
						rs.logger.Warn("Background count failed",
							zap.String("resource", t.src.res.String()), zap.Error(err))
					}
					return nil
				}
				rs.mu.Lock()
				t.src.counted = n
				rs.mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}()
}
