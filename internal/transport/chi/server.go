package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/usecase/cursor"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

// Paging limits of the HTTP surface.
const (
	// DefaultLifetimeSec applies when a next-page call names no lifetime.
	DefaultLifetimeSec  = 600
	defaultCursorLimit  = 100
	maxCursorLimit      = 1000
	maxRequestBodyBytes = 1 << 20
)

// resourceCatalog resolves request resource ids and criterion fields.
type resourceCatalog interface {
	Resource(id string) (resource.Descriptor, error)
	Field(resourceID, name string) (field.Descriptor, bool)
}

// preferenceStore persists per-user search preferences.
type preferenceStore interface {
	SetPreferredPageSize(ctx context.Context, tenant, user string, n int) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server is the HTTP API over the search, side buffer and cursor services.
type Server struct {
	catalog       resourceCatalog
	search        *searchuc.Service
	sideBuffer    *sidebuffer.Service
	cursors       *cursor.Service
	prefs         preferenceStore
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	catalog resourceCatalog,
	search *searchuc.Service,
	sideBuffer *sidebuffer.Service,
	cursors *cursor.Service,
	prefs preferenceStore,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		catalog:    catalog,
		search:     search,
		sideBuffer: sideBuffer,
		cursors:    cursors,
		prefs:      prefs,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		cancelHandler,
		sentinelHandler(domain.ErrUnknownResource, http.StatusBadRequest, CodeUnknownResource, true),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed, true),
		sentinelHandler(domain.ErrInvalidLifetime, http.StatusBadRequest, CodeValidationFailed, true),
		sentinelHandler(domain.ErrInvalidID, http.StatusBadRequest, CodeValidationFailed, true),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeResultSetNotFound, false),
		sentinelHandler(domain.ErrDetached, http.StatusNotFound, CodeResultSetNotFound, false),
		sentinelHandler(domain.ErrDisposed, http.StatusNotFound, CodeResultSetNotFound, false),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, CodeEmbeddingProviderError, false),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r gochi.Router) {
		r.Post("/search", s.Search)
		r.Post("/resultsets/{id}/next", s.NextPage)
		r.Delete("/resultsets/{id}", s.DropResultSet)
		r.Post("/cursors", s.OpenCursor)
		r.Post("/cursors/records", s.CursorRecords)
		r.Put("/preferences/page-size", s.SetPageSize)
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sreq, err := searchRequestFromDTO(s.catalog, &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx := r.Context()
	rs, err := s.search.Execute(ctx, sreq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := pageOf(rs, 0)
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}

	if req.PutAside == nil {
		rs.Dispose()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	id, err := s.sideBuffer.PutAside(ctx, rs, req.PutAside.LifetimeSec, req.PutAside.ID)
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}
	if id == "" {
		rs.Dispose()
		writeError(w, http.StatusConflict, CodeResultSetIDTaken, "result set id is already in use")
		return
	}
	resp.ResultSetID = id
	writeJSON(w, http.StatusOK, resp)
}

// NextPage handles POST /v1/resultsets/{id}/next. The result set is reintegrated,
// advanced by one page and put aside again under the same id and owner.
func (s *Server) NextPage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindID(w, r)
	if !ok {
		return
	}
	var lifetime *int
	if err := runtime.BindQueryParameter("form", true, false, "lifetime_sec", r.URL.Query(), &lifetime); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("Invalid format for parameter lifetime_sec: %s", err))
		return
	}
	lifetimeSec := DefaultLifetimeSec
	if lifetime != nil {
		lifetimeSec = *lifetime
	}

	if err := s.sideBuffer.ValidateLifetime(lifetimeSec); err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx := r.Context()
	rs, owner := s.sideBuffer.Claim(ctx, id)
	if rs == nil {
		s.handleDomainError(w, fmt.Errorf("result set %s: %w", id, domain.ErrNotFound))
		return
	}

	from, err := rs.Loaded()
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}
	fetched, err := rs.FetchNextPage(ctx)
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}
	resp, err := pageOf(rs, from)
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}
	resp.Fetched = &fetched

	// Stored back under the original owner so elevated callers do not take it over.
	ownerCtx := domain.ContextWithIdentity(ctx, owner)
	stored, err := s.sideBuffer.PutAside(ownerCtx, rs, lifetimeSec, sidebuffer.MandatoryMarker+id)
	if err != nil {
		rs.Dispose()
		s.handleDomainError(w, err)
		return
	}
	if stored == "" {
		rs.Dispose()
		writeError(w, http.StatusConflict, CodeResultSetIDTaken, "result set id is already in use")
		return
	}
	resp.ResultSetID = stored
	writeJSON(w, http.StatusOK, resp)
}

// DropResultSet handles DELETE /v1/resultsets/{id}.
func (s *Server) DropResultSet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindID(w, r)
	if !ok {
		return
	}
	rs := s.sideBuffer.Reintegrate(r.Context(), id)
	if rs == nil {
		s.handleDomainError(w, fmt.Errorf("result set %s: %w", id, domain.ErrNotFound))
		return
	}
	rs.Dispose()
	w.WriteHeader(http.StatusNoContent)
}

// OpenCursor handles POST /v1/cursors.
func (s *Server) OpenCursor(w http.ResponseWriter, r *http.Request) {
	var req CursorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.catalog.Resource(req.Resource); err != nil {
		s.handleDomainError(w, err)
		return
	}
	expr, err := filtersFromDTO(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	keys, err := sorting.Parse(req.Sort)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	c, err := s.cursors.Open(r.Context(), req.Resource, expr, keys)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	ids, err := c.ExportJSON()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CursorResponse{
		Resource:  c.ResourceID(),
		Size:      c.Size(),
		Truncated: c.Truncated(),
		IDs:       ids,
	})
}

// CursorRecords handles POST /v1/cursors/records. Elements that fail to load are
// logged and skipped; iteration continues with the next one.
func (s *Server) CursorRecords(w http.ResponseWriter, r *http.Request) {
	var req CursorRecordsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.catalog.Resource(req.Resource); err != nil {
		s.handleDomainError(w, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultCursorLimit
	}
	if limit > maxCursorLimit {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("limit must be between 1 and %d", maxCursorLimit))
		return
	}

	c, err := s.cursors.Rebuild(req.Resource, req.IDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)
	resp := CursorRecordsResponse{Records: []RecordDTO{}}

	if req.Last {
		rec, err := c.Last(ctx)
		switch {
		case err != nil:
			log.Warn("Cursor element skipped", zap.Int("position", c.Position()), zap.Error(err))
			resp.Skipped++
		case rec != nil:
			resp.Records = append(resp.Records, recordToDTO(rec))
		}
		resp.Exhausted = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	for len(resp.Records)+resp.Skipped < limit {
		rec, err := c.Next(ctx)
		if err != nil {
			log.Warn("Cursor element skipped", zap.Int("position", c.Position()), zap.Error(err))
			resp.Skipped++
			continue
		}
		if rec == nil {
			break
		}
		resp.Records = append(resp.Records, recordToDTO(rec))
	}
	resp.Exhausted = c.State() == cursor.Exhausted || c.Position() >= c.Size()-1
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  report.Status,
		Checks:  report.Checks,
		Version: version.Get(),
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// pageOf renders the rows of rs from index from up to the loaded count.
func pageOf(rs *searchuc.ResultSet, from int) (ResultSetResponse, error) {
	cols, err := rs.Columns()
	if err != nil {
		return ResultSetResponse{}, err
	}
	size, err := rs.Size()
	if err != nil {
		return ResultSetResponse{}, err
	}
	loaded, err := rs.Loaded()
	if err != nil {
		return ResultSetResponse{}, err
	}

	rows := make([]RowDTO, 0, max(loaded-from, 0))
	for i := from; i < loaded; i++ {
		row, err := rs.GetAt(i)
		if err != nil {
			return ResultSetResponse{}, err
		}
		ref, err := row.Ref()
		if err != nil {
			return ResultSetResponse{}, err
		}
		vals, err := row.Values()
		if err != nil {
			return ResultSetResponse{}, err
		}
		rows = append(rows, RowDTO{
			Index:      row.Index(),
			ResourceID: ref.ResourceID,
			Key:        ref.Key,
			Values:     plainValues(vals),
		})
	}

	st := rs.Status()
	req := rs.Request()
	var defaults map[string]DefaultDTO
	for _, c := range req.Criteria() {
		v, ok := c.Field().Default()
		if !ok {
			continue
		}
		if defaults == nil {
			defaults = make(map[string]DefaultDTO)
		}
		defaults[c.Field().Name()] = DefaultDTO{Value: v, Locked: c.Field().DefaultLocked()}
	}

	return ResultSetResponse{
		Columns:    cols,
		Rows:       rows,
		Size:       size,
		Loaded:     loaded,
		PageSize:   rs.PageSize(),
		Status:     StatusDTO{Code: int(st.Code()), Text: st.Text()},
		Diagnostic: rs.Diagnostic(),
		Defaults:   defaults,
	}, nil
}

func (s *Server) bindID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", gochi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("Invalid format for parameter id: %s", err))
		return "", false
	}
	return id, true
}

// SetPageSize handles PUT /v1/preferences/page-size. 0 clears the preference.
func (s *Server) SetPageSize(w http.ResponseWriter, r *http.Request) {
	var req PageSizePreference
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	who := domain.IdentityFromContext(ctx)
	if who.User == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "missing "+HeaderUser+" header")
		return
	}
	if err := s.prefs.SetPreferredPageSize(ctx, who.Tenant, who.User, req.PageSize); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Validation errors carry user input only and are exposed verbatim; others expose the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode, expose bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if expose {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

// cancelHandler reports a hook cancellation with the hook's own message.
func cancelHandler(w http.ResponseWriter, err error) bool {
	var ce *domain.CancelError
	if !errors.As(err, &ce) {
		return false
	}
	writeError(w, http.StatusUnprocessableEntity, CodeSearchCancelled, ce.Message)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
