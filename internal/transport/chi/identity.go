package chi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// Identity headers.
const (
	HeaderTenant        = "X-Tenant-ID"
	HeaderUser          = "X-User-ID"
	HeaderExecutionMode = "X-Execution-Mode"

	modeElevated = "elevated"
)

// exemptPaths are routes that run without an execution identity (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// IdentityMiddleware attaches the execution identity from the request headers to the context.
// A tenant is required everywhere except the exempt paths; the user may be empty.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			tenant := strings.TrimSpace(r.Header.Get(HeaderTenant))
			if tenant == "" {
				writeError(w, http.StatusBadRequest, CodeBadRequest, "missing "+HeaderTenant+" header")
				return
			}

			id := domain.Identity{
				Tenant:   tenant,
				User:     strings.TrimSpace(r.Header.Get(HeaderUser)),
				Elevated: strings.EqualFold(r.Header.Get(HeaderExecutionMode), modeElevated),
			}
			ctx := domain.ContextWithIdentity(r.Context(), id)
			ctx = logger.With(ctx, zap.String("tenant", id.Tenant), zap.String("user", id.User))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
