package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// DefaultTimeout bounds a single component probe.
const DefaultTimeout = 3 * time.Second

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name     string
	checker  Checker
	required bool
}

// Service coordinates health checks.
type Service struct {
	components []component
	timeout    time.Duration
}

// New creates a Service with no components; an empty service reports Healthy.
func New() *Service {
	return &Service{timeout: DefaultTimeout}
}

// Require registers a component whose failure makes the service Unhealthy.
func (s *Service) Require(name string, c Checker) *Service {
	s.components = append(s.components, component{name: name, checker: c, required: true})
	return s
}

// Optional registers a component whose failure only degrades the service.
func (s *Service) Optional(name string, c Checker) *Service {
	s.components = append(s.components, component{name: name, checker: c})
	return s
}

// Check probes every component concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var mu sync.Mutex
	checks := make(map[string]CheckResult, len(s.components))
	status := Healthy

	var g errgroup.Group
	for _, c := range s.components {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			err := c.checker.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				checks[c.name] = CheckOK
				return nil
			}
			logger.FromContext(ctx).Warn("Health check failed", zap.String("component", c.name), zap.Error(err))
			checks[c.name] = CheckError
			switch {
			case c.required:
				status = Unhealthy
			case status == Healthy:
				status = Degraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: status, Checks: checks}
}
