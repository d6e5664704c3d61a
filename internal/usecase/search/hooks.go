package search

import (
	"context"
	"fmt"
)

// Default is a configured presentation default for one field.
type Default struct {
	Value  string
	Locked bool
}

// LimitResources drops trailing non-primary resources beyond n and records a diagnostic.
func LimitResources(n int) Hook {
	return func(_ context.Context, qc *QueryContext) error {
		if n <= 0 || qc.ResourceCount() <= n {
			return nil
		}
		dropped := 0
		for qc.ResourceCount() > n && qc.RemoveResource(qc.ResourceCount()-1) {
			dropped++
		}
		qc.SetLastError(fmt.Sprintf("%d resources dropped, limit is %d", dropped, n))
		return nil
	}
}

// ApplyDefaults attaches configured defaults to matching declared fields.
func ApplyDefaults(defaults map[string]Default) Hook {
	return func(_ context.Context, qc *QueryContext) error {
		for name, d := range defaults {
			if h, ok := qc.FieldByName(name); ok {
				h.SetDefault(d.Value, d.Locked)
			}
		}
		return nil
	}
}
