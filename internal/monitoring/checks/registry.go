package checks

import (
	"context"
	"time"

	"github.com/charlesng35/sqldesk/internal/monitoring"
	"github.com/charlesng35/sqldesk/internal/services"
)

// LoadStater reports how the registry was loaded.
type LoadStater interface {
	LoadState() services.LoadState
}

// Registry reports degraded when the registry started empty because the stored
// collection could not be read, and down when it was never loaded.
func Registry(registry LoadStater) monitoring.Check {
	return monitoring.NewCheck("registry", func(context.Context) monitoring.ProbeResult {
		start := time.Now()
		if registry == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "registry not configured"}
		}

		state := registry.LoadState()
		result := monitoring.ProbeResult{Status: monitoring.StatusUp, Details: string(state)}
		switch {
		case state == services.LoadStateUnloaded:
			result.Status = monitoring.StatusDown
		case state.Degraded():
			result.Status = monitoring.StatusDegraded
		}
		result.Duration = time.Since(start)
		return result
	})
}
