package checks

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/sqldesk/internal/monitoring"
)

// Pinger is satisfied by kvstore.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store returns a readiness probe for the key/value store backing the registry.
func Store(store Pinger) monitoring.Check {
	return monitoring.NewCheck("store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ResultFromError("store", errors.New("store not configured"), time.Since(start))
		}
		return monitoring.ResultFromError("store", store.Ping(ctx), time.Since(start))
	})
}
