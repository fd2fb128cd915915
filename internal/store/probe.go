package store

import (
	"context"
	"time"

	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

// Select probes the durable backend once at startup and decides which
// adapter the process runs with. The decision is final for the process
// lifetime; there is no mid-flight failover.
func Select(ctx context.Context, dsn, table string, probeTimeout time.Duration, log *logger.Logger) DocumentStore {
	if dsn == "" {
		log.Warn("DATABASE_URL not set; running with in-memory document store")
		return NewEphemeralStore(log)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	durable, err := OpenDurable(probeCtx, dsn, table, log)
	if err != nil {
		log.Warn("Durable store unreachable; running with in-memory document store",
			"error", err.Error(),
			"probe_timeout", probeTimeout.String(),
		)
		return NewEphemeralStore(log)
	}
	log.Info("Durable document store connected")
	return durable
}
