package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks lease-recovery metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// orphanScanInterval bounds how often the pool sweeps for expired leases.
// A claimed task whose worker died without completing or requeuing it
// would otherwise sit in-flight forever.
const orphanScanInterval = 1 * time.Minute

// runOrphanDetection periodically recovers tasks whose claim lease
// expired. All pods run this independently; RecoverExpiredLeases is
// idempotent (a task already recovered by another pod's scan is simply
// absent from the lease set on the next sweep).
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(orphanScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			recovered, err := p.queue.RecoverExpiredLeases(ctx)
			if err != nil {
				slog.Error("lease recovery scan failed", "error", err)
				continue
			}
			if recovered > 0 {
				slog.Warn("recovered orphaned tasks with expired leases", "count", recovered)
			}

			p.orphans.mu.Lock()
			p.orphans.lastOrphanScan = time.Now()
			p.orphans.orphansRecovered += recovered
			p.orphans.mu.Unlock()
		}
	}
}
