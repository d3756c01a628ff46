package bridge

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Watcher periodically sweeps every non-terminal swap and reconciles it
// against the ledgers: interrupted settlements resume, expired legs refund.
// It is the crash-recovery path; the coordinator's synchronous flow is just
// the fast path for the same transitions.
type Watcher struct {
	coord    *Coordinator
	interval time.Duration
	log      *logrus.Entry
}

// NewWatcher builds a watcher sweeping at the given interval.
func NewWatcher(coord *Coordinator, interval time.Duration, log *logrus.Logger) *Watcher {
	return &Watcher{
		coord:    coord,
		interval: interval,
		log:      log.WithField("component", "watcher"),
	}
}

// Run sweeps until the context is canceled. The first sweep happens
// immediately so a restart picks up stranded swaps without waiting a tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep reconciles every active swap once. Errors on individual swaps are
// logged and skipped; the next sweep retries them.
func (w *Watcher) Sweep(ctx context.Context) {
	active, err := w.coord.Registry().ListActive(ctx)
	if err != nil {
		w.log.WithError(err).Error("listing active swaps")
		return
	}
	for _, swap := range active {
		unlock := w.coord.lockSwap(swap.ID)
		err := w.coord.reconcile(ctx, swap)
		unlock()
		if err != nil {
			w.log.WithField("swap", swap.ID).WithError(err).Warn("reconcile failed")
		}
	}
}
