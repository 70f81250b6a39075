// Package workers hosts the background jobs that run alongside the API
// server.
package workers

import (
	"context"
	"time"

	"delu/internal/logger"
	"delu/internal/services/gig"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often overdue gigs are expired and refunded.
const DefaultSweepInterval = time.Minute

// ExpirySweeper periodically expires overdue gigs and releases their escrow
// back to the requesters. Expiry is also safe to trigger on-demand; the
// sweeper just guarantees it happens even when nobody is looking.
type ExpirySweeper struct {
	gigs     gig.Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewExpirySweeper(gigs gig.Service, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpirySweeper{
		gigs:     gigs,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *ExpirySweeper) Start() {
	go w.run()
	logger.Log.Info("gig expiry sweeper started", zap.Duration("interval", w.interval))
}

func (w *ExpirySweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

func (w *ExpirySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := w.gigs.SweepExpired(ctx)
	if err != nil {
		logger.Log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		logger.Log.Info("expired overdue gigs", zap.Int("count", expired))
	}
}

// Stop shuts the sweeper down and waits for an in-flight sweep to finish.
func (w *ExpirySweeper) Stop() {
	close(w.stop)
	<-w.done
}
