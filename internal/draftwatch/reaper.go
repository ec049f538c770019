package draftwatch

import (
	"context"
	"time"

	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultReapInterval is how often the reaper sweeps the registry
	DefaultReapInterval = 5 * time.Minute

	// DefaultSessionTTL is the staleness ceiling: sessions older than this
	// are evicted regardless of connection liveness.
	DefaultSessionTTL = 1 * time.Hour
)

// Reaper periodically evicts sessions that outlived the staleness ceiling,
// bounding registry growth from connections that never signal closure. It
// deliberately does NOT run the cleanup executor: a session that old has
// almost certainly submitted or been cleaned through the disconnect path,
// and deleting files out from under a slow-but-legitimate session would be
// worse than leaking a few objects the orphan sweep reclaims later.
type Reaper struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// NewReaper creates a stale session reaper
func NewReaper(registry *Registry, interval, maxAge time.Duration) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		registry: registry,
		interval: interval,
		maxAge:   maxAge,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the periodic sweep
func (r *Reaper) Start() {
	logger.Log.Info("Starting stale draft session reaper",
		zap.Duration("interval", r.interval),
		zap.Duration("max_age", r.maxAge),
	)
	go r.run()
}

// Stop stops the reaper and waits for the loop to exit
func (r *Reaper) Stop() {
	r.cancel()
	<-r.done
}

func (r *Reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.ctx.Done():
			return
		}
	}
}

// Sweep evicts every session past the staleness ceiling. Exported so tests
// and operational tooling can trigger a pass directly.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.maxAge)
	reaped := 0

	for _, snap := range r.registry.Entries() {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}

		// Remove first: the connection's disconnect path then finds the
		// entry gone and skips cleanup, matching the no-cleanup policy.
		if _, ok := r.registry.Remove(snap.SessionID); !ok {
			continue
		}
		if snap.Conn != nil {
			snap.Conn.Terminate()
		}

		m := metrics.Get()
		m.SessionsReapedTotal.Inc()
		m.SessionsActive.Dec()
		m.FilesTracked.Sub(float64(len(snap.Files)))

		logger.Log.Warn("Reaped stale draft session",
			logger.WithSessionID(snap.SessionID),
			logger.WithUserID(snap.OwnerID),
			zap.Time("created_at", snap.CreatedAt),
			zap.Int("tracked_files", len(snap.Files)),
		)
		reaped++
	}

	if reaped > 0 {
		logger.Log.Info("Stale session sweep finished", zap.Int("reaped", reaped))
	}
	return reaped
}
