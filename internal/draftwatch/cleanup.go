package draftwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/metrics"
	"github.com/emberfeed/backend/internal/storage"
	"go.uber.org/zap"
)

const deleteTimeout = 30 * time.Second

// CleanupExecutor deletes a session's tracked files from storage. Deletes
// are best-effort: one call per file, all concurrent, each independently
// recovered, no retries. A failed delete is reclaimed later by the orphan
// sweep; the executor never reports an error to its caller.
type CleanupExecutor struct {
	deleter storage.FileDeleter

	// wg tracks in-flight cleanups so tests and shutdown can wait
	wg sync.WaitGroup
}

// NewCleanupExecutor creates a cleanup executor
func NewCleanupExecutor(deleter storage.FileDeleter) *CleanupExecutor {
	return &CleanupExecutor{deleter: deleter}
}

// Execute launches the delete fan-out in the background and returns
// immediately so connection teardown never waits on storage.
func (e *CleanupExecutor) Execute(snap SessionSnapshot) {
	if len(snap.Files) == 0 {
		return
	}

	m := metrics.Get()
	m.CleanupRunsTotal.Inc()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("Cleanup task panicked",
					logger.WithSessionID(snap.SessionID),
					zap.Any("panic", r),
				)
			}
		}()
		e.run(snap)
	}()
}

// Wait blocks until every launched cleanup has finished
func (e *CleanupExecutor) Wait() {
	e.wg.Wait()
}

func (e *CleanupExecutor) run(snap SessionSnapshot) {
	start := time.Now()
	m := metrics.Get()

	var deleted, failed atomic.Int64
	var wg sync.WaitGroup
	for _, fileID := range snap.Files {
		wg.Add(1)
		go func(fileID string) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
			defer cancel()

			if err := e.deleter.DeleteFile(ctx, fileID); err != nil {
				failed.Add(1)
				m.CleanupFailuresTotal.Inc()
				logger.Log.Warn("Failed to delete abandoned draft file",
					logger.WithSessionID(snap.SessionID),
					logger.WithFileID(fileID),
					zap.Error(err),
				)
				return
			}
			deleted.Add(1)
			m.CleanupDeletesTotal.Inc()
		}(fileID)
	}
	wg.Wait()

	logger.Log.Info("Draft session cleanup finished",
		logger.WithSessionID(snap.SessionID),
		logger.WithUserID(snap.OwnerID),
		zap.Int64("deleted", deleted.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("took", time.Since(start)),
	)
}
