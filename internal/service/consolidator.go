package service

import (
	"context"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/consolidator"

	"go.uber.org/zap"
)

// ConsolidatorService runs the merge engine on a fixed interval. The
// interval bounds end-to-end latency before data is query-visible; a failed
// run (store down) just waits for the next tick, and backlog grows in the
// incoming directory instead of being lost.
type ConsolidatorService struct {
	engine   *consolidator.Engine
	interval time.Duration
	logger   *zap.Logger
}

func NewConsolidatorService(engine *consolidator.Engine, interval time.Duration, logger *zap.Logger) *ConsolidatorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ConsolidatorService{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. One pass runs immediately at startup
// to drain any backlog from a previous crash.
func (s *ConsolidatorService) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Consolidator stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ConsolidatorService) runOnce(ctx context.Context) {
	if _, err := s.engine.Run(ctx); err != nil {
		s.logger.Error("Consolidation run aborted", zap.Error(err))
	}
}
