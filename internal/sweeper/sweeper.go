// Package sweeper runs the periodic reclamation of unclaimed holds. It is
// the only server-initiated path into the state machine; every write goes
// through the same status guard as user-triggered transitions, so whichever
// side reaches a transaction first wins and the loser is a no-op.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"circulate/internal/circulation"
)

type Sweeper struct {
	svc        *circulation.Service
	interval   time.Duration
	warnWindow time.Duration
	logger     *slog.Logger

	// warned dedupes hold_expiring_soon per transaction between cycles.
	warned map[uuid.UUID]struct{}
}

func New(svc *circulation.Service, interval, warnWindow time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		svc:        svc,
		interval:   interval,
		warnWindow: warnWindow,
		logger:     logger,
		warned:     make(map[uuid.UUID]struct{}),
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Each cycle
// is a full idempotent re-scan, so a restart resumes cleanly.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cycle: expire lapsed holds, then warn about holds
// lapsing within the warning window.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.svc.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	} else if expired > 0 {
		s.logger.Info("expired unclaimed holds", "count", expired)
	}

	if s.warnWindow <= 0 {
		return
	}

	expiring, err := s.svc.ExpiringSoon(ctx, s.warnWindow)
	if err != nil {
		s.logger.Error("expiring-soon scan failed", "error", err)
		return
	}

	current := make(map[uuid.UUID]struct{}, len(expiring))

	for _, tx := range expiring {
		current[tx.ID] = struct{}{}

		if _, ok := s.warned[tx.ID]; ok {
			continue
		}

		s.svc.NotifyExpiring(tx)
	}

	// Transactions that left the window were expired or picked up; dropping
	// them keeps the dedupe set bounded.
	s.warned = current
}
