package service

import (
	"context"

	"github.com/bubelovv/fcp-bot/internal/domain"
	"go.uber.org/zap"
)

// EvaluateTimers applies the elapsed-time rule to every session with a
// persisted start. Each proposal is an independent unit of work: one
// failing evaluation is logged and skipped, never aborts the sweep.
// Re-running the sweep in the same window mutates nothing, because status
// is re-derived first and the push is diff-based.
func (s *Service) EvaluateTimers(ctx context.Context) {
	timers, err := s.timers.List(ctx)
	if err != nil {
		s.logger.Error("listing FCP timers failed", zap.Error(err))
		return
	}

	for _, t := range timers {
		if err := s.evaluateTimer(ctx, t.Proposal); err != nil {
			s.logger.Error("timer evaluation failed",
				zap.Int("proposal", t.Proposal), zap.Error(err))
		}
	}
}

func (s *Service) evaluateTimer(ctx context.Context, proposal int) error {
	unlock := s.locks.Lock(proposal)
	defer unlock()

	snap, err := s.reconciler.Reconcile(ctx, proposal)
	if err != nil {
		return err
	}
	session := snap.Session

	// A timer row for a session that no longer exists or already ended is
	// stale: someone cancelled or finished it out of band.
	if session.Status == domain.SessionStatusNone || session.Status.Terminal() {
		s.clearTimer(ctx, proposal)
		return nil
	}

	if !s.machine.TryFinish(session, s.now().UTC()) {
		return nil
	}

	s.logger.Info("final comment period complete",
		zap.Int("proposal", proposal),
		zap.String("disposition", string(session.Disposition)),
	)

	reply := "The final comment period, with a disposition to " +
		string(session.Disposition) + ", as laid out above, is now complete."
	if err := s.push(ctx, snap, []string{reply}); err != nil {
		return err
	}

	s.clearTimer(ctx, proposal)
	return nil
}

// Bootstrap backfills timer rows for proposals already in an active FCP.
// A proposal wearing the FCP label without a
// stored start gets one as of now: the window restarts, which is the
// conservative reading when the true start is unrecoverable.
func (s *Service) Bootstrap(ctx context.Context) error {
	numbers, err := s.record.ListIssuesWithLabel(ctx, s.cfg.Labels.FCP)
	if err != nil {
		return err
	}

	for _, number := range numbers {
		_, ok, err := s.timers.Get(ctx, number)
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		start := s.now().UTC()
		if err := s.timers.Upsert(ctx, number, start); err != nil {
			return err
		}
		s.logger.Warn("restarted FCP window for proposal with no stored start",
			zap.Int("proposal", number), zap.Time("start", start))
	}

	return nil
}
