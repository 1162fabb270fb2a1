// Package sweep runs the periodic timer evaluation over all sessions with
// a persisted start timestamp.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type evaluator interface {
	EvaluateTimers(ctx context.Context)
}

type Sweep struct {
	c       *cron.Cron
	svc     evaluator
	timeout time.Duration
	logger  *zap.Logger
}

func New(interval time.Duration, svc evaluator, logger *zap.Logger) (*Sweep, error) {
	c := cron.New()
	s := &Sweep{
		c:       c,
		svc:     svc,
		timeout: interval,
		logger:  logger,
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.run); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return s, nil
}

func (s *Sweep) Start() {
	s.logger.Info("timer sweep scheduled", zap.Duration("interval", s.timeout))
	s.c.Start()
}

// Stop halts scheduling and waits for a running sweep to return.
func (s *Sweep) Stop() {
	<-s.c.Stop().Done()
}

func (s *Sweep) run() {
	// One interval is also the budget for a whole sweep, so overlapping
	// runs cannot pile up behind a stuck external call.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Debug("timer sweep running")
	s.svc.EvaluateTimers(ctx)
}
