package fcp

import (
	"context"
	"fmt"
	"time"

	"github.com/bubelovv/fcp-bot/internal/domain"
	"github.com/bubelovv/fcp-bot/internal/github"
	"go.uber.org/zap"
)

// RecordSource reads the external record for one proposal.
type RecordSource interface {
	ListLabels(ctx context.Context, number int) ([]string, error)
	ListComments(ctx context.Context, number int) ([]github.Comment, error)
}

// TimerStore reads the persisted FCP start timestamp for a proposal.
// Absence is valid: the session has not started, or the row predates this
// deployment, and elapsed-time rules simply do not apply yet.
type TimerStore interface {
	Get(ctx context.Context, proposal int) (time.Time, bool, error)
}

// Reconciler rebuilds a session from the external record. It is the only
// component that treats that record as ground truth: nothing derived here
// is ever cached across calls, so a restart loses nothing.
type Reconciler struct {
	record  RecordSource
	timers  TimerStore
	labels  domain.Labels
	botUser string
	logger  *zap.Logger
}

func NewReconciler(record RecordSource, timers TimerStore, labels domain.Labels, botUser string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		record:  record,
		timers:  timers,
		labels:  labels,
		botUser: botUser,
		logger:  logger,
	}
}

// Snapshot is one consistent read of a proposal: the derived session plus
// the raw material the caller needs to push mutations back (the fetched
// label set to diff against, and the status comment to edit in place).
type Snapshot struct {
	Session       *domain.FCPSession
	Labels        []string
	StatusComment *github.Comment
}

// Reconcile derives the current session for a proposal.
func (r *Reconciler) Reconcile(ctx context.Context, number int) (*Snapshot, error) {
	current, err := r.record.ListLabels(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("reconcile #%d: %w", number, err)
	}

	s := &domain.FCPSession{
		Proposal: number,
		Status:   r.statusFromLabels(number, current),
		Votes:    map[string]bool{},
	}
	for _, l := range current {
		if d, ok := r.labels.Disposition(l); ok {
			s.Disposition = d
			break
		}
	}

	statusComment, err := r.findStatusComment(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("reconcile #%d: %w", number, err)
	}
	if statusComment != nil {
		proposer, disposition, votes, concerns := ParseStatusComment(statusComment.Body)
		s.Proposer = proposer
		s.Votes = votes
		s.Concerns = concerns
		if s.Disposition == "" {
			// No disposition label; the comment header still knows it.
			s.Disposition = disposition
		}
	} else if s.Status == domain.SessionStatusProposed || s.Status == domain.SessionStatusActive {
		r.logger.Warn("labels claim an FCP but no status comment found",
			zap.Int("proposal", number),
			zap.String("status", string(s.Status)),
		)
	}

	start, ok, err := r.timers.Get(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("reconcile #%d: read timer: %w", number, err)
	}
	if ok {
		s.StartTime = start
	}

	return &Snapshot{Session: s, Labels: current, StatusComment: statusComment}, nil
}

// statusFromLabels maps the label set to a session status. Exactly one of
// the three FCP labels selects its status; none means no session; more
// than one is an anomaly a human has to untangle, reported and read as
// None rather than guessed at.
func (r *Reconciler) statusFromLabels(number int, current []string) domain.SessionStatus {
	present := map[string]bool{}
	for _, l := range current {
		present[l] = true
	}

	var found []domain.SessionStatus
	if present[r.labels.FCPProposed] {
		found = append(found, domain.SessionStatusProposed)
	}
	if present[r.labels.FCP] {
		found = append(found, domain.SessionStatusActive)
	}
	if present[r.labels.FCPFinished] {
		found = append(found, domain.SessionStatusFinished)
	}

	switch len(found) {
	case 0:
		return domain.SessionStatusNone
	case 1:
		return found[0]
	default:
		r.logger.Warn("contradictory FCP labels, treating proposal as having no session",
			zap.Int("proposal", number),
			zap.Strings("labels", current),
		)
		return domain.SessionStatusNone
	}
}

// findStatusComment locates the bot's status comment, newest first: after
// weird manual edits the latest bot status comment wins.
func (r *Reconciler) findStatusComment(ctx context.Context, number int) (*github.Comment, error) {
	comments, err := r.record.ListComments(ctx, number)
	if err != nil {
		return nil, err
	}
	for i := len(comments) - 1; i >= 0; i-- {
		if comments[i].Author == r.botUser && IsStatusComment(comments[i].Body) {
			c := comments[i]
			return &c, nil
		}
	}
	return nil, nil
}
