package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bubelovv/fcp-bot/internal/commands"
	"github.com/bubelovv/fcp-bot/internal/domain"
	"github.com/bubelovv/fcp-bot/internal/fcp"
	"github.com/bubelovv/fcp-bot/internal/github"
	"github.com/bubelovv/fcp-bot/internal/repository"
	"go.uber.org/zap"
)

// Record is the external record holding the authoritative proposal state.
type Record interface {
	ListLabels(ctx context.Context, number int) ([]string, error)
	SetLabels(ctx context.Context, number int, labels []string) error
	ListComments(ctx context.Context, number int) ([]github.Comment, error)
	GetComment(ctx context.Context, commentID int64) (github.Comment, error)
	CreateComment(ctx context.Context, number int, body string) (github.Comment, error)
	UpdateComment(ctx context.Context, commentID int64, body string) error
	ListIssuesWithLabel(ctx context.Context, label string) ([]int, error)
}

// Timers is the session store: the one fact kept outside the record.
type Timers interface {
	Get(ctx context.Context, proposal int) (time.Time, bool, error)
	Upsert(ctx context.Context, proposal int, startedAt time.Time) error
	Delete(ctx context.Context, proposal int) error
	List(ctx context.Context) ([]repository.Timer, error)
}

// Roster serves the authorized team's membership.
type Roster interface {
	Members(ctx context.Context) (members map[string]struct{}, degraded bool, err error)
}

type Config struct {
	BotUser     string
	Labels      domain.Labels
	FCPWindow   time.Duration
	QuorumRatio float64
}

// Service drives the proposal lifecycle. It owns no authoritative state:
// every evaluation reconciles from the external record, applies commands
// or timer rules, and pushes back only the difference.
type Service struct {
	cfg        Config
	record     Record
	timers     Timers
	roster     Roster
	machine    *fcp.Machine
	reconciler *fcp.Reconciler
	locks      *proposalLocks
	deliveries *deliveryLog
	logger     *zap.Logger
	now        func() time.Time
}

func New(cfg Config, record Record, timers Timers, roster Roster, logger *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		record:     record,
		timers:     timers,
		roster:     roster,
		machine:    fcp.NewMachine(cfg.Labels, cfg.FCPWindow, cfg.QuorumRatio),
		reconciler: fcp.NewReconciler(record, timers, cfg.Labels, cfg.BotUser, logger),
		locks:      newProposalLocks(),
		deliveries: newDeliveryLog(),
		logger:     logger,
		now:        time.Now,
	}
}

// CommentEvent is one webhook delivery the boundary has already verified.
type CommentEvent struct {
	Action   string
	Proposal int
	Labels   []string
	Comment  commands.Comment
}

// HandleComment runs the full pipeline for one comment delivery:
// parse, authorize, reconcile, apply, push. Deliveries are at-least-once;
// the (comment id, edited at) key suppresses replays of unedited comments.
func (s *Service) HandleComment(ctx context.Context, ev CommentEvent) error {
	if ev.Comment.Author == s.cfg.BotUser {
		return nil
	}
	if !containsLabel(ev.Labels, s.cfg.Labels.Proposal) {
		s.logger.Debug("ignoring comment on non-proposal", zap.Int("issue", ev.Proposal))
		return nil
	}

	cmds := commands.Parse(s.cfg.BotUser, ev.Comment)
	if len(cmds) == 0 {
		return nil
	}

	key := ev.Comment.Key()
	if s.deliveries.Seen(key) {
		s.logger.Debug("skipping replayed delivery",
			zap.Int64("comment_id", key.CommentID),
			zap.Int("proposal", ev.Proposal),
		)
		return nil
	}

	unlock := s.locks.Lock(ev.Proposal)
	defer unlock()

	if err := s.applyCommands(ctx, ev.Proposal, cmds); err != nil {
		return err
	}

	// Marked only after a full push, so a failed evaluation is retried
	// when the delivery comes around again.
	s.deliveries.Mark(key)
	return nil
}

func (s *Service) applyCommands(ctx context.Context, proposal int, cmds []domain.Command) error {
	snap, err := s.reconciler.Reconcile(ctx, proposal)
	if err != nil {
		return err
	}
	session := snap.Session

	members, degraded, err := s.roster.Members(ctx)
	if err != nil {
		return fmt.Errorf("roster unavailable: %w", err)
	}
	if degraded {
		s.logger.Warn("evaluating with stale roster", zap.Int("proposal", proposal))
	}

	var replies []string
	changed := false

	for _, cmd := range cmds {
		_, onRoster := members[cmd.Actor]

		switch cmd.Verb {
		case domain.VerbFCP:
			if !onRoster {
				s.logger.Debug("ignoring privileged command from non-member",
					zap.String("actor", cmd.Actor), zap.Int("proposal", proposal))
				continue
			}
			reply, mutated := s.applyFCP(session, cmd, members)
			if reply != "" {
				replies = append(replies, reply)
			}
			changed = changed || mutated

		case domain.VerbConcern:
			mutated, err := s.machine.RaiseConcern(session, cmd.Actor, cmd.Args)
			if err != nil {
				s.logger.Debug("concern outside FCP ignored",
					zap.String("actor", cmd.Actor), zap.Int("proposal", proposal))
				continue
			}
			changed = changed || mutated

		case domain.VerbResolve:
			if !onRoster {
				s.logger.Debug("ignoring privileged command from non-member",
					zap.String("actor", cmd.Actor), zap.Int("proposal", proposal))
				continue
			}
			mutated, err := s.machine.ResolveConcern(session, cmd.Args)
			if err != nil {
				continue
			}
			changed = changed || mutated

		case domain.VerbReview:
			mutated, err := s.machine.Review(session, cmd.Actor)
			if err != nil {
				continue
			}
			changed = changed || mutated
		}
	}

	startTimer := false
	if s.machine.TryActivate(session, members, s.now().UTC()) {
		changed = true
		startTimer = true
		s.logger.Info("final comment period started",
			zap.Int("proposal", proposal),
			zap.String("disposition", string(session.Disposition)),
		)
	}

	if !changed && len(replies) == 0 {
		return nil
	}

	if err := s.push(ctx, snap, replies); err != nil {
		return err
	}

	if startTimer {
		if err := s.timers.Upsert(ctx, proposal, session.StartTime); err != nil {
			// Fails safe: the window cannot be measured yet, so the sweep
			// defers finishing until the store takes the row.
			s.logger.Error("persisting FCP start failed, finish deferred",
				zap.Int("proposal", proposal), zap.Error(err))
		}
	}
	if session.Status.Terminal() {
		s.clearTimer(ctx, proposal)
	}

	return nil
}

// applyFCP handles "fcp cancel" and "fcp <disposition>" from a roster
// member. Misuse of a well-formed command gets a reply comment; everything
// else stays silent.
func (s *Service) applyFCP(session *domain.FCPSession, cmd domain.Command, members map[string]struct{}) (reply string, mutated bool) {
	arg, _ := firstWord(cmd.Args)

	if arg == "cancel" {
		if err := s.machine.Cancel(session); err != nil {
			return "This proposal is not in FCP.", false
		}
		return "", true
	}

	disposition, ok := domain.ParseDisposition(arg)
	if !ok {
		return fmt.Sprintf("Unknown disposition %q. Known dispositions are: merge, close, postpone.", arg), false
	}

	if err := s.machine.Propose(session, cmd.Actor, disposition, members); err != nil {
		if errors.Is(err, fcp.ErrAlreadyProposed) {
			return "This proposal has already had an FCP proposed. Please cancel the current one first.", false
		}
		return "", false
	}
	return "", true
}

// push reconciles the external record with the evaluated session: status
// comment first, then labels, then any replies. Every write is diffed
// against the fetched state, so re-running a push is a no-op and a
// half-applied push is repaired by the next evaluation.
func (s *Service) push(ctx context.Context, snap *fcp.Snapshot, replies []string) error {
	session := snap.Session

	switch session.Status {
	case domain.SessionStatusProposed, domain.SessionStatusActive:
		body := fcp.RenderStatusComment(session, s.cfg.QuorumRatio)
		if err := s.ensureStatusComment(ctx, snap, body); err != nil {
			return err
		}
	}

	desired := s.machine.DesiredLabels(snap.Labels, session)
	if !sameLabelSet(desired, snap.Labels) {
		if err := s.record.SetLabels(ctx, session.Proposal, desired); err != nil {
			if !s.labelsAlreadyApplied(ctx, session.Proposal, desired) {
				return fmt.Errorf("push labels #%d: %w", session.Proposal, err)
			}
		}
	}

	for _, reply := range replies {
		if _, err := s.record.CreateComment(ctx, session.Proposal, reply); err != nil {
			return fmt.Errorf("post reply #%d: %w", session.Proposal, err)
		}
	}

	return nil
}

func (s *Service) ensureStatusComment(ctx context.Context, snap *fcp.Snapshot, body string) error {
	number := snap.Session.Proposal

	if snap.StatusComment == nil {
		if _, err := s.record.CreateComment(ctx, number, body); err != nil {
			return fmt.Errorf("post status comment #%d: %w", number, err)
		}
		return nil
	}

	if snap.StatusComment.Body == body {
		return nil
	}
	if err := s.record.UpdateComment(ctx, snap.StatusComment.ID, body); err != nil {
		// Verify before giving up: the edit may have landed even though
		// the call failed.
		current, getErr := s.record.GetComment(ctx, snap.StatusComment.ID)
		if getErr != nil || current.Body != body {
			return fmt.Errorf("update status comment #%d: %w", number, err)
		}
	}
	return nil
}

func (s *Service) labelsAlreadyApplied(ctx context.Context, number int, desired []string) bool {
	current, err := s.record.ListLabels(ctx, number)
	return err == nil && sameLabelSet(desired, current)
}

func (s *Service) clearTimer(ctx context.Context, proposal int) {
	err := s.timers.Delete(ctx, proposal)
	if err != nil && !errors.Is(err, repository.ErrTimerNotFound) {
		s.logger.Error("deleting FCP timer failed",
			zap.Int("proposal", proposal), zap.Error(err))
	}
}

func containsLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func sameLabelSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// firstWord splits off the first word of a command argument string.
func firstWord(args string) (first, rest string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
