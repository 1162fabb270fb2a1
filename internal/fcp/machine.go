package fcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/bubelovv/fcp-bot/internal/domain"
)

var (
	ErrNotInFCP        = errors.New("proposal is not in FCP")
	ErrAlreadyProposed = errors.New("an FCP has already been proposed")
)

// Machine applies lifecycle transitions to a session. It is pure: every
// method mutates only the session and reports what changed; pushing those
// changes to the external record is the caller's job.
type Machine struct {
	labels domain.Labels
	window time.Duration
	ratio  float64
}

func NewMachine(labels domain.Labels, window time.Duration, ratio float64) *Machine {
	return &Machine{labels: labels, window: window, ratio: ratio}
}

// Propose starts an FCP with the given disposition. The proposer's own
// checklist box starts ticked. Valid from None only; a Proposed or Active
// session keeps its disposition, which is immutable once set.
func (m *Machine) Propose(s *domain.FCPSession, actor string, disposition domain.Disposition, roster map[string]struct{}) error {
	switch s.Status {
	case domain.SessionStatusNone:
	case domain.SessionStatusProposed, domain.SessionStatusActive:
		return ErrAlreadyProposed
	default:
		return fmt.Errorf("propose from %s: %w", s.Status, ErrNotInFCP)
	}

	s.Status = domain.SessionStatusProposed
	s.Disposition = disposition
	s.Proposer = actor
	// A fresh session: concerns and ticks from an earlier, cancelled FCP
	// do not carry over.
	s.Concerns = nil
	s.Votes = make(map[string]bool, len(roster))
	for login := range roster {
		s.Votes[login] = login == actor
	}
	return nil
}

// Cancel aborts a Proposed or Active session.
func (m *Machine) Cancel(s *domain.FCPSession) error {
	if s.Status != domain.SessionStatusProposed && s.Status != domain.SessionStatusActive {
		return ErrNotInFCP
	}
	s.Status = domain.SessionStatusCancelled
	return nil
}

// RaiseConcern records a blocking objection. Accepted while a session is
// Proposed or Active; re-raising a resolved concern reopens it. Returns
// whether the session changed.
func (m *Machine) RaiseConcern(s *domain.FCPSession, actor, text string) (bool, error) {
	if s.Status != domain.SessionStatusProposed && s.Status != domain.SessionStatusActive {
		return false, ErrNotInFCP
	}
	if text == "" {
		return false, nil
	}
	return raiseConcern(s, text, actor), nil
}

// ResolveConcern marks a matching open concern resolved. Returns whether
// the session changed.
func (m *Machine) ResolveConcern(s *domain.FCPSession, text string) (bool, error) {
	if s.Status != domain.SessionStatusProposed && s.Status != domain.SessionStatusActive {
		return false, ErrNotInFCP
	}
	if text == "" {
		return false, nil
	}
	return resolveConcern(s, text), nil
}

// Review ticks the actor's checklist box. Ticks from logins outside the
// roster are kept for display but never counted toward quorum.
func (m *Machine) Review(s *domain.FCPSession, actor string) (bool, error) {
	if s.Status != domain.SessionStatusProposed && s.Status != domain.SessionStatusActive {
		return false, ErrNotInFCP
	}
	if s.Votes == nil {
		s.Votes = map[string]bool{}
	}
	if s.Votes[actor] {
		return false, nil
	}
	s.Votes[actor] = true
	return true, nil
}

// TryActivate promotes Proposed to Active when quorum is reached and no
// concern is open. Returns whether the transition happened; the caller
// persists the start timestamp.
func (m *Machine) TryActivate(s *domain.FCPSession, roster map[string]struct{}, now time.Time) bool {
	if s.Status != domain.SessionStatusProposed {
		return false
	}
	if len(s.OpenConcerns()) > 0 {
		return false
	}
	if !QuorumReached(s.Votes, roster, m.ratio) {
		return false
	}
	s.Status = domain.SessionStatusActive
	s.StartTime = now
	return true
}

// TryFinish promotes Active to Finished when the window has elapsed and no
// concern is open. A zero StartTime means the start is unknown, and
// elapsed-time rules do not apply until it is known.
func (m *Machine) TryFinish(s *domain.FCPSession, now time.Time) bool {
	if s.Status != domain.SessionStatusActive {
		return false
	}
	if s.StartTime.IsZero() {
		return false
	}
	if len(s.OpenConcerns()) > 0 {
		return false
	}
	if now.Sub(s.StartTime) < m.window {
		return false
	}
	s.Status = domain.SessionStatusFinished
	return true
}

// DesiredLabels computes the label set the external record should carry for
// a session. Labels outside the bot's vocabulary pass through untouched;
// the proposal and proposal-in-review labels are human-managed and also
// pass through.
func (m *Machine) DesiredLabels(current []string, s *domain.FCPSession) []string {
	managed := map[string]struct{}{
		m.labels.FCPProposed:         {},
		m.labels.FCP:                 {},
		m.labels.FCPFinished:         {},
		m.labels.DispositionMerge:    {},
		m.labels.DispositionClose:    {},
		m.labels.DispositionPostpone: {},
		m.labels.UnresolvedConcerns:  {},
	}

	desired := make([]string, 0, len(current)+3)
	for _, l := range current {
		if _, ok := managed[l]; !ok {
			desired = append(desired, l)
		}
	}

	switch s.Status {
	case domain.SessionStatusProposed:
		desired = append(desired, m.labels.FCPProposed, m.labels.ForDisposition(s.Disposition))
	case domain.SessionStatusActive:
		desired = append(desired, m.labels.FCP, m.labels.ForDisposition(s.Disposition))
	case domain.SessionStatusFinished:
		desired = append(desired, m.labels.FCPFinished, m.labels.ForDisposition(s.Disposition))
	}

	if (s.Status == domain.SessionStatusProposed || s.Status == domain.SessionStatusActive) &&
		len(s.OpenConcerns()) > 0 {
		desired = append(desired, m.labels.UnresolvedConcerns)
	}

	return desired
}
