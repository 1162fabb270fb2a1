// Package fcp holds the consensus core: the session ledger, the lifecycle
// state machine, the status comment codec and the reconciler that rebuilds
// a session from the external record.
package fcp

import (
	"github.com/bubelovv/fcp-bot/internal/domain"
)

// QuorumReached reports whether the ticked roster members meet the required
// ratio. Only roster members enter either side of the fraction; stray ticks
// from non-members stay in the checklist but are ignored here.
func QuorumReached(votes map[string]bool, roster map[string]struct{}, ratio float64) bool {
	if len(roster) == 0 {
		return false
	}
	ticked := 0
	for login := range roster {
		if votes[login] {
			ticked++
		}
	}
	return float64(ticked)/float64(len(roster)) >= ratio
}

// findConcern returns the index of the concern matching text, or -1.
func findConcern(concerns []domain.Concern, text string) int {
	key := NormalizeConcern(text)
	for i, c := range concerns {
		if NormalizeConcern(c.Text) == key {
			return i
		}
	}
	return -1
}

// raiseConcern appends a new open concern, or reopens a resolved one with
// the same normalized text. Returns false when the concern is already open.
func raiseConcern(s *domain.FCPSession, text, raiser string) bool {
	if i := findConcern(s.Concerns, text); i >= 0 {
		if s.Concerns[i].Status == domain.ConcernStatusOpen {
			return false
		}
		s.Concerns[i].Status = domain.ConcernStatusOpen
		return true
	}
	s.Concerns = append(s.Concerns, domain.Concern{
		Text:   text,
		Raiser: raiser,
		Status: domain.ConcernStatusOpen,
	})
	return true
}

// resolveConcern marks the matching open concern resolved. Returns false
// when no open concern matches.
func resolveConcern(s *domain.FCPSession, text string) bool {
	i := findConcern(s.Concerns, text)
	if i < 0 || s.Concerns[i].Status != domain.ConcernStatusOpen {
		return false
	}
	s.Concerns[i].Status = domain.ConcernStatusResolved
	return true
}
