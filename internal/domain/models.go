package domain

import "time"

// Proposal identifies one issue or pull request under review. Proposals are
// owned by the hosted repository; the bot only reads and labels them.
type Proposal struct {
	Number int
	Labels []string
}

type SessionStatus string

const (
	SessionStatusNone      SessionStatus = "NONE"
	SessionStatusProposed  SessionStatus = "PROPOSED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusFinished  SessionStatus = "FINISHED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusFinished || s == SessionStatusCancelled
}

type Disposition string

const (
	DispositionMerge    Disposition = "merge"
	DispositionClose    Disposition = "close"
	DispositionPostpone Disposition = "postpone"
)

func ParseDisposition(s string) (Disposition, bool) {
	switch Disposition(s) {
	case DispositionMerge, DispositionClose, DispositionPostpone:
		return Disposition(s), true
	}
	return "", false
}

type ConcernStatus string

const (
	ConcernStatusOpen     ConcernStatus = "OPEN"
	ConcernStatusResolved ConcernStatus = "RESOLVED"
)

type Concern struct {
	Text   string
	Raiser string
	Status ConcernStatus
}

// FCPSession is the derived consensus state of one proposal. It is rebuilt
// from the external record on every evaluation; only StartTime survives a
// restart, in the session store.
type FCPSession struct {
	Proposal    int
	Status      SessionStatus
	Disposition Disposition
	Proposer    string
	// Votes maps checklist login to ticked. Non-roster logins may appear
	// here (kept for display) but never count toward quorum.
	Votes    map[string]bool
	Concerns []Concern
	// StartTime is zero when unknown; elapsed-time rules do not apply then.
	StartTime time.Time
}

// OpenConcerns returns the concerns still blocking this session.
func (s *FCPSession) OpenConcerns() []Concern {
	var open []Concern
	for _, c := range s.Concerns {
		if c.Status == ConcernStatusOpen {
			open = append(open, c)
		}
	}
	return open
}

type Verb string

const (
	VerbFCP     Verb = "fcp"
	VerbConcern Verb = "concern"
	VerbResolve Verb = "resolve"
	VerbReview  Verb = "review"
)

// Command is one parsed bot instruction from a comment. Ephemeral: produced
// by the parser, consumed by the service, never persisted.
type Command struct {
	Actor     string
	Verb      Verb
	Args      string
	CommentID int64
	EditedAt  time.Time
}

// Labels is the configured label vocabulary on the hosted repository.
type Labels struct {
	Proposal            string
	ProposalInReview    string
	FCPProposed         string
	FCP                 string
	FCPFinished         string
	DispositionMerge    string
	DispositionClose    string
	DispositionPostpone string
	UnresolvedConcerns  string
}

// ForDisposition returns the label carrying the given disposition.
func (l Labels) ForDisposition(d Disposition) string {
	switch d {
	case DispositionClose:
		return l.DispositionClose
	case DispositionPostpone:
		return l.DispositionPostpone
	default:
		return l.DispositionMerge
	}
}

// Disposition maps a label name back to a disposition, if it carries one.
func (l Labels) Disposition(label string) (Disposition, bool) {
	switch label {
	case l.DispositionMerge:
		return DispositionMerge, true
	case l.DispositionClose:
		return DispositionClose, true
	case l.DispositionPostpone:
		return DispositionPostpone, true
	}
	return "", false
}
