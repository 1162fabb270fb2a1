package fcp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bubelovv/fcp-bot/internal/domain"
)

// The status comment is the bot's half of the external record: a checklist
// of reviewer ticks and a concern list, readable by humans and re-parseable
// by the bot. Its leading "Team member @" line doubles as the marker that
// identifies it among a proposal's comments.

const statusCommentMarker = "Team member @"

var (
	headerRe    = regexp.MustCompile(`^Team member @(\S+) has proposed to (merge|close|postpone) this`)
	checklistRe = regexp.MustCompile(`^[-*] \[([ xX])\] @(\S+)\s*$`)
	concernRe   = regexp.MustCompile(`^[*-] (.+?)(?: \(@(\S+)\))?\s*$`)
	resolvedRe  = regexp.MustCompile(`^~~(.*)~~$`)
)

// IsStatusComment reports whether a comment body is the bot's status comment.
func IsStatusComment(body string) bool {
	return strings.HasPrefix(body, statusCommentMarker)
}

// RenderStatusComment produces the status comment body for a session.
// Checklist order is sorted by login so the rendering is deterministic and
// an unchanged session renders to a byte-identical body.
func RenderStatusComment(s *domain.FCPSession, quorumRatio float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Team member @%s has proposed to %s this. The next step is review by the rest of the tagged people:\n\n",
		s.Proposer, s.Disposition)

	logins := make([]string, 0, len(s.Votes))
	for login := range s.Votes {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	for _, login := range logins {
		box := " "
		if s.Votes[login] {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] @%s\n", box, login)
	}

	if len(s.Concerns) > 0 {
		b.WriteString("\nConcerns:\n\n")
		// Open concerns first, then resolved.
		concerns := make([]domain.Concern, len(s.Concerns))
		copy(concerns, s.Concerns)
		sort.SliceStable(concerns, func(i, j int) bool {
			return concerns[i].Status == domain.ConcernStatusOpen &&
				concerns[j].Status != domain.ConcernStatusOpen
		})
		for _, c := range concerns {
			text := c.Text
			if c.Status == domain.ConcernStatusResolved {
				text = "~~" + text + "~~"
			}
			fmt.Fprintf(&b, "* %s (@%s)\n", text, c.Raiser)
		}
	}

	fmt.Fprintf(&b, "\nOnce at least %d%% of reviewers approve and no concerns remain open, this proposal will enter its final comment period.\n",
		int(quorumRatio*100))

	return b.String()
}

// ParseStatusComment reconstructs votes, concerns and the proposer from a
// status comment body. Unparsable lines are skipped, never an error: the
// comment is human-editable and a mangled line must read as "no vote".
func ParseStatusComment(body string) (proposer string, disposition domain.Disposition, votes map[string]bool, concerns []domain.Concern) {
	votes = map[string]bool{}

	inConcerns := false
	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")

		if i == 0 {
			if m := headerRe.FindStringSubmatch(line); m != nil {
				proposer = m[1]
				disposition = domain.Disposition(m[2])
			}
			continue
		}

		if strings.TrimSpace(line) == "Concerns:" {
			inConcerns = true
			continue
		}

		if m := checklistRe.FindStringSubmatch(line); m != nil {
			votes[m[2]] = m[1] != " "
			continue
		}

		if inConcerns {
			m := concernRe.FindStringSubmatch(line)
			if m == nil {
				if strings.TrimSpace(line) != "" {
					inConcerns = false
				}
				continue
			}
			text := m[1]
			status := domain.ConcernStatusOpen
			if rm := resolvedRe.FindStringSubmatch(text); rm != nil {
				text = rm[1]
				status = domain.ConcernStatusResolved
			}
			concerns = append(concerns, domain.Concern{
				Text:   text,
				Raiser: m[2],
				Status: status,
			})
		}
	}

	return proposer, disposition, votes, concerns
}

// NormalizeConcern is the matching key for concern text. Concerns are
// identified by content, not position, so matching is case- and
// whitespace-insensitive.
func NormalizeConcern(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
