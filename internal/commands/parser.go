// Package commands extracts bot commands from free-text comments.
//
// A line is a command only when its first word is the bot's own mention.
// Everything else in a comment is discussion and is left alone; unknown
// verbs are skipped for the same reason. Parsing is pure: the same comment
// always yields the same commands, in top-to-bottom order.
package commands

import (
	"strings"
	"time"

	"github.com/bubelovv/fcp-bot/internal/domain"
)

// Comment is the slice of a webhook delivery the parser needs.
type Comment struct {
	ID       int64
	Author   string
	Body     string
	EditedAt time.Time
}

// Key identifies one parse of one comment revision. Callers deduplicate
// redelivered webhooks on it: an unedited comment keeps its key.
type Key struct {
	CommentID int64
	EditedAt  time.Time
}

func (c Comment) Key() Key {
	return Key{CommentID: c.ID, EditedAt: c.EditedAt}
}

// Parse returns the commands contained in a comment, in the order they
// appear. botUser is the bot's own login, without the "@".
func Parse(botUser string, c Comment) []domain.Command {
	mention := "@" + botUser

	var cmds []domain.Command
	for _, line := range strings.Split(c.Body, "\n") {
		words := strings.Fields(line)
		if len(words) < 2 || words[0] != mention {
			continue
		}

		verb, ok := parseVerb(words[1])
		if !ok {
			continue
		}

		cmds = append(cmds, domain.Command{
			Actor:     c.Author,
			Verb:      verb,
			Args:      strings.Join(words[2:], " "),
			CommentID: c.ID,
			EditedAt:  c.EditedAt,
		})
	}

	return cmds
}

func parseVerb(word string) (domain.Verb, bool) {
	switch strings.ToLower(word) {
	case "fcp":
		return domain.VerbFCP, true
	case "concern":
		return domain.VerbConcern, true
	case "resolve", "resolved":
		return domain.VerbResolve, true
	case "review", "reviewed":
		return domain.VerbReview, true
	}
	return "", false
}
