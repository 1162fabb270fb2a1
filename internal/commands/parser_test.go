package commands

import (
	"testing"
	"time"

	"github.com/bubelovv/fcp-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	edited := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
		want []domain.Command
	}{
		{
			name: "fcp with disposition",
			body: "@fcpbot fcp merge",
			want: []domain.Command{{Actor: "alice", Verb: domain.VerbFCP, Args: "merge"}},
		},
		{
			name: "concern keeps argument text",
			body: "@fcpbot concern this breaks older clients",
			want: []domain.Command{{Actor: "alice", Verb: domain.VerbConcern, Args: "this breaks older clients"}},
		},
		{
			name: "command must start the line",
			body: "I think @fcpbot fcp merge would be premature",
			want: nil,
		},
		{
			name: "mention alone is not a command",
			body: "@fcpbot",
			want: nil,
		},
		{
			name: "unknown verb is discussion, not an error",
			body: "@fcpbot dance",
			want: nil,
		},
		{
			name: "partial mention does not match",
			body: "@fcpbot2 fcp merge",
			want: nil,
		},
		{
			name: "multiple commands keep comment order",
			body: "Some prose first.\n@fcpbot concern naming\nmore prose\n@fcpbot resolve naming",
			want: []domain.Command{
				{Actor: "alice", Verb: domain.VerbConcern, Args: "naming"},
				{Actor: "alice", Verb: domain.VerbResolve, Args: "naming"},
			},
		},
		{
			name: "verb aliases",
			body: "@fcpbot reviewed\n@fcpbot resolved old concern",
			want: []domain.Command{
				{Actor: "alice", Verb: domain.VerbReview, Args: ""},
				{Actor: "alice", Verb: domain.VerbResolve, Args: "old concern"},
			},
		},
		{
			name: "leading whitespace is tolerated",
			body: "  @fcpbot review",
			want: []domain.Command{{Actor: "alice", Verb: domain.VerbReview, Args: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse("fcpbot", Comment{ID: 7, Author: "alice", Body: tt.body, EditedAt: edited})

			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.Actor, got[i].Actor)
				assert.Equal(t, want.Verb, got[i].Verb)
				assert.Equal(t, want.Args, got[i].Args)
				assert.Equal(t, int64(7), got[i].CommentID)
				assert.Equal(t, edited, got[i].EditedAt)
			}
		})
	}
}

func TestParseIsPure(t *testing.T) {
	c := Comment{ID: 3, Author: "bob", Body: "@fcpbot fcp close\n@fcpbot concern one", EditedAt: time.Now()}
	first := Parse("fcpbot", c)
	second := Parse("fcpbot", c)
	assert.Equal(t, first, second)
}

func TestKeyChangesWithEdit(t *testing.T) {
	c := Comment{ID: 3, EditedAt: time.Unix(100, 0)}
	edited := c
	edited.EditedAt = time.Unix(200, 0)

	assert.Equal(t, c.Key(), c.Key())
	assert.NotEqual(t, c.Key(), edited.Key())
}
