package fcp

import (
	"context"
	"testing"
	"time"

	"github.com/bubelovv/fcp-bot/internal/domain"
	"github.com/bubelovv/fcp-bot/internal/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecord struct {
	labels   []string
	comments []github.Comment
}

func (f *fakeRecord) ListLabels(context.Context, int) ([]string, error) {
	return append([]string(nil), f.labels...), nil
}

func (f *fakeRecord) ListComments(context.Context, int) ([]github.Comment, error) {
	return append([]github.Comment(nil), f.comments...), nil
}

type fakeTimers struct {
	rows map[int]time.Time
}

func (f *fakeTimers) Get(_ context.Context, proposal int) (time.Time, bool, error) {
	t, ok := f.rows[proposal]
	return t, ok, nil
}

func TestReconcileDerivesSessionFromRecord(t *testing.T) {
	start := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	body := RenderStatusComment(&domain.FCPSession{
		Status:      domain.SessionStatusActive,
		Disposition: domain.DispositionMerge,
		Proposer:    "alice",
		Votes:       map[string]bool{"alice": true, "bob": true, "carol": false},
		Concerns: []domain.Concern{
			{Text: "edge cases unclear", Raiser: "carol", Status: domain.ConcernStatusOpen},
		},
	}, 0.75)

	record := &fakeRecord{
		labels: []string{"proposal", "final-comment-period", "disposition-merge"},
		comments: []github.Comment{
			{ID: 1, Author: "alice", Body: "please have a look"},
			{ID: 2, Author: "fcpbot", Body: body},
			{ID: 3, Author: "carol", Body: "@fcpbot concern edge cases unclear"},
		},
	}
	timers := &fakeTimers{rows: map[int]time.Time{42: start}}

	r := NewReconciler(record, timers, testLabels, "fcpbot", zap.NewNop())
	snap, err := r.Reconcile(context.Background(), 42)
	require.NoError(t, err)

	s := snap.Session
	assert.Equal(t, domain.SessionStatusActive, s.Status)
	assert.Equal(t, domain.DispositionMerge, s.Disposition)
	assert.Equal(t, "alice", s.Proposer)
	assert.Equal(t, map[string]bool{"alice": true, "bob": true, "carol": false}, s.Votes)
	require.Len(t, s.Concerns, 1)
	assert.Equal(t, domain.ConcernStatusOpen, s.Concerns[0].Status)
	assert.Equal(t, start, s.StartTime)

	require.NotNil(t, snap.StatusComment)
	assert.Equal(t, int64(2), snap.StatusComment.ID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	body := RenderStatusComment(&domain.FCPSession{
		Status:      domain.SessionStatusProposed,
		Disposition: domain.DispositionClose,
		Proposer:    "bob",
		Votes:       map[string]bool{"bob": true, "alice": false},
	}, 0.75)

	record := &fakeRecord{
		labels:   []string{"proposal", "proposed-final-comment-period", "disposition-close"},
		comments: []github.Comment{{ID: 9, Author: "fcpbot", Body: body}},
	}
	timers := &fakeTimers{rows: map[int]time.Time{}}
	r := NewReconciler(record, timers, testLabels, "fcpbot", zap.NewNop())

	first, err := r.Reconcile(context.Background(), 7)
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, first.Session, second.Session)
	assert.Equal(t, first.Labels, second.Labels)
}

func TestReconcileStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   domain.SessionStatus
	}{
		{"no fcp labels", []string{"proposal"}, domain.SessionStatusNone},
		{"proposed", []string{"proposal", "proposed-final-comment-period"}, domain.SessionStatusProposed},
		{"active", []string{"proposal", "final-comment-period"}, domain.SessionStatusActive},
		{"finished", []string{"proposal", "finished-final-comment-period"}, domain.SessionStatusFinished},
		{
			"contradictory labels read as none",
			[]string{"proposal", "final-comment-period", "proposed-final-comment-period"},
			domain.SessionStatusNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &fakeRecord{labels: tt.labels}
			r := NewReconciler(record, &fakeTimers{}, testLabels, "fcpbot", zap.NewNop())

			snap, err := r.Reconcile(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Session.Status)
		})
	}
}

func TestReconcilePicksNewestStatusComment(t *testing.T) {
	old := RenderStatusComment(&domain.FCPSession{
		Status: domain.SessionStatusProposed, Disposition: domain.DispositionMerge,
		Proposer: "alice", Votes: map[string]bool{"alice": true},
	}, 0.75)
	newer := RenderStatusComment(&domain.FCPSession{
		Status: domain.SessionStatusProposed, Disposition: domain.DispositionClose,
		Proposer: "bob", Votes: map[string]bool{"bob": true},
	}, 0.75)

	record := &fakeRecord{
		labels: []string{"proposal", "proposed-final-comment-period"},
		comments: []github.Comment{
			{ID: 1, Author: "fcpbot", Body: old},
			{ID: 2, Author: "someone", Body: "Team member @fake has proposed to merge this"},
			{ID: 3, Author: "fcpbot", Body: newer},
		},
	}
	r := NewReconciler(record, &fakeTimers{}, testLabels, "fcpbot", zap.NewNop())

	snap, err := r.Reconcile(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, snap.StatusComment)
	assert.Equal(t, int64(3), snap.StatusComment.ID)
	assert.Equal(t, "bob", snap.Session.Proposer)
}
