package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTimerNotFound = errors.New("fcp timer not found")

// Timer is one persisted FCP start timestamp. It is the single fact the
// bot keeps outside the external record: when a window started cannot be
// re-derived from comments after edits.
type Timer struct {
	Proposal  int
	StartedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, proposal int) (time.Time, bool, error) {
	var startedAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT started_at FROM fcp_timers WHERE proposal_num = $1`, proposal,
	).Scan(&startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select fcp timer: %w", err)
	}
	return startedAt, true, nil
}

func (r *Repository) Upsert(ctx context.Context, proposal int, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fcp_timers (proposal_num, started_at)
		VALUES ($1, $2)
		ON CONFLICT (proposal_num) DO UPDATE SET started_at = EXCLUDED.started_at
	`, proposal, startedAt)
	if err != nil {
		return fmt.Errorf("upsert fcp timer: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, proposal int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM fcp_timers WHERE proposal_num = $1`, proposal)
	if err != nil {
		return fmt.Errorf("delete fcp timer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTimerNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]Timer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT proposal_num, started_at FROM fcp_timers ORDER BY proposal_num`)
	if err != nil {
		return nil, fmt.Errorf("select fcp timers: %w", err)
	}
	defer rows.Close()

	var timers []Timer
	for rows.Next() {
		var t Timer
		if err := rows.Scan(&t.Proposal, &t.StartedAt); err != nil {
			return nil, fmt.Errorf("scan fcp timer: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fcp timers: %w", err)
	}

	return timers, nil
}
