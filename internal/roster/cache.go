// Package roster caches the authorized team's membership.
//
// Quorum math has to keep working through transient membership-API outages,
// so a failed refresh serves the last-known set and flags it degraded
// instead of failing the evaluation.
package roster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source lists the team's member logins.
type Source interface {
	TeamMembers(ctx context.Context, org, team string) ([]string, error)
}

type Cache struct {
	source Source
	org    string
	team   string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	members   map[string]struct{}
	fetchedAt time.Time
}

func NewCache(source Source, org, team string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		source: source,
		org:    org,
		team:   team,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Members returns the current roster snapshot. degraded is true when the
// snapshot is older than the TTL and the refresh that should have replaced
// it failed; the stale set is still returned so callers can keep going.
func (c *Cache) Members(ctx context.Context) (members map[string]struct{}, degraded bool, err error) {
	c.mu.RLock()
	fresh := c.members != nil && c.now().Sub(c.fetchedAt) < c.ttl
	snapshot := c.members
	c.mu.RUnlock()

	if fresh {
		return snapshot, false, nil
	}

	if refreshErr := c.refresh(ctx); refreshErr != nil {
		c.mu.RLock()
		snapshot = c.members
		c.mu.RUnlock()

		if snapshot == nil {
			// Nothing to serve stale; the very first fetch failed.
			return nil, false, fmt.Errorf("roster refresh: %w", refreshErr)
		}
		c.logger.Warn("roster refresh failed, serving stale set",
			zap.Error(refreshErr),
			zap.Int("members", len(snapshot)),
		)
		return snapshot, true, nil
	}

	c.mu.RLock()
	snapshot = c.members
	c.mu.RUnlock()
	return snapshot, false, nil
}

// Contains reports whether a login is on the roster, under the same
// staleness rules as Members.
func (c *Cache) Contains(ctx context.Context, login string) (bool, error) {
	members, _, err := c.Members(ctx)
	if err != nil {
		return false, err
	}
	_, ok := members[login]
	return ok, nil
}

// refresh is single-writer: concurrent callers that both see a stale
// snapshot serialize here, and the second one finds it fresh again.
func (c *Cache) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.members != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return nil
	}

	logins, err := c.source.TeamMembers(ctx, c.org, c.team)
	if err != nil {
		return err
	}

	members := make(map[string]struct{}, len(logins))
	for _, l := range logins {
		members[l] = struct{}{}
	}
	c.members = members
	c.fetchedAt = c.now()

	c.logger.Debug("roster refreshed",
		zap.String("team", c.org+"/"+c.team),
		zap.Int("members", len(members)),
	)
	return nil
}
