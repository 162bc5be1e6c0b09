// Package summary serves per-project packaging summaries from Redis, computed
// from SQL on a miss. The cache is best effort: Redis failures never fail a read.
package summary

import (
	"context"

	"go.uber.org/zap"

	"bomdesk/logging"
	"bomdesk/store"
)

type Manager struct {
	db    *store.DB
	redis *RedisStore
	log   *zap.Logger
}

// NewManager returns a manager. A nil redis store disables caching.
func NewManager(db *store.DB, redis *RedisStore, log *zap.Logger) *Manager {
	return &Manager{db: db, redis: redis, log: logging.OrNop(log).Named("summary")}
}

// Get reads the summary from Redis, falling back to SQL and refreshing the
// cache with the computed value.
func (m *Manager) Get(ctx context.Context, projectID string) (*store.ProjectTotals, error) {
	if m.redis != nil {
		t, err := m.redis.Get(ctx, projectID)
		if err == nil && t != nil {
			return t, nil
		}
		if err != nil {
			m.log.Debug("summary cache read failed", zap.String("project", projectID), zap.Error(err))
		}
	}

	t, err := m.db.ProjectTotals(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if m.redis != nil {
		if err := m.redis.Set(ctx, t); err != nil {
			m.log.Debug("summary cache write failed", zap.String("project", projectID), zap.Error(err))
		}
	}
	return t, nil
}

// Invalidate drops the cached summary of a project, or of every project
// when projectID is empty.
func (m *Manager) Invalidate(ctx context.Context, projectID string) {
	if m.redis == nil {
		return
	}
	var err error
	if projectID == "" {
		err = m.redis.DeleteAll(ctx)
	} else {
		err = m.redis.Delete(ctx, projectID)
	}
	if err != nil {
		m.log.Warn("summary cache invalidation failed", zap.String("project", projectID), zap.Error(err))
	}
}

// Healthy reports whether the cache backend answers. A disabled cache is healthy.
func (m *Manager) Healthy(ctx context.Context) bool {
	if m.redis == nil {
		return true
	}
	return m.redis.Ping(ctx) == nil
}

// Enabled reports whether a Redis cache is configured.
func (m *Manager) Enabled() bool { return m.redis != nil }
