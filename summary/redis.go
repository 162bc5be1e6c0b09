package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bomdesk/store"
)

// RedisStore caches per-project packaging summaries.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func summaryKey(projectID string) string {
	return fmt.Sprintf("bomdesk:project:%s:summary", projectID)
}

const allProjectsKey = "bomdesk:projects"

func (r *RedisStore) Set(ctx context.Context, t *store.ProjectTotals) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, summaryKey(t.ProjectID), data, r.ttl)
	pipe.SAdd(ctx, allProjectsKey, t.ProjectID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the cached summary, or nil without error on a cache miss.
func (r *RedisStore) Get(ctx context.Context, projectID string) (*store.ProjectTotals, error) {
	data, err := r.client.Get(ctx, summaryKey(projectID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t store.ProjectTotals
	return &t, json.Unmarshal(data, &t)
}

func (r *RedisStore) Delete(ctx context.Context, projectID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, summaryKey(projectID))
	pipe.SRem(ctx, allProjectsKey, projectID)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteAll drops every cached summary.
func (r *RedisStore) DeleteAll(ctx context.Context) error {
	ids, err := r.client.SMembers(ctx, allProjectsKey).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, summaryKey(id))
	}
	keys = append(keys, allProjectsKey)
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
