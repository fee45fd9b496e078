package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

const keyPrefix = "tasks:"

// cachedPage is the stored representation of one task list page.
type cachedPage struct {
	Tasks []domain.Task `json:"tasks"`
	Total int           `json:"total"`
}

// TaskCache implements repository.TaskCache using Redis. Each page of a
// user's task list is cached under its own key; any write to the user's tasks
// invalidates every page.
type TaskCache struct {
	client *redis.Client
}

// NewTaskCache creates a new Redis-backed task list cache.
func NewTaskCache(client *redis.Client) *TaskCache {
	return &TaskCache{client: client}
}

func pageKey(userID string, params pagination.Params) string {
	return fmt.Sprintf("%s%s:p%d:n%d", keyPrefix, userID, params.Page, params.PerPage)
}

// GetList retrieves a cached task list page. The third return value reports
// whether the page was present.
func (c *TaskCache) GetList(ctx context.Context, userID string, params pagination.Params) ([]domain.Task, int, bool, error) {
	data, err := c.client.Get(ctx, pageKey(userID, params)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("redis get task page: %w", err)
	}

	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, 0, false, fmt.Errorf("unmarshal task page: %w", err)
	}

	return page.Tasks, page.Total, true, nil
}

// SetList caches a task list page with the given TTL.
func (c *TaskCache) SetList(ctx context.Context, userID string, params pagination.Params, tasks []domain.Task, total int, ttl time.Duration) error {
	data, err := json.Marshal(cachedPage{Tasks: tasks, Total: total})
	if err != nil {
		return fmt.Errorf("marshal task page: %w", err)
	}

	if err := c.client.Set(ctx, pageKey(userID, params), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set task page: %w", err)
	}

	return nil
}

// Invalidate drops all cached pages for the user.
func (c *TaskCache) Invalidate(ctx context.Context, userID string) error {
	pattern := keyPrefix + userID + ":*"

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan task pages: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del task pages: %w", err)
	}

	return nil
}
