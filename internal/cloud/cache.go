// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunStatusKey is the Redis key holding the live status of a run.
func RunStatusKey(runID string) string {
	return fmt.Sprintf("video:run:%s:status", runID)
}

// RedisStatusCache keeps the live status of pipeline runs in Redis. Entries expire
// after TTL; the durable record lives in BigQuery.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(redisURL string, ttl time.Duration) (*RedisStatusCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStatusCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (c *RedisStatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatusCache) SetRunStatus(ctx context.Context, runID string, status string) error {
	return c.client.Set(ctx, RunStatusKey(runID), status, c.ttl).Err()
}

func (c *RedisStatusCache) GetRunStatus(ctx context.Context, runID string) (string, bool, error) {
	val, err := c.client.Get(ctx, RunStatusKey(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisStatusCache) DeleteRunStatus(ctx context.Context, runID string) error {
	return c.client.Del(ctx, RunStatusKey(runID)).Err()
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}
