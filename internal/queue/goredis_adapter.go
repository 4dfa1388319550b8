// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// goRedisClient adapts a real go-redis Cmdable to RedisClient.
type goRedisClient struct {
	cmd redis.Cmdable
}

// NewGoRedisClient wraps a github.com/redis/go-redis/v9 client (or
// cluster client, they share the Cmdable interface) as a RedisClient.
func NewGoRedisClient(cmd redis.Cmdable) RedisClient {
	return &goRedisClient{cmd: cmd}
}

func (c *goRedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error) {
	return c.cmd.Eval(ctx, script, keys, args...).Int64()
}

func (c *goRedisClient) BLPop(ctx context.Context, timeout time.Duration, key string) (string, bool, error) {
	res, err := c.cmd.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (c *goRedisClient) RPush(ctx context.Context, key string, value string) error {
	return c.cmd.RPush(ctx, key, value).Err()
}

func (c *goRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.cmd.Expire(ctx, key, ttl).Err()
}

func (c *goRedisClient) LLen(ctx context.Context, key string) (int64, error) {
	return c.cmd.LLen(ctx, key).Result()
}
