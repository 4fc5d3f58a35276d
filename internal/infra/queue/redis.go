package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"editorial-queue/internal/domain"
)

// RedisReindexQueue реализует очередь задач сверки на базе Redis lists.
// Запасной транспорт для окружений без брокера.
type RedisReindexQueue struct {
	client *redis.Client
	key    string
}

// NewRedisReindexQueue создаёт очередь по указанному ключу.
func NewRedisReindexQueue(client *redis.Client, key string) *RedisReindexQueue {
	return &RedisReindexQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisReindexQueue) Enqueue(ctx context.Context, job domain.ReindexJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. При неуспешной обработке ack возвращает
// сырой payload обратно в очередь.
func (q *RedisReindexQueue) Receive(ctx context.Context) (domain.ReindexJob, domain.ReindexAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ReindexJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ReindexJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ReindexJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ReindexJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := res[1]
		var job domain.ReindexJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			return domain.ReindexJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
