package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const UpdatesChannel = "presence:updates"

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Update is published on UpdatesChannel for every transition.
type Update struct {
	User       string `json:"user"`
	Status     Status `json:"status"`
	OccurredAt int64  `json:"occurred_at"`
}

type Store interface {
	SetStatus(ctx context.Context, userKey string, status Status) error
	Refresh(ctx context.Context, userKeys []string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func userKey(key string) string {
	return "presence:user:" + key
}

func (s *RedisStore) SetStatus(ctx context.Context, key string, status Status) error {
	payload, err := json.Marshal(Update{User: key, Status: status, OccurredAt: s.now().Unix()})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if status == StatusOnline {
		pipe.Set(ctx, userKey(key), string(status), s.ttl)
	} else {
		pipe.Del(ctx, userKey(key))
	}
	pipe.Publish(ctx, UpdatesChannel, payload)

	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Refresh(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.Expire(ctx, userKey(k), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
