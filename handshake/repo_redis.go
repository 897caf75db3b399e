package handshake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/podwatch-dev/podwatch/internal/cryptobox"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "podwatch:handshake:"

// RedisRepo persists handshake records in Redis with native TTL expiry.
type RedisRepo struct {
	client *redis.Client
	box    *cryptobox.Box
	ttl    time.Duration
}

// NewRedisRepo creates a Redis backed handshake repository. box may be nil
// for plaintext payloads.
func NewRedisRepo(client *redis.Client, box *cryptobox.Box, ttl time.Duration) *RedisRepo {
	return &RedisRepo{
		client: client,
		box:    box,
		ttl:    ttl,
	}
}

var _ Repo = (*RedisRepo)(nil)

func (r *RedisRepo) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.State == "" {
		return errors.New("state cannot be empty")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] marshal")
	}
	sealed, err := r.box.Seal(payload)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] seal")
	}

	if err := r.client.Set(ctx, redisKeyPrefix+rec.State, sealed, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] set")
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, state string) (*Record, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	sealed, err := r.client.Get(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] get")
	}

	payload, err := r.box.Open(sealed)
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] open")
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] unmarshal")
	}
	rec.State = state
	return &rec, nil
}

func (r *RedisRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if err := r.client.Del(ctx, redisKeyPrefix+state).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Delete] del")
	}
	return nil
}
