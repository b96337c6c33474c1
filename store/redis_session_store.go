package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
	"github.com/go-redis/redis/v8"
)

const maxTxRetries = 16

// RedisSessionStore keeps one JSON document per user. Read-modify-write goes
// through WATCH/MULTI so concurrent writers on the same key retry instead of
// overwriting each other.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionStore(redisClient *RedisClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSessionStore{
		client: redisClient,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisSessionStore) key(userID string) string {
	return s.client.generateKey("session", userID)
}

func (s *RedisSessionStore) Get(ctx context.Context, userID string) (types.Session, error) {
	var session types.Session
	if err := s.client.Get(ctx, s.key(userID), &session); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return types.Session{}, fmt.Errorf("%w: %s", types.ErrSessionNotFound, userID)
		}
		return types.Session{}, err
	}
	return session, nil
}

func (s *RedisSessionStore) GetOrCreate(ctx context.Context, userID string, chatID int64) (types.Session, error) {
	key := s.key(userID)
	fresh := types.NewSession(userID, chatID, s.now())
	data, err := json.Marshal(fresh)
	if err != nil {
		return types.Session{}, err
	}
	created, err := s.client.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return types.Session{}, err
	}
	if created {
		return fresh, nil
	}
	session, err := s.Get(ctx, userID)
	if err != nil {
		return types.Session{}, err
	}
	if chatID != 0 && session.ChatID != chatID {
		return s.AtomicUpdate(ctx, userID, func(cur types.Session) (types.Session, error) {
			cur.ChatID = chatID
			return cur, nil
		})
	}
	return session, nil
}

func (s *RedisSessionStore) AtomicUpdate(ctx context.Context, userID string, fn types.UpdateFunc) (types.Session, error) {
	key := s.key(userID)
	var (
		prior types.Session
		next  types.Session
		fnErr error
	)

	txf := func(tx *redis.Tx) error {
		fnErr = nil
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, userID)
		}
		if err != nil {
			return err
		}
		prior = types.Session{}
		if err := json.Unmarshal(data, &prior); err != nil {
			return err
		}
		next, fnErr = applyUpdate(prior, fn, s.now())
		if fnErr != nil {
			return nil
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return prior, err
		}
		if fnErr != nil {
			return prior, fnErr
		}
		return next, nil
	}
	return prior, fmt.Errorf("session %s: too much contention", userID)
}

func (s *RedisSessionStore) Reset(ctx context.Context, userID string) (types.Session, error) {
	return s.AtomicUpdate(ctx, userID, resetSession)
}
