package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"digitlens/internal/util"
	"digitlens/pkg/domain"
)

// RedisSessionStore keeps sessions in Redis with TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(addr, password string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// NewSession writes a token -> session mapping with TTL.
func (s *RedisSessionStore) NewSession(sess domain.Session) (string, error) {
	token := util.NewID()
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, sessionKey(token), raw, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// GetSession resolves a token to its session.
func (s *RedisSessionStore) GetSession(token string) (domain.Session, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, false, err
	}
	return sess, true, nil
}

// DeleteSession removes a token mapping. Deleting an unknown token is a no-op.
func (s *RedisSessionStore) DeleteSession(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func sessionKey(token string) string {
	return "digitlens:session:" + token
}
