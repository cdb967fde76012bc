package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one-time codes in Redis. The key lives slightly longer
// than the code's validity so an expired-but-present code still reports
// ErrExpired instead of ErrNotFound.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisStore builds a Redis-backed code store with the default TTL.
func NewRedisStore(addr, password string) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("otp redis addr is required")
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		keyPrefix: "digitlens:otp",
		ttl:       DefaultTTL,
		now:       time.Now,
	}, nil
}

// Issue generates a fresh code for the email, overwriting any prior one.
func (s *RedisStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	rec := record{
		Code:    code,
		Expires: s.now().UTC().Add(s.ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal otp record: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, s.key(email), raw, s.ttl+time.Minute).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks the submitted code verbatim against the stored one.
// Verification does not consume the code.
func (s *RedisStore) Verify(ctx context.Context, email, code string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("unmarshal otp record: %w", err)
	}
	if rec.Code != code {
		return ErrInvalidCode
	}
	if s.now().UTC().After(rec.Expires) {
		return ErrExpired
	}
	return nil
}

// Consume deletes the stored code.
func (s *RedisStore) Consume(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (s *RedisStore) key(email string) string {
	return s.keyPrefix + ":" + email
}
