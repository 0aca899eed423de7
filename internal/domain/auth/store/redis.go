package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"panel-server-go/internal/domain/auth/model"
)

const (
	defaultRedisKey  = "panel:auth"
	maxWatchAttempts = 8
)

type redisStore struct {
	client *redis.Client
	key    string
}

// NewRedis constructs a store keeping the credential document under one redis key.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	key := cfg.Redis.Key
	if key == "" {
		key = defaultRedisKey
	}
	return &redisStore{client: client, key: key}, nil
}

func (s *redisStore) Read(ctx context.Context) (model.AdminCredential, error) {
	return s.fetch(ctx, s.client)
}

func (s *redisStore) fetch(ctx context.Context, c redis.Cmdable) (model.AdminCredential, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.AdminCredential{}, model.ErrNotInitialized
	}
	if err != nil {
		return model.AdminCredential{}, err
	}
	return model.UnmarshalDocument(raw)
}

// Write retries the WATCH/MULTI cycle when another writer touched the key in between.
func (s *redisStore) Write(ctx context.Context, patch model.Patch) (model.AdminCredential, error) {
	var next model.AdminCredential
	txf := func(tx *redis.Tx) error {
		current, err := s.fetch(ctx, tx)
		if err != nil && !errors.Is(err, model.ErrNotInitialized) {
			return err
		}
		next = patch.Apply(current)
		doc, err := model.MarshalDocument(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, doc, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return model.AdminCredential{}, err
		}
	}
	return model.AdminCredential{}, fmt.Errorf("credential write conflicted %d times", maxWatchAttempts)
}

func (s *redisStore) Init(ctx context.Context, cred model.AdminCredential) error {
	doc, err := model.MarshalDocument(cred)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, doc, 0).Err()
}

func (s *redisStore) Location() string { return "redis:" + s.key }

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
