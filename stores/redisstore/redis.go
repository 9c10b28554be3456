// Package redisstore implements stores.Store on Redis string keys. Documents
// are serialized with the configured codec and expire through Redis TTLs.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/stores"
)

// Config for the Redis store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: DOCSTREAM_KEY_PREFIX
	KeyPrefix string `env:"DOCSTREAM_KEY_PREFIX,default=docstream:"`
}

type Store struct {
	client    *redis.Client
	keyPrefix string
	codec     docstream.Codec
}

var _ stores.Store = &Store{}

func New(cfg Config, opts ...stores.Option) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "docstream:"
	}
	return &Store{
		client:    cl,
		keyPrefix: prefix,
		codec:     stores.ApplyOptions(opts...).Codec,
	}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(opts ...stores.Option) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return New(cfg, opts...)
}

func (s *Store) key(key string) string { return s.keyPrefix + "doc:" + key }

func (s *Store) Put(ctx context.Context, key string, doc docstream.Document, ttl time.Duration) error {
	if err := stores.ValidateKey(key); err != nil {
		return err
	}
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return s.wrap(s.client.Set(ctx, s.key(key), data, ttl).Err())
}

func (s *Store) Get(ctx context.Context, key string) (docstream.Document, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstream.Document{}, false, nil
	}
	if err != nil {
		return docstream.Document{}, false, s.wrap(err)
	}
	doc, err := s.codec.Unmarshal(data)
	if err != nil {
		return docstream.Document{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return doc, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.wrap(s.client.Del(ctx, s.key(key)).Err())
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) wrap(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return stores.ErrClosed
	}
	return err
}
