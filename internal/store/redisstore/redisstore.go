// Package redisstore keeps documents as plain Redis string values.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chgk-poll-bot/internal/store"
)

const maxUpdateAttempts = 10

type Store struct {
	rdb    *redis.Client
	prefix string
}

// New connects to a redis:// or rediss:// URL. The optional path segment
// selects the database number.
func New(ctx context.Context, rawURL, prefix string) (*Store, error) {
	opts, err := options(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	return doc, err
}

func (s *Store) Put(ctx context.Context, key string, doc []byte) error {
	return s.rdb.Set(ctx, s.key(key), doc, 0).Err()
}

// Update runs fn inside WATCH/MULTI and retries when another writer got in
// between.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	k := s.key(key)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", key)
}

func (s *Store) Close() error { return s.rdb.Close() }

// options accepts redis:// and rediss:// URLs; the latter turns on TLS.
func options(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return opts, nil
}
