// Package store persists the bot's JSON documents in a key-value engine.
//
// Three kinds of documents exist: one per chat keyed by the chat id, the
// "tasks" document holding every outstanding poll-closing task, and the
// "configs" document mapping chat ids to their configuration.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TasksKey   = "tasks"
	ConfigsKey = "configs"
)

var ErrNotFound = errors.New("document not found")

// UpdateFunc receives the current document (nil when it does not exist yet)
// and returns the document to write back.
type UpdateFunc func(doc []byte) ([]byte, error)

type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, doc []byte) error
	// Update performs a read-modify-write of one document. Backends that can
	// make it atomic do; the rest fall back to last-writer-wins.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// GetJSON decodes the document at key into v. A missing document leaves v
// untouched and reports found=false.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	doc, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// UpdateJSON decodes the document into a fresh T, lets fn mutate it and
// writes it back as JSON.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(v *T) error) error {
	return s.Update(ctx, key, func(doc []byte) ([]byte, error) {
		var v T
		if len(doc) > 0 {
			if err := json.Unmarshal(doc, &v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		return json.Marshal(&v)
	})
}
