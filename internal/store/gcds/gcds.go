// Package gcds stores documents as Google Cloud Datastore entities through the
// Datastore REST API. Each entity carries the JSON document in an unindexed
// blob property.
package gcds

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	datastore "google.golang.org/api/datastore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"chgk-poll-bot/internal/store"
)

const (
	bodyProperty      = "body"
	maxCommitAttempts = 5
)

type Store struct {
	srv       *datastore.Service
	projectID string
	kind      string
}

// New builds a client. An empty credentialsPath falls back to application
// default credentials.
func New(ctx context.Context, projectID, kind, credentialsPath string) (*Store, error) {
	opts := []option.ClientOption{option.WithScopes(datastore.DatastoreScope)}
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	srv, err := datastore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}
	if kind == "" {
		kind = projectID
	}
	return &Store{srv: srv, projectID: projectID, kind: kind}, nil
}

func (s *Store) entityKey(key string) *datastore.Key {
	return &datastore.Key{
		PartitionId: &datastore.PartitionId{ProjectId: s.projectID},
		Path:        []*datastore.PathElement{{Kind: s.kind, Name: key}},
	}
}

func (s *Store) lookup(ctx context.Context, key string, txID string) ([]byte, error) {
	req := &datastore.LookupRequest{Keys: []*datastore.Key{s.entityKey(key)}}
	if txID != "" {
		req.ReadOptions = &datastore.ReadOptions{Transaction: txID}
	}
	resp, err := s.srv.Projects.Lookup(s.projectID, req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Found) == 0 || resp.Found[0].Entity == nil {
		return nil, store.ErrNotFound
	}
	prop, ok := resp.Found[0].Entity.Properties[bodyProperty]
	if !ok {
		return nil, store.ErrNotFound
	}
	return base64.StdEncoding.DecodeString(prop.BlobValue)
}

func (s *Store) upsert(key string, doc []byte) *datastore.Mutation {
	return &datastore.Mutation{Upsert: &datastore.Entity{
		Key: s.entityKey(key),
		Properties: map[string]datastore.Value{
			bodyProperty: {
				BlobValue:          base64.StdEncoding.EncodeToString(doc),
				ExcludeFromIndexes: true,
			},
		},
	}}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.lookup(ctx, key, "")
}

func (s *Store) Put(ctx context.Context, key string, doc []byte) error {
	_, err := s.srv.Projects.Commit(s.projectID, &datastore.CommitRequest{
		Mode:      "NON_TRANSACTIONAL",
		Mutations: []*datastore.Mutation{s.upsert(key, doc)},
	}).Context(ctx).Do()
	return err
}

// Update runs fn in a Datastore transaction and retries aborted commits.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	for i := 0; i < maxCommitAttempts; i++ {
		err := s.updateOnce(ctx, key, fn)
		if isAborted(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: transaction kept aborting", key)
}

func (s *Store) updateOnce(ctx context.Context, key string, fn store.UpdateFunc) error {
	tx, err := s.srv.Projects.BeginTransaction(s.projectID, &datastore.BeginTransactionRequest{}).Context(ctx).Do()
	if err != nil {
		return err
	}
	rollback := func() {
		_, _ = s.srv.Projects.Rollback(s.projectID, &datastore.RollbackRequest{Transaction: tx.Transaction}).Context(ctx).Do()
	}

	cur, err := s.lookup(ctx, key, tx.Transaction)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		rollback()
		return err
	}
	next, err := fn(cur)
	if err != nil {
		rollback()
		return err
	}
	_, err = s.srv.Projects.Commit(s.projectID, &datastore.CommitRequest{
		Mode:        "TRANSACTIONAL",
		Transaction: tx.Transaction,
		Mutations:   []*datastore.Mutation{s.upsert(key, next)},
	}).Context(ctx).Do()
	return err
}

func isAborted(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

func (s *Store) Close() error { return nil }
