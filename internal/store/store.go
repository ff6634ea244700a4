// Package store persists domain entities as JSON documents.
//
// A single documents table holds every collection, keyed (collection, id).
// Typed reads decode the stored bytes into the structs from internal/types;
// the rule engine reads the same bytes as untyped Records. Collections also
// serve as flush sinks for the write coalescer: a bulk upsert applies each
// queued patch against the current document inside one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/core/db"
	"github.com/reachpoint/reachpoint/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collection names. One per entity type; auth users live in a relational
// table instead (see users.go).
const (
	Customers = "customers"
	Orders    = "orders"
	Segments  = "segments"
	Campaigns = "campaigns"
	Messages  = "messages"
)

// Store wraps the database handle and named queries shared by all
// collections.
type Store struct {
	db  *sqlx.DB
	q   *db.Queries
	log zerolog.Logger
}

// New builds a store over an open database connection.
func New(database *sqlx.DB, log zerolog.Logger) (*Store, error) {
	q, err := db.LoadQueries(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return &Store{
		db:  database,
		q:   q,
		log: log.With().Str("component", "store").Logger(),
	}, nil
}

// Collection returns a handle on one named collection. Handles are cheap;
// construct them as needed.
func (s *Store) Collection(name string) *Collection {
	return &Collection{name: name, s: s}
}

// Collection is a view of one entity type within the documents table.
type Collection struct {
	name string
	s    *Store
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Put inserts or fully replaces one document.
func (c *Collection) Put(ctx context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", c.name, id, err)
	}
	now := time.Now().UTC()
	if _, err := c.s.q.Exec(ctx, "upsert-document", c.name, id, string(raw), now, now); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Get decodes one document into dest. Returns types.ErrNotFound when the
// id does not exist in this collection.
func (c *Collection) Get(ctx context.Context, id string, dest any) error {
	var raw string
	err := c.s.q.Get(ctx, "get-document", &raw, c.name, id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %w", c.name, id, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", c.name, id, err)
	}
	return nil
}

// GetRecord reads one document as an untyped Record.
func (c *Collection) GetRecord(ctx context.Context, id string) (types.Record, error) {
	var rec types.Record
	if err := c.Get(ctx, id, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FetchAllRecords reads the whole collection as untyped Records in
// insertion order, the population view the rule engine evaluates against.
func (c *Collection) FetchAllRecords(ctx context.Context) ([]types.Record, error) {
	return FetchAll[types.Record](ctx, c)
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.s.q.Get(ctx, "count-documents", &n, c.name); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.name, err)
	}
	return n, nil
}

// Delete removes one document. Returns types.ErrNotFound when nothing was
// deleted.
func (c *Collection) Delete(ctx context.Context, id string) error {
	res, err := c.s.q.Exec(ctx, "delete-document", c.name, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", c.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// BulkUpsert applies a flushed batch in one transaction: each op reads the
// current document, applies its patch, and writes the result back. Ops
// apply in order, so two patches for the same id resolve last-wins.
// Implements the coalescer's sink contract.
func (c *Collection) BulkUpsert(ctx context.Context, ops []batch.Op) error {
	if len(ops) == 0 {
		return nil
	}

	getSQL, err := c.s.q.Raw("get-document")
	if err != nil {
		return err
	}
	upsertSQL, err := c.s.q.Raw("upsert-document")
	if err != nil {
		return err
	}

	tx, err := c.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin bulk upsert on %s: %w", c.name, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		var current map[string]any
		var raw string
		err := tx.GetContext(ctx, &raw, getSQL, c.name, op.ID)
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("failed to decode document %s/%s: %w", c.name, op.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			current = nil
		default:
			return fmt.Errorf("failed to read document %s/%s: %w", c.name, op.ID, err)
		}

		next, err := json.Marshal(op.Patch.Apply(current))
		if err != nil {
			return fmt.Errorf("failed to encode document %s/%s: %w", c.name, op.ID, err)
		}

		// created_at only lands on insert; the conflict path keeps the
		// original and bumps updated_at.
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, upsertSQL, c.name, op.ID, string(next), now, now); err != nil {
			return fmt.Errorf("failed to upsert document %s/%s: %w", c.name, op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk upsert on %s: %w", c.name, err)
	}

	c.s.log.Debug().Str("collection", c.name).Int("ops", len(ops)).Msg("bulk upsert applied")
	return nil
}

// Get reads one document into a typed value.
func Get[T any](ctx context.Context, c *Collection, id string) (*T, error) {
	var v T
	if err := c.Get(ctx, id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List decodes the whole collection newest-first, the read order of the
// listing endpoints.
func List[T any](ctx context.Context, c *Collection) ([]T, error) {
	return selectDocs[T](ctx, c, "list-documents")
}

// FetchAll decodes the whole collection in insertion order (created_at,
// then id, so same-timestamp rows stay in creation order).
func FetchAll[T any](ctx context.Context, c *Collection) ([]T, error) {
	return selectDocs[T](ctx, c, "fetch-all-documents")
}

func selectDocs[T any](ctx context.Context, c *Collection, query string) ([]T, error) {
	var raws []string
	if err := c.s.q.Select(ctx, query, &raws, c.name); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.name, err)
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", c.name, err)
		}
		out = append(out, v)
	}
	return out, nil
}
