// Package docstore is the typed boundary to the hosted document database.
//
// Documents live at Firestore-style paths that alternate collection and
// document segments ("friends/{uid}/users_friends/{friendUid}"). Values are
// plain Go structs carrying both json and firestore tags with the same
// field names, so every backend stores the same wire format.
//
// Backends: in-process memory (tests, local runs), Cloud Firestore, Supabase
// (PostgREST + realtime) and PostgreSQL (sqlx + LISTEN/NOTIFY).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docstore: store closed")
	// ErrWatchUnavailable is returned when a backend was configured without
	// a change feed.
	ErrWatchUnavailable = errors.New("docstore: watch not available")
)

// Document is one entry of a collection snapshot or query result.
type Document struct {
	Path   string
	ID     string
	decode func(dst any) error
}

// NewDocument builds a document whose payload is decoded by decode.
func NewDocument(path string, decode func(dst any) error) Document {
	return Document{Path: path, ID: ID(path), decode: decode}
}

// JSONDocument builds a document backed by raw JSON.
func JSONDocument(path string, raw []byte) Document {
	return NewDocument(path, func(dst any) error {
		return json.Unmarshal(raw, dst)
	})
}

// DataTo decodes the document into dst.
func (d Document) DataTo(dst any) error {
	if d.decode == nil {
		return ErrNotFound
	}
	return d.decode(dst)
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Where      []Filter
	Limit      int
}

// SnapshotFunc receives the full contents of a watched collection after
// every change. On error docs is nil and the subscription has ended.
type SnapshotFunc func(docs []Document, err error)

// Subscription is a live collection watch.
type Subscription interface {
	Stop()
}

// Batch groups writes that are committed atomically.
type Batch interface {
	Set(path string, data any) Batch
	Delete(path string) Batch
	Commit(ctx context.Context) error
}

// Store is the document database surface used by the services.
//
// Watch delivers snapshots for one subscription sequentially from a single
// goroutine, starting with the current contents. Different subscriptions
// may deliver concurrently.
type Store interface {
	Get(ctx context.Context, path string, dst any) error
	Set(ctx context.Context, path string, data any) error
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, collection string) (int, error)
	Watch(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error)
	Batch() Batch
	Health(ctx context.Context) error
	Close() error
}

// DeleteCollection removes every document of a collection in one batch.
func DeleteCollection(ctx context.Context, s Store, collection string) (int, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	b := s.Batch()
	for _, d := range docs {
		b.Delete(d.Path)
	}
	if err := b.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

type batchOp struct {
	path   string
	data   any
	delete bool
}

// opBatch collects operations for backends that commit them in one call.
type opBatch struct {
	ops    []batchOp
	commit func(ctx context.Context, ops []batchOp) error
}

func (b *opBatch) Set(path string, data any) Batch {
	b.ops = append(b.ops, batchOp{path: path, data: data})
	return b
}

func (b *opBatch) Delete(path string) Batch {
	b.ops = append(b.ops, batchOp{path: path, delete: true})
	return b
}

func (b *opBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	for _, op := range b.ops {
		if err := ValidateDocumentPath(op.path); err != nil {
			return err
		}
	}
	return b.commit(ctx, b.ops)
}
