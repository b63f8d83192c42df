package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	supabase "github.com/mynews-app/service_layer/supabase/client"
)

// DefaultSupabaseTable is the documents table created by the migrations.
const DefaultSupabaseTable = "documents"

// SQLSTATE raised by docstore_merge when the target row is missing.
const sqlstateNoDataFound = "P0002"

// SupabaseConfig configures the Supabase backend.
type SupabaseConfig struct {
	Client *supabase.Client
	// Realtime enables Watch. Without it Watch returns ErrWatchUnavailable.
	Realtime *supabase.RealtimeClient
	Table    string
}

// Supabase stores documents as jsonb rows behind PostgREST and watches them
// through the realtime postgres_changes feed.
type Supabase struct {
	client *supabase.Client
	rt     *supabase.RealtimeClient
	table  string
	subs   *subRegistry

	mu      sync.Mutex
	channel *supabase.Channel
	closed  bool
}

var _ Store = (*Supabase)(nil)

type supabaseRow struct {
	Path   string          `json:"path"`
	Parent string          `json:"parent,omitempty"`
	ID     string          `json:"id,omitempty"`
	Data   json.RawMessage `json:"data"`
}

type supabaseOp struct {
	Op     string          `json:"op"`
	Path   string          `json:"path"`
	Parent string          `json:"parent"`
	ID     string          `json:"id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewSupabase creates a Supabase-backed store.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.Client == nil {
		return nil, errors.New("docstore: supabase client is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultSupabaseTable
	}
	return &Supabase{
		client: cfg.Client,
		rt:     cfg.Realtime,
		table:  cfg.Table,
		subs:   newSubRegistry(),
	}, nil
}

func (s *Supabase) Get(ctx context.Context, path string, dst any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	rows, err := s.selectRows(ctx, s.client.From(s.table).Select("path,data").Eq("path", path).Limit(1))
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(rows[0].Data, dst)
}

func (s *Supabase) Set(ctx context.Context, path string, data any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	row := supabaseRow{Path: path, Parent: Parent(path), ID: ID(path), Data: raw}
	if _, err := s.client.From(s.table).OnConflict("path").ExecuteUpsert(ctx, []supabaseRow{row}); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *Supabase) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	_, err := s.client.RPC(ctx, "docstore_merge", map[string]any{
		"p_path":   path,
		"p_fields": fields,
	})
	if supabase.IsAPIError(err, sqlstateNoDataFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (s *Supabase) Delete(ctx context.Context, path string) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	if _, err := s.client.From(s.table).Eq("path", path).ExecuteDelete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *Supabase) Exists(ctx context.Context, path string) (bool, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return false, err
	}
	rows, err := s.selectRows(ctx, s.client.From(s.table).Select("path").Eq("path", path).Limit(1))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return len(rows) > 0, nil
}

func (s *Supabase) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

func (s *Supabase) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	qb := s.client.From(s.table).Select("path,data").Eq("parent", q.Collection).Order("path", true)
	for _, f := range q.Where {
		qb = qb.Eq("data->>"+f.Field, f.Value)
	}
	if q.Limit > 0 {
		qb = qb.Limit(q.Limit)
	}
	rows, err := s.selectRows(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = JSONDocument(r.Path, r.Data)
	}
	return docs, nil
}

func (s *Supabase) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return 0, err
	}
	resp, err := s.client.From(s.table).Select("path").Eq("parent", collection).Count("exact").ExecuteHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	n, ok := resp.Total()
	if !ok {
		return 0, fmt.Errorf("count %s: missing Content-Range", collection)
	}
	return n, nil
}

func (s *Supabase) Watch(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	if s.rt == nil {
		return nil, ErrWatchUnavailable
	}
	if err := s.ensureChannel(ctx); err != nil {
		return nil, err
	}
	return startNotifySub(ctx, collection, func(ctx context.Context) ([]Document, error) {
		return s.List(ctx, collection)
	}, fn, s.subs), nil
}

// ensureChannel joins one table-wide change feed and routes each change to
// the watchers of the changed document's collection.
func (s *Supabase) ensureChannel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.channel != nil && s.rt.Connected() {
		return nil
	}

	s.rt.OnClose(s.feedLost)
	if err := s.rt.Connect(ctx); err != nil {
		return fmt.Errorf("realtime connect: %w", err)
	}
	ch, err := s.rt.SubscribeToPostgresChanges(ctx, supabase.PostgresChangesConfig{
		Table:   s.table,
		OnError: s.feedLost,
	}, s.onChange)
	if err != nil {
		return fmt.Errorf("realtime subscribe: %w", err)
	}
	s.channel = ch
	return nil
}

func (s *Supabase) onChange(e supabase.ChangeEvent) {
	for _, rec := range []map[string]any{e.Record, e.OldRecord} {
		if p, ok := rec["path"].(string); ok {
			s.subs.signal(Parent(p))
		}
	}
}

func (s *Supabase) feedLost(err error) {
	s.mu.Lock()
	s.channel = nil
	s.mu.Unlock()
	s.subs.failAll(fmt.Errorf("%w: %v", ErrWatchUnavailable, err))
}

func (s *Supabase) Batch() Batch {
	return &opBatch{commit: s.commitBatch}
}

func (s *Supabase) commitBatch(ctx context.Context, ops []batchOp) error {
	payload := make([]supabaseOp, len(ops))
	for i, op := range ops {
		p := supabaseOp{Op: "set", Path: op.path, Parent: Parent(op.path), ID: ID(op.path)}
		if op.delete {
			p.Op = "delete"
		} else {
			raw, err := json.Marshal(op.data)
			if err != nil {
				return fmt.Errorf("encode %s: %w", op.path, err)
			}
			p.Data = raw
		}
		payload[i] = p
	}
	if _, err := s.client.RPC(ctx, "docstore_apply_batch", map[string]any{"ops": payload}); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Supabase) Health(ctx context.Context) error {
	if _, err := s.client.From(s.table).Select("path").Limit(1).Execute(ctx); err != nil {
		return fmt.Errorf("supabase health: %w", err)
	}
	return nil
}

func (s *Supabase) Close() error {
	s.mu.Lock()
	s.closed = true
	s.channel = nil
	s.mu.Unlock()
	s.subs.stopAll()
	if s.rt != nil {
		return s.rt.Disconnect()
	}
	return nil
}

func (s *Supabase) selectRows(ctx context.Context, qb *supabase.QueryBuilder) ([]supabaseRow, error) {
	resp, err := qb.Execute(ctx)
	if err != nil {
		return nil, err
	}
	var rows []supabaseRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}
