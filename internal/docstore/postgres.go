package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DefaultNotifyChannel matches the channel used by the change trigger.
const DefaultNotifyChannel = "docstore_changes"

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DB *sqlx.DB
	// Listener receives the trigger's NOTIFY payloads. Without it Watch
	// returns ErrWatchUnavailable.
	Listener *pq.Listener
	Channel  string
	// CloseDB makes Close also close DB.
	CloseDB bool
}

// Postgres stores documents in a jsonb table and watches them through
// LISTEN/NOTIFY.
type Postgres struct {
	db       *sqlx.DB
	listener *pq.Listener
	channel  string
	closeDB  bool
	subs     *subRegistry

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ Store = (*Postgres)(nil)

type pgRow struct {
	Path string `db:"path"`
	Data []byte `db:"data"`
}

const upsertDocumentSQL = `
	INSERT INTO documents (path, parent, id, data, updated_at)
	VALUES ($1, $2, $3, $4::jsonb, NOW())
	ON CONFLICT (path) DO UPDATE
	SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

const deleteDocumentSQL = `DELETE FROM documents WHERE path = $1`

// NewPostgres wraps an open database.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.DB == nil {
		return nil, errors.New("docstore: postgres db is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultNotifyChannel
	}
	p := &Postgres{
		db:       cfg.DB,
		listener: cfg.Listener,
		channel:  cfg.Channel,
		closeDB:  cfg.CloseDB,
		subs:     newSubRegistry(),
		done:     make(chan struct{}),
	}
	if p.listener != nil {
		if err := p.listener.Listen(p.channel); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
			return nil, fmt.Errorf("listen %s: %w", p.channel, err)
		}
		go p.listen()
	}
	return p, nil
}

// OpenPostgres connects to dsn and starts a listener on channel.
func OpenPostgres(ctx context.Context, dsn, channel string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, nil)
	store, err := NewPostgres(PostgresConfig{DB: db, Listener: listener, Channel: channel, CloseDB: true})
	if err != nil {
		listener.Close()
		db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle, e.g. for migrations.
func (p *Postgres) DB() *sqlx.DB {
	return p.db
}

func (p *Postgres) Get(ctx context.Context, path string, dst any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	var raw []byte
	err := p.db.GetContext(ctx, &raw, `SELECT data FROM documents WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return json.Unmarshal(raw, dst)
}

func (p *Postgres) Set(ctx context.Context, path string, data any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if _, err := p.db.ExecContext(ctx, upsertDocumentSQL, path, Parent(path), ID(path), string(raw)); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $2::jsonb, updated_at = NOW()
		WHERE path = $1`, path, string(raw))
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, deleteDocumentSQL, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, path string) (bool, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return false, err
	}
	var ok bool
	if err := p.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM documents WHERE path = $1)`, path); err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return ok, nil
}

func (p *Postgres) List(ctx context.Context, collection string) ([]Document, error) {
	return p.Query(ctx, Query{Collection: collection})
}

func (p *Postgres) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	sb.WriteString(`SELECT path, data FROM documents WHERE parent = $1`)
	for _, f := range q.Where {
		want, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(want))
		fmt.Fprintf(&sb, ` AND data->($%d::text) = $%d::jsonb`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY path`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	var rows []pgRow
	if err := p.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = JSONDocument(r.Path, r.Data)
	}
	return docs, nil
}

func (p *Postgres) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return 0, err
	}
	var n int
	if err := p.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents WHERE parent = $1`, collection); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (p *Postgres) Watch(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	if p.listener == nil {
		return nil, ErrWatchUnavailable
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return startNotifySub(ctx, collection, func(ctx context.Context) ([]Document, error) {
		return p.List(ctx, collection)
	}, fn, p.subs), nil
}

// listen fans NOTIFY payloads (the changed parent collection) out to
// watchers. A nil notification follows a reconnect, after which every
// watched collection is re-read.
func (p *Postgres) listen() {
	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				for _, c := range p.subs.collections() {
					p.subs.signal(c)
				}
				continue
			}
			p.subs.signal(n.Extra)
		case <-time.After(90 * time.Second):
			go p.listener.Ping()
		}
	}
}

func (p *Postgres) Batch() Batch {
	return &opBatch{commit: p.commitBatch}
}

func (p *Postgres) commitBatch(ctx context.Context, ops []batchOp) (err error) {
	encoded := make([]string, len(ops))
	for i, op := range ops {
		if op.delete {
			continue
		}
		raw, err := json.Marshal(op.data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op.path, err)
		}
		encoded[i] = string(raw)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, op := range ops {
		if op.delete {
			_, err = tx.ExecContext(ctx, deleteDocumentSQL, op.path)
		} else {
			_, err = tx.ExecContext(ctx, upsertDocumentSQL, op.path, Parent(op.path), ID(op.path), encoded[i])
		}
		if err != nil {
			return fmt.Errorf("batch %s: %w", op.path, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) Health(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.subs.stopAll()
	var errs []error
	if p.listener != nil {
		if err := p.listener.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.closeDB {
		if err := p.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
