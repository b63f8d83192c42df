package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig configures the Cloud Firestore backend.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// Firestore stores documents in Cloud Firestore using the paths verbatim.
type Firestore struct {
	client *firestore.Client

	mu     sync.Mutex
	subs   map[*firestoreSub]struct{}
	closed bool
}

var _ Store = (*Firestore)(nil)

// OpenFirestore connects to a project. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("docstore: firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return NewFirestore(client), nil
}

// NewFirestore wraps an existing client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client, subs: make(map[*firestoreSub]struct{})}
}

func (f *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	ref := f.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (f *Firestore) collection(path string) (*firestore.CollectionRef, error) {
	if err := ValidateCollectionPath(path); err != nil {
		return nil, err
	}
	ref := f.client.Collection(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (f *Firestore) Get(ctx context.Context, path string, dst any) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return firestoreErr("get", path, err)
	}
	return snap.DataTo(dst)
}

func (f *Firestore) Set(ctx context.Context, path string, data any) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return firestoreErr("set", path, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, path string, fields map[string]any) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return firestoreErr("update", path, err)
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return firestoreErr("delete", path, err)
	}
	return nil
}

func (f *Firestore) Exists(ctx context.Context, path string) (bool, error) {
	ref, err := f.doc(path)
	if err != nil {
		return false, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, firestoreErr("exists", path, err)
	}
	return snap.Exists(), nil
}

func (f *Firestore) List(ctx context.Context, collection string) ([]Document, error) {
	return f.Query(ctx, Query{Collection: collection})
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, err := f.buildQuery(q)
	if err != nil {
		return nil, err
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, firestoreErr("query", q.Collection, err)
	}
	return snapshotsToDocuments(q.Collection, snaps), nil
}

func (f *Firestore) buildQuery(q Query) (firestore.Query, error) {
	coll, err := f.collection(q.Collection)
	if err != nil {
		return firestore.Query{}, err
	}
	query := coll.Query
	for _, filter := range q.Where {
		query = query.WherePath(firestore.FieldPath{filter.Field}, "==", filter.Value)
	}
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query, nil
}

func (f *Firestore) Count(ctx context.Context, collection string) (int, error) {
	coll, err := f.collection(collection)
	if err != nil {
		return 0, err
	}
	res, err := coll.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, firestoreErr("count", collection, err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected aggregation result %T", collection, res["all"])
	}
	return int(v.GetIntegerValue()), nil
}

// firestoreSub drains one snapshot iterator from a single goroutine.
type firestoreSub struct {
	owner    *Firestore
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func (s *firestoreSub) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
}

func (f *Firestore) Watch(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error) {
	query, err := f.buildQuery(Query{Collection: collection})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &firestoreSub{owner: f, cancel: cancel}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	it := query.Snapshots(ctx)
	go func() {
		defer it.Stop()
		defer sub.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if status.Code(err) != codes.Canceled {
					fn(nil, firestoreErr("watch", collection, err))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				fn(nil, firestoreErr("watch", collection, err))
				return
			}
			fn(snapshotsToDocuments(collection, docs), nil)
		}
	}()
	return sub, nil
}

func (f *Firestore) Batch() Batch {
	return &opBatch{commit: f.commitBatch}
}

func (f *Firestore) commitBatch(ctx context.Context, ops []batchOp) error {
	refs := make([]*firestore.DocumentRef, len(ops))
	for i, op := range ops {
		ref, err := f.doc(op.path)
		if err != nil {
			return err
		}
		refs[i] = ref
	}
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, op := range ops {
			var err error
			if op.delete {
				err = tx.Delete(refs[i])
			} else {
				err = tx.Set(refs[i], op.data)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (f *Firestore) Health(ctx context.Context) error {
	_, err := f.client.Collections(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore health: %w", err)
	}
	return nil
}

func (f *Firestore) Close() error {
	f.mu.Lock()
	f.closed = true
	subs := make([]*firestoreSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
	return f.client.Close()
}

func snapshotsToDocuments(collection string, snaps []*firestore.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		snap := snap
		docs = append(docs, NewDocument(Join(collection, snap.Ref.ID), snap.DataTo))
	}
	return docs
}

func firestoreErr(op, path string, err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
