package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store keeping documents as JSON. It backs tests and
// local runs and honours the same watch semantics as the hosted backends.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	subs   *subRegistry
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string][]byte),
		subs: newSubRegistry(),
	}
}

func (m *Memory) Get(_ context.Context, path string, dst any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	m.mu.RLock()
	raw, ok := m.docs[path]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, dst)
}

func (m *Memory) Set(_ context.Context, path string, data any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.docs[path] = raw
	m.mu.Unlock()

	m.subs.signal(Parent(path))
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	raw, ok := m.docs[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("update %s: %w", path, err)
	}
	m.docs[path] = merged
	m.mu.Unlock()

	m.subs.signal(Parent(path))
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	_, existed := m.docs[path]
	delete(m.docs, path)
	m.mu.Unlock()

	if existed {
		m.subs.signal(Parent(path))
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.docs[path]
	return ok, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.listLocked(collection, nil, 0)
}

func (m *Memory) Query(_ context.Context, q Query) ([]Document, error) {
	if err := ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.listLocked(q.Collection, q.Where, q.Limit)
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	docs, err := m.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (m *Memory) Watch(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return startNotifySub(ctx, collection, func(ctx context.Context) ([]Document, error) {
		return m.List(ctx, collection)
	}, fn, m.subs), nil
}

func (m *Memory) Batch() Batch {
	return &opBatch{commit: m.commitBatch}
}

func (m *Memory) commitBatch(_ context.Context, ops []batchOp) error {
	encoded := make([][]byte, len(ops))
	for i, op := range ops {
		if op.delete {
			continue
		}
		raw, err := json.Marshal(op.data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op.path, err)
		}
		encoded[i] = raw
	}

	touched := make(map[string]struct{})
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	for i, op := range ops {
		if op.delete {
			delete(m.docs, op.path)
		} else {
			m.docs[op.path] = encoded[i]
		}
		touched[Parent(op.path)] = struct{}{}
	}
	m.mu.Unlock()

	for c := range touched {
		m.subs.signal(c)
	}
	return nil
}

func (m *Memory) Health(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.subs.stopAll()
	return nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Subscriptions returns the number of live watches.
func (m *Memory) Subscriptions() int {
	return m.subs.size()
}

func (m *Memory) listLocked(collection string, where []Filter, limit int) ([]Document, error) {
	paths := make([]string, 0)
	for p := range m.docs {
		if Parent(p) == collection {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	out := make([]Document, 0, len(paths))
	for _, p := range paths {
		raw := m.docs[p]
		if len(where) > 0 {
			ok, err := matches(raw, where)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, JSONDocument(p, raw))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(raw []byte, where []Filter) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, nil
	}
	for _, f := range where {
		got, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		want, err := json.Marshal(f.Value)
		if err != nil {
			return false, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, got); err != nil {
			return false, nil
		}
		if !bytes.Equal(compact.Bytes(), want) {
			return false, nil
		}
	}
	return true, nil
}

func mergeFields(raw []byte, fields map[string]any) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}
