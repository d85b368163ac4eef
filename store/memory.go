package store

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	doc     []byte
	version uint64
}

// MemoryStore keeps documents in process memory with the same optimistic
// concurrency contract as RedisStore. Used for tests and single-node setups.
type MemoryStore struct {
	mu   sync.Mutex
	seq  uint64
	docs map[string]entry
	subs map[string]map[*subscriber]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]entry),
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.doc), nil
}

func (m *MemoryStore) Put(ctx context.Context, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLocked(id, doc)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	merged, err := mergeDocument(e.doc, partial)
	if err != nil {
		return err
	}
	m.writeLocked(id, merged)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
	return nil
}

func (m *MemoryStore) Transaction(ctx context.Context, id string, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	read, existed := m.docs[id]
	m.mu.Unlock()

	var current []byte
	if existed {
		current = clone(read.doc)
	}
	// fn はロックの外で実行する。その間の他の書き込みはバージョンで検出する
	next, err := fn(current)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	latest, exists := m.docs[id]
	if exists != existed || (exists && latest.version != read.version) {
		return ErrConflict
	}
	if next == nil {
		m.deleteLocked(id)
		return nil
	}
	m.writeLocked(id, next)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id string, onChange ChangeFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscriber(onChange)

	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[*subscriber]struct{})
	}
	m.subs[id][sub] = struct{}{}
	if e, ok := m.docs[id]; ok {
		sub.push(clone(e.doc))
	} else {
		sub.push(nil)
	}
	m.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	go sub.run(ctx)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[id], sub)
		if len(m.subs[id]) == 0 {
			delete(m.subs, id)
		}
		m.mu.Unlock()
		sub.stop()
	}()
	return stop, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) writeLocked(id string, doc []byte) {
	m.seq++
	m.docs[id] = entry{doc: clone(doc), version: m.seq}
	m.notifyLocked(id, doc)
}

func (m *MemoryStore) deleteLocked(id string) {
	if _, ok := m.docs[id]; !ok {
		return
	}
	delete(m.docs, id)
	m.notifyLocked(id, nil)
}

// 通知はロック中に積むので、購読者から見た版の順序は書き込み順と一致する
func (m *MemoryStore) notifyLocked(id string, doc []byte) {
	for sub := range m.subs[id] {
		sub.push(clone(doc))
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
