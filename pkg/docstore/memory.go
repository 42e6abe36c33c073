package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	data map[string]any
	seq  uint64
}

type memListener struct {
	*listener
	collection string
}

type memoryStore struct {
	mu          sync.RWMutex
	clock       func() time.Time
	lastStamp   time.Time
	seq         uint64
	collections map[string]map[string]*memDoc
	listeners   map[*memListener]struct{}
	closed      bool
}

// NewMemoryStore in-process store; clock nil = time.Now.
// Server timestamps are strictly increasing at millisecond resolution and
// deliveries run on the writing goroutine once the store lock is released.
func NewMemoryStore(clock func() time.Time) Store {
	if clock == nil {
		clock = time.Now
	}
	return &memoryStore{
		clock:       clock,
		collections: make(map[string]map[string]*memDoc),
		listeners:   make(map[*memListener]struct{}),
	}
}

// stamp caller 需持有 s.mu
func (s *memoryStore) stamp() time.Time {
	t := s.clock().UTC().Truncate(time.Millisecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = t
	return t
}

func (s *memoryStore) Get(ctx context.Context, path string) (*Document, error) {
	coll, id, err := splitDocPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	d, ok := s.collections[coll][id]
	if !ok {
		return nil, ErrNotFound
	}
	doc := toMemDocument(coll, id, d)
	return &doc, nil
}

func (s *memoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if _, _, err := splitCollectionPath(q.collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(q), nil
}

func (s *memoryStore) queryLocked(q Query) []Document {
	coll := s.collections[q.collection]
	docs := make([]Document, 0, len(coll))
	for id, d := range coll {
		if q.matches(d.data) {
			docs = append(docs, toMemDocument(q.collection, id, d))
		}
	}
	// 先按寫入順序, 讓排序欄位相同時結果穩定
	sortBySeq(docs, coll)
	return q.sortAndLimit(docs)
}

func (s *memoryStore) Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error {
	coll, id, err := splitDocPath(path)
	if err != nil {
		return err
	}
	o := applySetOptions(opts)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	now := s.stamp()
	docs := s.ensureCollection(coll)
	existing := docs[id]
	if existing != nil && o.merge {
		existing.data = resolveFields(existing.data, data, now)
	} else {
		s.seq++
		seq := s.seq
		if existing != nil {
			seq = existing.seq
		}
		docs[id] = &memDoc{data: resolveFields(nil, data, now), seq: seq}
	}
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *memoryStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if _, _, err := splitCollectionPath(collection); err != nil {
		return "", err
	}
	id := uuid.New().String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	now := s.stamp()
	s.seq++
	s.ensureCollection(collection)[id] = &memDoc{data: resolveFields(nil, data, now), seq: s.seq}
	s.mu.Unlock()

	s.notify(collection)
	return id, nil
}

func (s *memoryStore) Update(ctx context.Context, path string, data map[string]any) error {
	coll, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	existing, ok := s.collections[coll][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	existing.data = resolveFields(existing.data, data, s.stamp())
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *memoryStore) Listen(ctx context.Context, q Query, fn func([]Document, error)) (Subscription, error) {
	if _, _, err := splitCollectionPath(q.collection); err != nil {
		return nil, err
	}

	var l *memListener
	l = s.register(ctx, q.collection, func() {
		s.mu.RLock()
		docs := s.queryLocked(q)
		s.mu.RUnlock()
		if !l.isStopped() {
			fn(docs, nil)
		}
	})
	if l == nil {
		return nil, ErrClosed
	}
	l.notify()
	return l, nil
}

func (s *memoryStore) ListenDocument(ctx context.Context, path string, fn func(*Document, error)) (Subscription, error) {
	coll, id, err := splitDocPath(path)
	if err != nil {
		return nil, err
	}

	var l *memListener
	l = s.register(ctx, coll, func() {
		var doc *Document
		s.mu.RLock()
		if d, ok := s.collections[coll][id]; ok {
			v := toMemDocument(coll, id, d)
			doc = &v
		}
		s.mu.RUnlock()
		if !l.isStopped() {
			fn(doc, nil)
		}
	})
	if l == nil {
		return nil, ErrClosed
	}
	l.notify()
	return l, nil
}

func (s *memoryStore) register(ctx context.Context, collection string, run func()) *memListener {
	l := &memListener{listener: newListener(run), collection: collection}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	l.bind(ctx, func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	})
	return l
}

func (s *memoryStore) notify(collection string) {
	s.mu.RLock()
	targets := make([]*memListener, 0, len(s.listeners))
	for l := range s.listeners {
		if l.collection == collection {
			targets = append(targets, l)
		}
	}
	s.mu.RUnlock()

	for _, l := range targets {
		l.notify()
	}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	s.listeners = make(map[*memListener]struct{})
	s.mu.Unlock()

	for l := range listeners {
		l.Stop()
	}
	return nil
}

// ensureCollection caller 需持有 s.mu
func (s *memoryStore) ensureCollection(coll string) map[string]*memDoc {
	docs, ok := s.collections[coll]
	if !ok {
		docs = make(map[string]*memDoc)
		s.collections[coll] = docs
	}
	return docs
}

func toMemDocument(coll, id string, d *memDoc) Document {
	return Document{
		ID:   id,
		Path: coll + "/" + id,
		Data: copyData(d.data),
	}
}

func sortBySeq(docs []Document, coll map[string]*memDoc) {
	seqs := make(map[string]uint64, len(docs))
	for _, d := range docs {
		seqs[d.ID] = coll[d.ID].seq
	}
	sort.Slice(docs, func(i, j int) bool { return seqs[docs[i].ID] < seqs[docs[j].ID] })
}

// resolveFields 將 sentinel 轉成實際值並覆寫到 base 的副本
func resolveFields(base map[string]any, data map[string]any, now time.Time) map[string]any {
	out := copyData(base)
	if out == nil {
		out = make(map[string]any, len(data))
	}
	for k, v := range data {
		switch t := v.(type) {
		case serverTimestamp:
			out[k] = now
		case arrayUnion:
			out[k] = unionValues(out[k], t.values)
		default:
			out[k] = copyValue(v)
		}
	}
	return out
}

func unionValues(existing any, values []any) []any {
	var arr []any
	switch e := existing.(type) {
	case []any:
		arr = append(arr, e...)
	case []string:
		for _, s := range e {
			arr = append(arr, s)
		}
	}
	for _, v := range values {
		found := false
		for _, a := range arr {
			if valuesEqual(a, v) {
				found = true
				break
			}
		}
		if !found {
			arr = append(arr, v)
		}
	}
	return arr
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]any:
		return copyData(t)
	}
	return v
}
