package docstore

import (
	"context"
	"errors"
	"fmt"

	"chat_room_client/pkg/logger"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore store over a firestore client, live queries use Snapshots
func NewFirestoreStore(client *firestore.Client) Store {
	return &firestoreStore{client: client}
}

func (s *firestoreStore) Get(ctx context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	snap, err := s.client.Doc(path).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	doc := fromSnapshot(snap)
	return &doc, nil
}

func (s *firestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.collection, err)
		}
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

func (s *firestoreStore) Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	var setOpts []firestore.SetOption
	if applySetOptions(opts).merge {
		setOpts = append(setOpts, firestore.MergeAll)
	}
	if _, err := s.client.Doc(path).Set(ctx, toFirestoreData(data), setOpts...); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *firestoreStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if _, _, err := splitCollectionPath(collection); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestoreData(data))
	if err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *firestoreStore) Update(ctx context.Context, path string, data map[string]any) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range toFirestoreData(data) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := s.client.Doc(path).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (s *firestoreStore) Listen(ctx context.Context, q Query, fn func([]Document, error)) (Subscription, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}

	sub := newSnapshotSubscription(ctx)
	iter := fq.Snapshots(sub.ctx)
	sub.stopIter = iter.Stop

	go func() {
		defer close(sub.done)
		for {
			snap, err := iter.Next()
			if err != nil {
				if !isListenEnd(err) && !sub.isStopped() {
					logger.Log.Warn("firestore listen", zap.String("collection", q.collection), zap.Error(err))
					fn(nil, err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if sub.isStopped() {
				return
			}
			if err != nil {
				fn(nil, err)
				continue
			}
			out := make([]Document, 0, len(docs))
			for _, d := range docs {
				out = append(out, fromSnapshot(d))
			}
			fn(out, nil)
		}
	}()
	return sub, nil
}

func (s *firestoreStore) ListenDocument(ctx context.Context, path string, fn func(*Document, error)) (Subscription, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	sub := newSnapshotSubscription(ctx)
	iter := s.client.Doc(path).Snapshots(sub.ctx)
	sub.stopIter = iter.Stop

	go func() {
		defer close(sub.done)
		for {
			snap, err := iter.Next()
			if err != nil {
				if !isListenEnd(err) && !sub.isStopped() {
					logger.Log.Warn("firestore listen document", zap.String("path", path), zap.Error(err))
					fn(nil, err)
				}
				return
			}
			if sub.isStopped() {
				return
			}
			if !snap.Exists() {
				fn(nil, nil)
				continue
			}
			doc := fromSnapshot(snap)
			fn(&doc, nil)
		}
	}()
	return sub, nil
}

func (s *firestoreStore) Close() error {
	return s.client.Close()
}

func (s *firestoreStore) query(q Query) (firestore.Query, error) {
	if _, _, err := splitCollectionPath(q.collection); err != nil {
		return firestore.Query{}, err
	}
	fq := s.client.Collection(q.collection).Query
	for _, f := range q.filters {
		fq = fq.Where(f.field, string(f.op), f.value)
	}
	for _, o := range q.orders {
		dir := firestore.Asc
		if o.dir == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.field, dir)
	}
	if q.limit > 0 {
		fq = fq.Limit(q.limit)
	}
	return fq, nil
}

type snapshotSubscription struct {
	ctx      context.Context
	cancel   context.CancelFunc
	stopIter func()
	done     chan struct{}
}

func newSnapshotSubscription(parent context.Context) *snapshotSubscription {
	ctx, cancel := context.WithCancel(parent)
	return &snapshotSubscription{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

func (s *snapshotSubscription) isStopped() bool {
	return s.ctx.Err() != nil
}

// Stop implements Subscription
func (s *snapshotSubscription) Stop() {
	s.cancel()
	if s.stopIter != nil {
		s.stopIter()
	}
}

func isListenEnd(err error) bool {
	return errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled)
}

func fromSnapshot(snap *firestore.DocumentSnapshot) Document {
	return Document{
		ID:   snap.Ref.ID,
		Path: refPath(snap.Ref),
		Data: snap.Data(),
	}
}

// refPath 由 ref 往上組出相對路徑 (不含 projects/.../documents 前綴)
func refPath(ref *firestore.DocumentRef) string {
	path := ref.ID
	for coll := ref.Parent; coll != nil; {
		path = coll.ID + "/" + path
		if coll.Parent == nil {
			break
		}
		path = coll.Parent.ID + "/" + path
		coll = coll.Parent.Parent
	}
	return path
}

func toFirestoreData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case serverTimestamp:
			out[k] = firestore.ServerTimestamp
		case arrayUnion:
			out[k] = firestore.ArrayUnion(t.values...)
		default:
			out[k] = v
		}
	}
	return out
}
