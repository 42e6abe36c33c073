package docstore

import (
	"context"
	"errors"
	"fmt"

	"chat_room_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// mongo 內部欄位
const (
	fieldPath   = "_id"
	fieldParent = "_parent"
	fieldKey    = "_key"
)

// mongoStore 每個 collection path 的最後一段對應一個 mongo collection,
// _id 為完整 document path, _parent 為所屬 collection path
type mongoStore struct {
	db   *mongo.Database
	feed *changeFeed
}

// NewMongoStore store over mongo with redis pub/sub change notices
func NewMongoStore(db *mongo.Database, client *redis.Client) Store {
	return &mongoStore{
		db:   db,
		feed: newChangeFeed(client),
	}
}

func (s *mongoStore) collection(collPath string) (*mongo.Collection, error) {
	_, name, err := splitCollectionPath(collPath)
	if err != nil {
		return nil, err
	}
	return s.db.Collection(name), nil
}

func (s *mongoStore) Get(ctx context.Context, path string) (*Document, error) {
	collPath, _, err := splitDocPath(path)
	if err != nil {
		return nil, err
	}
	coll, err := s.collection(collPath)
	if err != nil {
		return nil, err
	}

	var raw bson.M
	if err := coll.FindOne(ctx, bson.M{fieldPath: path}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s: %w", path, err)
	}
	doc := fromMongo(collPath, raw)
	return &doc, nil
}

func (s *mongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	coll, err := s.collection(q.collection)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, mongoFilter(q), mongoFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.collection, err)
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.collection, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromMongo(q.collection, raw))
	}
	return docs, nil
}

func (s *mongoStore) Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error {
	collPath, id, err := splitDocPath(path)
	if err != nil {
		return err
	}
	coll, err := s.collection(collPath)
	if err != nil {
		return err
	}
	o := applySetOptions(opts)
	fields, stamps, unions := splitSentinels(data)

	if o.merge {
		_, err = coll.UpdateOne(ctx, bson.M{fieldPath: path}, mongoUpdate(collPath, id, fields, stamps, unions), options.Update().SetUpsert(true))
	} else {
		replacement := bson.M{fieldParent: collPath, fieldKey: id}
		for k, v := range fields {
			replacement[k] = v
		}
		for k, vs := range unions {
			replacement[k] = vs
		}
		_, err = coll.ReplaceOne(ctx, bson.M{fieldPath: path}, replacement, options.Replace().SetUpsert(true))
		if err == nil && len(stamps) > 0 {
			_, err = coll.UpdateOne(ctx, bson.M{fieldPath: path}, bson.M{"$currentDate": stamps})
		}
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	s.publish(ctx, collPath)
	return nil
}

func (s *mongoStore) Add(ctx context.Context, collPath string, data map[string]any) (string, error) {
	coll, err := s.collection(collPath)
	if err != nil {
		return "", err
	}

	// ObjectID 遞增, 同一毫秒內的排序以 _id 決定
	id := primitive.NewObjectID().Hex()
	path := collPath + "/" + id
	fields, stamps, unions := splitSentinels(data)

	if _, err := coll.UpdateOne(ctx, bson.M{fieldPath: path}, mongoUpdate(collPath, id, fields, stamps, unions), options.Update().SetUpsert(true)); err != nil {
		return "", fmt.Errorf("add %s: %w", collPath, err)
	}

	s.publish(ctx, collPath)
	return id, nil
}

func (s *mongoStore) Update(ctx context.Context, path string, data map[string]any) error {
	collPath, id, err := splitDocPath(path)
	if err != nil {
		return err
	}
	coll, err := s.collection(collPath)
	if err != nil {
		return err
	}
	fields, stamps, unions := splitSentinels(data)

	res, err := coll.UpdateOne(ctx, bson.M{fieldPath: path}, mongoUpdate(collPath, id, fields, stamps, unions))
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	s.publish(ctx, collPath)
	return nil
}

func (s *mongoStore) Listen(ctx context.Context, q Query, fn func([]Document, error)) (Subscription, error) {
	if _, err := s.collection(q.collection); err != nil {
		return nil, err
	}

	var l *listener
	l = newListener(func() {
		docs, err := s.Query(ctx, q)
		if l.isStopped() {
			return
		}
		if err != nil {
			logger.Log.Warn("docstore listen query", zap.String("collection", q.collection), zap.Error(err))
			fn(nil, err)
			return
		}
		fn(docs, nil)
	})
	return s.attach(ctx, q.collection, l)
}

func (s *mongoStore) ListenDocument(ctx context.Context, path string, fn func(*Document, error)) (Subscription, error) {
	collPath, _, err := splitDocPath(path)
	if err != nil {
		return nil, err
	}

	var l *listener
	l = newListener(func() {
		doc, err := s.Get(ctx, path)
		if l.isStopped() {
			return
		}
		switch {
		case errors.Is(err, ErrNotFound):
			fn(nil, nil)
		case err != nil:
			fn(nil, err)
		default:
			fn(doc, nil)
		}
	})
	return s.attach(ctx, collPath, l)
}

// attach 先訂閱變動通知再做第一次查詢, 避免漏掉中間的寫入
func (s *mongoStore) attach(ctx context.Context, collPath string, l *listener) (Subscription, error) {
	cancel, err := s.feed.Subscribe(ctx, collPath, l.notify)
	if err != nil {
		return nil, err
	}
	l.bind(ctx, cancel)

	l.notify()
	return l, nil
}

func (s *mongoStore) publish(ctx context.Context, collPath string) {
	if err := s.feed.Publish(ctx, collPath); err != nil {
		// 寫入已完成, 通知失敗只影響即時更新
		logger.Log.Warn("docstore publish", zap.String("collection", collPath), zap.Error(err))
	}
}

func (s *mongoStore) Close() error {
	return s.feed.Close()
}

func splitSentinels(data map[string]any) (bson.M, bson.M, map[string][]any) {
	fields := bson.M{}
	stamps := bson.M{}
	unions := map[string][]any{}
	for k, v := range data {
		switch t := v.(type) {
		case serverTimestamp:
			stamps[k] = true
		case arrayUnion:
			unions[k] = t.values
		default:
			fields[k] = v
		}
	}
	return fields, stamps, unions
}

func mongoUpdate(collPath, id string, fields, stamps bson.M, unions map[string][]any) bson.M {
	set := bson.M{fieldParent: collPath, fieldKey: id}
	for k, v := range fields {
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(stamps) > 0 {
		update["$currentDate"] = stamps
	}
	if len(unions) > 0 {
		add := bson.M{}
		for k, vs := range unions {
			add[k] = bson.M{"$each": vs}
		}
		update["$addToSet"] = add
	}
	return update
}

func mongoFilter(q Query) bson.D {
	f := bson.D{{Key: fieldParent, Value: q.collection}}
	used := map[string]bool{}
	for _, c := range q.filters {
		// array-contains 與等於在 mongo 都是 {field: value}
		f = append(f, bson.E{Key: c.field, Value: c.value})
		used[c.field] = true
	}
	for _, o := range q.orders {
		if !used[o.field] {
			f = append(f, bson.E{Key: o.field, Value: bson.M{"$exists": true}})
			used[o.field] = true
		}
	}
	return f
}

func mongoFindOptions(q Query) *options.FindOptions {
	opts := options.Find()
	sortDoc := bson.D{}
	tie := 1
	for _, o := range q.orders {
		dir := 1
		if o.dir == Desc {
			dir = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: o.field, Value: dir})
		tie = dir
	}
	sortDoc = append(sortDoc, bson.E{Key: fieldPath, Value: tie})
	opts.SetSort(sortDoc)
	if q.limit > 0 {
		opts.SetLimit(int64(q.limit))
	}
	return opts
}

func fromMongo(collPath string, raw bson.M) Document {
	id, _ := raw[fieldKey].(string)
	path, _ := raw[fieldPath].(string)
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == fieldPath || k == fieldParent || k == fieldKey {
			continue
		}
		data[k] = normalizeBSON(v)
	}
	if path == "" {
		path = collPath + "/" + id
	}
	return Document{ID: id, Path: path, Data: data}
}

func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case int32:
		return int64(t)
	}
	return v
}
