package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock 永遠回傳同一時間, 驗證 store 仍會產生遞增的時間戳
func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]Document
}

func (r *recorder) fn(docs []Document, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, docs)
}

func (r *recorder) last() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestMemoryStore_AddServerTimestampOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedClock)

	for _, text := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, "chatRooms/r1/messages", map[string]any{"text": text, "timestamp": ServerTimestamp})
		require.NoError(t, err)
	}

	docs, err := s.Query(ctx, NewQuery("chatRooms/r1/messages").OrderBy("timestamp", Asc))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].String("text"))
	assert.Equal(t, "c", docs[2].String("text"))
	assert.True(t, docs[0].Time("timestamp").Before(docs[1].Time("timestamp")))
	assert.True(t, docs[1].Time("timestamp").Before(docs[2].Time("timestamp")))

	latest, err := s.Query(ctx, NewQuery("chatRooms/r1/messages").OrderBy("timestamp", Desc).Limit(1))
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "c", latest[0].String("text"))
}

func TestMemoryStore_ArrayContainsAndUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	id, err := s.Add(ctx, "chatRooms", map[string]any{"name": "Foo", "members": []string{"u1"}})
	require.NoError(t, err)
	_, err = s.Add(ctx, "chatRooms", map[string]any{"name": "Bar", "members": []string{"u2"}})
	require.NoError(t, err)

	docs, err := s.Query(ctx, NewQuery("chatRooms").Where("members", OpArrayContains, "u1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Foo", docs[0].String("name"))

	// 重複加入不會產生重複成員
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Update(ctx, "chatRooms/"+id, map[string]any{"members": ArrayUnion("u3")}))
	}
	doc, err := s.Get(ctx, "chatRooms/"+id)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, doc.Strings("members"))
}

func TestMemoryStore_SetMerge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"displayName": "Ann", "photoURL": "p1"}))
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"displayName": "Annie"}, Merge()))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Annie", doc.String("displayName"))
	assert.Equal(t, "p1", doc.String("photoURL"))

	// 非 merge 會整份取代
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"displayName": "A"}))
	doc, err = s.Get(ctx, "users/u1")
	require.NoError(t, err)
	_, ok := doc.Data["photoURL"]
	assert.False(t, ok)
}

func TestMemoryStore_UpdateAndGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	assert.ErrorIs(t, s.Update(ctx, "chatRooms/none", map[string]any{"a": 1}), ErrNotFound)
	_, err := s.Get(ctx, "chatRooms/none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	_, err := s.Add(ctx, "chatRooms/r1", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, s.Set(ctx, "chatRooms", map[string]any{}), ErrInvalidPath)
	_, err = s.Listen(ctx, NewQuery("a//b"), func([]Document, error) {})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestMemoryStore_ListenDeliversFullResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	rec := new(recorder)

	sub, err := s.Listen(ctx, NewQuery("chatRooms/r1/messages").OrderBy("timestamp", Asc), rec.fn)
	require.NoError(t, err)

	// 訂閱時立即送出目前結果
	require.Equal(t, 1, rec.count())
	assert.Empty(t, rec.last())

	_, err = s.Add(ctx, "chatRooms/r1/messages", map[string]any{"text": "hi", "timestamp": ServerTimestamp})
	require.NoError(t, err)
	_, err = s.Add(ctx, "chatRooms/r2/messages", map[string]any{"text": "other", "timestamp": ServerTimestamp})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.count())
	require.Len(t, rec.last(), 1)
	assert.Equal(t, "hi", rec.last()[0].String("text"))

	sub.Stop()
	sub.Stop()
	_, err = s.Add(ctx, "chatRooms/r1/messages", map[string]any{"text": "late", "timestamp": ServerTimestamp})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count())
}

func TestMemoryStore_ListenDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	var got []*Document
	sub, err := s.ListenDocument(ctx, "users/u1", func(d *Document, err error) {
		got = append(got, d)
	})
	require.NoError(t, err)
	defer sub.Stop()

	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"displayName": "Ann"}, Merge()))
	require.Len(t, got, 2)
	assert.Equal(t, "Ann", got[1].String("displayName"))
	assert.Equal(t, "users/u1", got[1].Path)
}

func TestMemoryStore_WriteInsideCallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	var deliveries []int
	_, err := s.Listen(ctx, NewQuery("chatRooms/r1/typing"), func(docs []Document, err error) {
		deliveries = append(deliveries, len(docs))
		if len(docs) == 1 {
			// callback 內寫入同一 collection 不會 deadlock, 且最後一次結果為最新
			_ = s.Set(ctx, "chatRooms/r1/typing/u2", map[string]any{"isTyping": true})
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "chatRooms/r1/typing/u1", map[string]any{"isTyping": true}))
	require.NotEmpty(t, deliveries)
	assert.Equal(t, 2, deliveries[len(deliveries)-1])
}

func TestMemoryStore_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore(nil)
	rec := new(recorder)

	_, err := s.Listen(ctx, NewQuery("users"), rec.fn)
	require.NoError(t, err)
	cancel()

	// AfterFunc 在另一個 goroutine 執行, 等到寫入不再觸發 delivery
	assert.Eventually(t, func() bool {
		before := rec.count()
		_ = s.Set(context.Background(), "users/u1", map[string]any{"a": true})
		return rec.count() == before
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.Close())

	_, err := s.Add(ctx, "users", map[string]any{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Listen(ctx, NewQuery("users"), func([]Document, error) {})
	assert.ErrorIs(t, err, ErrClosed)
}
