package repository

import (
	"context"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/docstore"
)

// TypingRepository definition per room typing status
type TypingRepository interface {
	SetTyping(ctx context.Context, roomID, uid string, isTyping bool) error
	WatchRoomTyping(ctx context.Context, roomID string, fn func([]domain.TypingStatus, error)) (docstore.Subscription, error)
}

type typingRepository struct {
	store docstore.Store
}

// NewTypingRepository create typing repository over store
func NewTypingRepository(store docstore.Store) TypingRepository {
	return &typingRepository{store: store}
}

// SetTyping upsert, document 不會被刪除
func (r *typingRepository) SetTyping(ctx context.Context, roomID, uid string, isTyping bool) error {
	return r.store.Set(ctx, domain.TypingDocPath(roomID, uid), map[string]any{"isTyping": isTyping}, docstore.Merge())
}

func (r *typingRepository) WatchRoomTyping(ctx context.Context, roomID string, fn func([]domain.TypingStatus, error)) (docstore.Subscription, error) {
	return r.store.Listen(ctx, docstore.NewQuery(domain.TypingPath(roomID)), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		out := make([]domain.TypingStatus, 0, len(docs))
		for _, d := range docs {
			out = append(out, decodeTyping(roomID, d))
		}
		fn(out, nil)
	})
}
