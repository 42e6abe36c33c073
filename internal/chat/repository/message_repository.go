package repository

import (
	"context"
	"fmt"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/docstore"
)

// MessageRepository definition room message log
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *domain.Message) (string, error)
	WatchRoomMessages(ctx context.Context, roomID string, fn func([]domain.Message, error)) (docstore.Subscription, error)
	WatchLatestMessage(ctx context.Context, roomID string, fn func(*domain.Message, error)) (docstore.Subscription, error)
}

type messageRepository struct {
	store docstore.Store
}

// NewMessageRepository create message repository over store
func NewMessageRepository(store docstore.Store) MessageRepository {
	return &messageRepository{store: store}
}

// InsertMessage append message, timestamp is assigned by the store
func (r *messageRepository) InsertMessage(ctx context.Context, msg *domain.Message) (string, error) {
	var imageURL any
	if msg.ImageURL != "" {
		imageURL = msg.ImageURL
	}
	id, err := r.store.Add(ctx, domain.MessagesPath(msg.RoomID), map[string]any{
		"text":        msg.Text,
		"imageUrl":    imageURL,
		"uid":         msg.SenderID,
		"displayName": msg.DisplayName,
		"photoURL":    msg.PhotoURL,
		"timestamp":   docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("insert message room=%s: %w", msg.RoomID, err)
	}
	msg.ID = id
	return id, nil
}

// WatchRoomMessages live messages ordered by timestamp asc
func (r *messageRepository) WatchRoomMessages(ctx context.Context, roomID string, fn func([]domain.Message, error)) (docstore.Subscription, error) {
	q := docstore.NewQuery(domain.MessagesPath(roomID)).OrderBy("timestamp", docstore.Asc)
	return r.store.Listen(ctx, q, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		msgs := make([]domain.Message, 0, len(docs))
		for _, d := range docs {
			msgs = append(msgs, decodeMessage(roomID, d))
		}
		fn(msgs, nil)
	})
}

// WatchLatestMessage live latest message, nil when the room is empty
func (r *messageRepository) WatchLatestMessage(ctx context.Context, roomID string, fn func(*domain.Message, error)) (docstore.Subscription, error) {
	q := docstore.NewQuery(domain.MessagesPath(roomID)).OrderBy("timestamp", docstore.Desc).Limit(1)
	return r.store.Listen(ctx, q, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		if len(docs) == 0 {
			fn(nil, nil)
			return
		}
		msg := decodeMessage(roomID, docs[0])
		fn(&msg, nil)
	})
}
