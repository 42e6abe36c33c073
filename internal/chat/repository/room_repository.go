package repository

import (
	"context"
	"fmt"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/docstore"
)

// RoomRepository definition chat room
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *domain.Room) (string, error)
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	FindByName(ctx context.Context, name string) ([]domain.Room, error)
	AddMember(ctx context.Context, roomID, uid string) error
	WatchMemberRooms(ctx context.Context, uid string, fn func([]domain.Room, error)) (docstore.Subscription, error)
}

type roomRepository struct {
	store docstore.Store
}

// NewRoomRepository create room repository over store
func NewRoomRepository(store docstore.Store) RoomRepository {
	return &roomRepository{store: store}
}

// CreateRoom write room, createdAt is assigned by the store
func (r *roomRepository) CreateRoom(ctx context.Context, room *domain.Room) (string, error) {
	members := make([]any, 0, len(room.Members))
	for _, m := range room.Members {
		members = append(members, m)
	}
	id, err := r.store.Add(ctx, domain.RoomsCollection, map[string]any{
		"name":      room.Name,
		"password":  room.Password,
		"createdBy": room.CreatedBy,
		"members":   members,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("create room %q: %w", room.Name, err)
	}
	room.ID = id
	return id, nil
}

// FindByID find room by id
func (r *roomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	doc, err := r.store.Get(ctx, domain.RoomPath(roomID))
	if err != nil {
		return nil, err
	}
	room := decodeRoom(*doc)
	return &room, nil
}

// FindByName exact name match, oldest first
func (r *roomRepository) FindByName(ctx context.Context, name string) ([]domain.Room, error) {
	q := docstore.NewQuery(domain.RoomsCollection).
		Where("name", docstore.OpEqual, name).
		OrderBy("createdAt", docstore.Asc)
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find room %q: %w", name, err)
	}
	rooms := make([]domain.Room, 0, len(docs))
	for _, d := range docs {
		rooms = append(rooms, decodeRoom(d))
	}
	return rooms, nil
}

// AddMember 已是成員時不會重複加入
func (r *roomRepository) AddMember(ctx context.Context, roomID, uid string) error {
	return r.store.Update(ctx, domain.RoomPath(roomID), map[string]any{
		"members": docstore.ArrayUnion(uid),
	})
}

// WatchMemberRooms live rooms whose members contain uid
func (r *roomRepository) WatchMemberRooms(ctx context.Context, uid string, fn func([]domain.Room, error)) (docstore.Subscription, error) {
	q := docstore.NewQuery(domain.RoomsCollection).Where("members", docstore.OpArrayContains, uid)
	return r.store.Listen(ctx, q, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		rooms := make([]domain.Room, 0, len(docs))
		for _, d := range docs {
			rooms = append(rooms, decodeRoom(d))
		}
		fn(rooms, nil)
	})
}
