package repository

import (
	"context"
	"fmt"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/docstore"
)

// ProfileRepository definition users/{uid}
type ProfileRepository interface {
	UpsertProfile(ctx context.Context, uid string, update domain.ProfileUpdate) error
	FindProfile(ctx context.Context, uid string) (*domain.User, error)
	WatchProfile(ctx context.Context, uid string, fn func(*domain.User, error)) (docstore.Subscription, error)
}

type profileRepository struct {
	store docstore.Store
}

// NewProfileRepository create profile repository over store
func NewProfileRepository(store docstore.Store) ProfileRepository {
	return &profileRepository{store: store}
}

// UpsertProfile merge, 只寫入有提供的欄位
func (r *profileRepository) UpsertProfile(ctx context.Context, uid string, update domain.ProfileUpdate) error {
	data := map[string]any{"uid": uid}
	if update.DisplayName != nil {
		data["displayName"] = *update.DisplayName
	}
	if update.PhotoURL != nil {
		data["photoURL"] = *update.PhotoURL
	}
	if err := r.store.Set(ctx, domain.UserPath(uid), data, docstore.Merge()); err != nil {
		return fmt.Errorf("upsert profile %s: %w", uid, err)
	}
	return nil
}

// FindProfile ErrNotFound when users/{uid} does not exist
func (r *profileRepository) FindProfile(ctx context.Context, uid string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, domain.UserPath(uid))
	if err != nil {
		return nil, err
	}
	u := decodeUser(uid, *doc)
	return &u, nil
}

// WatchProfile nil user until the document exists
func (r *profileRepository) WatchProfile(ctx context.Context, uid string, fn func(*domain.User, error)) (docstore.Subscription, error) {
	return r.store.ListenDocument(ctx, domain.UserPath(uid), func(doc *docstore.Document, err error) {
		if err != nil || doc == nil {
			fn(nil, err)
			return
		}
		u := decodeUser(uid, *doc)
		fn(&u, nil)
	})
}
