package app

import (
	"context"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/docstore"

	"github.com/stretchr/testify/mock"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// CreateRoom mock create room
func (m *MockRoomRepository) CreateRoom(ctx context.Context, room *domain.Room) (string, error) {
	args := m.Called(ctx, room)
	return args.String(0), args.Error(1)
}

// FindByID mock find room by id
func (m *MockRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByName mock find rooms by name
func (m *MockRoomRepository) FindByName(ctx context.Context, name string) ([]domain.Room, error) {
	args := m.Called(ctx, name)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

// AddMember mock add member
func (m *MockRoomRepository) AddMember(ctx context.Context, roomID, uid string) error {
	args := m.Called(ctx, roomID, uid)
	return args.Error(0)
}

// WatchMemberRooms mock watch rooms
func (m *MockRoomRepository) WatchMemberRooms(ctx context.Context, uid string, fn func([]domain.Room, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, uid, fn)
	if args.Get(0) != nil {
		return args.Get(0).(docstore.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// InsertMessage mock insert message
func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg *domain.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// WatchRoomMessages mock watch messages
func (m *MockMessageRepository) WatchRoomMessages(ctx context.Context, roomID string, fn func([]domain.Message, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, roomID, fn)
	if args.Get(0) != nil {
		return args.Get(0).(docstore.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// WatchLatestMessage mock watch latest message
func (m *MockMessageRepository) WatchLatestMessage(ctx context.Context, roomID string, fn func(*domain.Message, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, roomID, fn)
	if args.Get(0) != nil {
		return args.Get(0).(docstore.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTypingRepository Mock TypingRepository
type MockTypingRepository struct {
	mock.Mock
}

// SetTyping mock set typing
func (m *MockTypingRepository) SetTyping(ctx context.Context, roomID, uid string, isTyping bool) error {
	args := m.Called(ctx, roomID, uid, isTyping)
	return args.Error(0)
}

// WatchRoomTyping mock watch typing
func (m *MockTypingRepository) WatchRoomTyping(ctx context.Context, roomID string, fn func([]domain.TypingStatus, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, roomID, fn)
	if args.Get(0) != nil {
		return args.Get(0).(docstore.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProfileRepository Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

// UpsertProfile mock upsert profile
func (m *MockProfileRepository) UpsertProfile(ctx context.Context, uid string, update domain.ProfileUpdate) error {
	args := m.Called(ctx, uid, update)
	return args.Error(0)
}

// FindProfile mock find profile
func (m *MockProfileRepository) FindProfile(ctx context.Context, uid string) (*domain.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// WatchProfile mock watch profile
func (m *MockProfileRepository) WatchProfile(ctx context.Context, uid string, fn func(*domain.User, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, uid, fn)
	if args.Get(0) != nil {
		return args.Get(0).(docstore.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBlobStore Mock BlobStore
type MockBlobStore struct {
	mock.Mock
}

// Upload mock upload
func (m *MockBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) (repository.ObjectRef, error) {
	args := m.Called(ctx, path, data, contentType)
	return args.Get(0).(repository.ObjectRef), args.Error(1)
}

// DownloadURL mock download url
func (m *MockBlobStore) DownloadURL(ctx context.Context, ref repository.ObjectRef) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

// MockSubscription Mock docstore.Subscription
type MockSubscription struct {
	mock.Mock
}

// Stop mock stop
func (m *MockSubscription) Stop() {
	m.Called()
}
