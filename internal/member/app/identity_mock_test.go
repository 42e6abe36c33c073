package app

import (
	"context"
	"time"

	"chat_room_client/internal/member/domain"

	"github.com/stretchr/testify/mock"
)

// MockMemberRepo Mock MemberRepository
type MockMemberRepo struct {
	mock.Mock
}

func (m *MockMemberRepo) CreateUser(ctx context.Context, user *domain.Member) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockMemberRepo) UpdateMemberStatus(ctx context.Context, user *domain.Member) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockMemberRepo) UpdateProfile(ctx context.Context, memberID string, displayName, photoURL *string) (*domain.Member, error) {
	args := m.Called(ctx, memberID, displayName, photoURL)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMemberRepo) FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error) {
	args := m.Called(ctx, memberQuery)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSessionRepo 針對 MemberSession 的 Mock
type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Save(ctx context.Context, s domain.MemberSession, ttl time.Duration) error {
	args := m.Called(ctx, s, ttl)
	return args.Error(0)
}

func (m *MockSessionRepo) Find(ctx context.Context, memberID string) (*domain.MemberSession, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.MemberSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionRepo) Extend(ctx context.Context, memberID string, ttl time.Duration) error {
	args := m.Called(ctx, memberID, ttl)
	return args.Error(0)
}

func (m *MockSessionRepo) TTL(ctx context.Context, memberID string) (time.Duration, error) {
	args := m.Called(ctx, memberID)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockSessionRepo) Delete(ctx context.Context, memberID string) error {
	args := m.Called(ctx, memberID)
	return args.Error(0)
}

// MockCounter 模擬 login 次數計數
type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounter) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
