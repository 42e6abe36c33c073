package repository

import (
	"context"
	"errors"
	"time"

	"chat_room_client/internal/member/domain"
	"chat_room_client/pkg/database"
)

const sessionKeyPrefix = "member_session:"

// SessionRepository 每個 member 一個 session, TTL 到期即失效
type SessionRepository interface {
	Save(ctx context.Context, session domain.MemberSession, ttl time.Duration) error
	Find(ctx context.Context, memberID string) (*domain.MemberSession, error)
	Extend(ctx context.Context, memberID string, ttl time.Duration) error
	TTL(ctx context.Context, memberID string) (time.Duration, error)
	Delete(ctx context.Context, memberID string) error
}

type sessionRepository struct {
	redis database.RedisRepository[domain.MemberSession]
}

// NewSessionRepository redis backed sessions
func NewSessionRepository(redis database.RedisRepository[domain.MemberSession]) SessionRepository {
	return &sessionRepository{redis: redis}
}

func sessionKey(memberID string) string {
	return sessionKeyPrefix + memberID
}

func (r *sessionRepository) Save(ctx context.Context, s domain.MemberSession, ttl time.Duration) error {
	return r.redis.Set(ctx, sessionKey(s.MemberID), s, ttl)
}

func (r *sessionRepository) Find(ctx context.Context, memberID string) (*domain.MemberSession, error) {
	s, err := r.redis.Get(ctx, sessionKey(memberID))
	if errors.Is(err, database.ErrRedisNil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Extend(ctx context.Context, memberID string, ttl time.Duration) error {
	return r.redis.ExtendTTL(ctx, sessionKey(memberID), ttl)
}

func (r *sessionRepository) TTL(ctx context.Context, memberID string) (time.Duration, error) {
	secs, err := r.redis.GetTTL(ctx, sessionKey(memberID))
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func (r *sessionRepository) Delete(ctx context.Context, memberID string) error {
	return r.redis.Del(ctx, sessionKey(memberID))
}
