package repository

import (
	"context"
	"sync"
	"time"

	"chat_room_client/internal/member/domain"
	"chat_room_client/pkg/database"
)

// memoryMemberRepository identity: memory 時使用, 重啟後資料消失
type memoryMemberRepository struct {
	mu      sync.RWMutex
	nextID  int64
	members map[string]*domain.Member
	clock   func() time.Time
}

// NewMemoryMemberRepository in-process MemberRepository
func NewMemoryMemberRepository(clock func() time.Time) MemberRepository {
	if clock == nil {
		clock = time.Now
	}
	return &memoryMemberRepository{members: make(map[string]*domain.Member), clock: clock}
}

func (r *memoryMemberRepository) CreateUser(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Email == member.Email || m.MemberID == member.MemberID {
			return domain.ErrEmailExists
		}
	}
	r.nextID++
	member.ID = r.nextID
	member.CreatedAt = r.clock()
	c := *member
	r.members[member.MemberID] = &c
	return nil
}

func (r *memoryMemberRepository) UpdateMemberStatus(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[member.MemberID]; ok {
		m.Status = member.Status
	}
	return nil
}

func (r *memoryMemberRepository) UpdateProfile(ctx context.Context, memberID string, displayName, photoURL *string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	if displayName != nil {
		m.DisplayName = *displayName
	}
	if photoURL != nil {
		m.PhotoURL = *photoURL
	}
	c := *m
	return &c, nil
}

func (r *memoryMemberRepository) FindByMember(ctx context.Context, q *domain.MemberQuery) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if q.Email != nil && m.Email != *q.Email {
			continue
		}
		if q.MemberID != nil && m.MemberID != *q.MemberID {
			continue
		}
		if q.ID != nil && m.ID != *q.ID {
			continue
		}
		c := *m
		return &c, nil
	}
	return nil, domain.ErrMemberNotFound
}

type memorySession struct {
	session  domain.MemberSession
	deadline time.Time
}

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	clock    func() time.Time
}

// NewMemorySessionRepository in-process SessionRepository
func NewMemorySessionRepository(clock func() time.Time) SessionRepository {
	if clock == nil {
		clock = time.Now
	}
	return &memorySessionRepository{sessions: make(map[string]memorySession), clock: clock}
}

// liveLocked caller 需持有 r.mu, 過期的 session 順便清掉
func (r *memorySessionRepository) liveLocked(memberID string) (memorySession, bool) {
	s, ok := r.sessions[memberID]
	if !ok {
		return memorySession{}, false
	}
	if !r.clock().Before(s.deadline) {
		delete(r.sessions, memberID)
		return memorySession{}, false
	}
	return s, true
}

func (r *memorySessionRepository) Save(ctx context.Context, s domain.MemberSession, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.MemberID] = memorySession{session: s, deadline: r.clock().Add(ttl)}
	return nil
}

func (r *memorySessionRepository) Find(ctx context.Context, memberID string) (*domain.MemberSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.liveLocked(memberID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	c := s.session
	return &c, nil
}

func (r *memorySessionRepository) Extend(ctx context.Context, memberID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.liveLocked(memberID)
	if !ok {
		return nil
	}
	s.deadline = r.clock().Add(ttl)
	r.sessions[memberID] = s
	return nil
}

func (r *memorySessionRepository) TTL(ctx context.Context, memberID string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.liveLocked(memberID)
	if !ok {
		return 0, nil
	}
	return s.deadline.Sub(r.clock()), nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, memberID)
	return nil
}

type memoryWindow struct {
	count    int64
	deadline time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	clock   func() time.Time
}

// NewMemoryCounter in-process database.RedisCounter
func NewMemoryCounter(clock func() time.Time) database.RedisCounter {
	if clock == nil {
		clock = time.Now
	}
	return &memoryCounter{windows: make(map[string]memoryWindow), clock: clock}
}

func (c *memoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.deadline) {
		w = memoryWindow{deadline: now.Add(window)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

func (c *memoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}
