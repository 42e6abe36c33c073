package app

import (
	"context"
	"errors"
	"sync"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/docstore"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProfileCache uid -> latest profile, 第一次看到 uid 時才訂閱, 直到 Close 才取消
type ProfileCache struct {
	ctx      context.Context
	repo     repository.ProfileRepository
	onChange func()

	mu       sync.Mutex
	profiles map[string]domain.User
	subs     map[string]docstore.Subscription
	closed   bool

	loads singleflight.Group
}

// NewProfileCache ctx 為訂閱的生命週期
func NewProfileCache(ctx context.Context, repo repository.ProfileRepository, onChange func()) *ProfileCache {
	if onChange == nil {
		onChange = func() {}
	}
	return &ProfileCache{
		ctx:      ctx,
		repo:     repo,
		onChange: onChange,
		profiles: make(map[string]domain.User),
		subs:     make(map[string]docstore.Subscription),
	}
}

// Observe subscribe uid once
func (c *ProfileCache) Observe(uid string) {
	if uid == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.subs[uid]; ok || c.closed {
		c.mu.Unlock()
		return
	}
	// 先佔位, 避免同一 uid 重複訂閱
	c.subs[uid] = nil
	c.mu.Unlock()

	sub, err := c.repo.WatchProfile(c.ctx, uid, func(u *domain.User, err error) {
		c.apply(uid, u, err)
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if sub != nil {
			sub.Stop()
		}
		return
	}
	if err != nil {
		delete(c.subs, uid)
		c.mu.Unlock()
		logger.Log.Warn("watch profile", zap.String("uid", uid), zap.Error(err))
		return
	}
	c.subs[uid] = sub
	c.mu.Unlock()
}

func (c *ProfileCache) apply(uid string, u *domain.User, err error) {
	if err != nil {
		logger.Log.Warn("profile delivery", zap.String("uid", uid), zap.Error(err))
		return
	}
	if u == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.profiles[uid] = *u
	c.mu.Unlock()
	c.onChange()
}

// Get latest profile or the default one
func (c *ProfileCache) Get(uid string) domain.User {
	if u, ok := c.Lookup(uid); ok {
		return u
	}
	return domain.DefaultProfile(uid)
}

// Lookup ok = a profile has been delivered or resolved
func (c *ProfileCache) Lookup(uid string) (domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.profiles[uid]
	return u, ok
}

// Resolve one-shot load for callers that need a value now
func (c *ProfileCache) Resolve(ctx context.Context, uid string) (domain.User, error) {
	if u, ok := c.Lookup(uid); ok {
		return u, nil
	}
	v, err, _ := c.loads.Do(uid, func() (any, error) {
		u, err := c.repo.FindProfile(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.DefaultProfile(uid), nil
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// live delivery 優先
		if _, ok := c.profiles[uid]; !ok && !c.closed {
			c.profiles[uid] = *u
		}
		c.mu.Unlock()
		return *u, nil
	})
	if err != nil {
		return domain.DefaultProfile(uid), err
	}
	return v.(domain.User), nil
}

// Observed number of subscribed uids
func (c *ProfileCache) Observed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close stop every profile subscription
func (c *ProfileCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]docstore.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Stop()
		}
	}
}
