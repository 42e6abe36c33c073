package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/docstore"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// DefaultTypingIdle idle time before typing flips back to false
const DefaultTypingIdle = 1500 * time.Millisecond

const typingWriteTimeout = 5 * time.Second

// afterFunc 可替換成假時鐘, 回傳 stop
type afterFunc func(d time.Duration, f func()) func() bool

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// PresenceTracker typing users of one room and debounce of the current user's own signal
type PresenceTracker struct {
	ctx      context.Context
	repo     repository.TypingRepository
	roomID   string
	uid      string
	idle     time.Duration
	after    afterFunc
	onChange func()

	mu        sync.Mutex
	typing    []string
	sub       docstore.Subscription
	local     bool
	stopTimer func() bool
	timerGen  uint64
	closed    bool

	// 寫入序列化, 每次寫入讀取當下的 local, 最後一次寫入必為最新狀態
	writeMu sync.Mutex
}

// NewPresenceTracker idle <= 0 uses DefaultTypingIdle
func NewPresenceTracker(ctx context.Context, repo repository.TypingRepository, roomID, uid string, idle time.Duration, onChange func()) *PresenceTracker {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &PresenceTracker{
		ctx:      ctx,
		repo:     repo,
		roomID:   roomID,
		uid:      uid,
		idle:     idle,
		after:    realAfterFunc,
		onChange: onChange,
	}
}

// Start subscribe room typing records
func (t *PresenceTracker) Start() error {
	sub, err := t.repo.WatchRoomTyping(t.ctx, t.roomID, t.apply)
	if err != nil {
		logger.Log.Warn("watch typing", zap.String("room_id", t.roomID), zap.Error(err))
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sub.Stop()
		return nil
	}
	t.sub = sub
	t.mu.Unlock()
	return nil
}

func (t *PresenceTracker) apply(statuses []domain.TypingStatus, err error) {
	if err != nil {
		logger.Log.Warn("typing delivery", zap.String("room_id", t.roomID), zap.Error(err))
		return
	}
	users := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s.IsTyping && s.UserID != t.uid {
			users = append(users, s.UserID)
		}
	}
	sort.Strings(users)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.typing = users
	t.mu.Unlock()
	t.onChange()
}

// RoomID room of the tracker
func (t *PresenceTracker) RoomID() string {
	return t.roomID
}

// TypingUsers other users currently typing
func (t *PresenceTracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.typing...)
}

// LocalTyping current user's local typing state
func (t *PresenceTracker) LocalTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

// SetTyping upsert the current user's record
func (t *PresenceTracker) SetTyping(ctx context.Context, isTyping bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.local = isTyping
	if !isTyping {
		t.cancelTimerLocked()
	}
	t.mu.Unlock()
	t.flush(ctx)
}

// Keystroke typing = true and re-arm the idle timer
func (t *PresenceTracker) Keystroke(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	changed := !t.local
	t.local = true
	t.cancelTimerLocked()
	gen := t.timerGen
	t.stopTimer = t.after(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	if changed {
		t.flush(ctx)
	}
}

// expire 只有最新一次 keystroke 的 timer 有效
func (t *PresenceTracker) expire(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.timerGen || !t.local {
		t.mu.Unlock()
		return
	}
	t.local = false
	t.stopTimer = nil
	t.mu.Unlock()
	t.flush(t.ctx)
}

// Blur typing = false immediately, pending timer is cancelled
func (t *PresenceTracker) Blur(ctx context.Context) {
	t.SetTyping(ctx, false)
}

// cancelTimerLocked caller 需持有 t.mu
func (t *PresenceTracker) cancelTimerLocked() {
	t.timerGen++
	if t.stopTimer != nil {
		t.stopTimer()
		t.stopTimer = nil
	}
}

// flush best effort, 失敗只記 log 不重試
func (t *PresenceTracker) flush(ctx context.Context) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	v := t.local
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), typingWriteTimeout)
	defer cancel()
	if err := t.repo.SetTyping(ctx, t.roomID, t.uid, v); err != nil {
		logger.Log.Warn("set typing", zap.String("room_id", t.roomID), zap.Bool("is_typing", v), zap.Error(err))
	}
}

// Close stop subscription and timer, writes false when the user was typing
func (t *PresenceTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancelTimerLocked()
	wasTyping := t.local
	t.local = false
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	if wasTyping {
		t.flush(t.ctx)
	}
}
