package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/docstore"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv 同一個 memory store 上的所有 repository
type testEnv struct {
	store docstore.Store
	clock *testClock
	blobs *repository.MemoryBlobStore
	deps  Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newTestClock()
	store := docstore.NewMemoryStore(clock.Now)
	t.Cleanup(func() { _ = store.Close() })
	blobs := repository.NewMemoryBlobStore("http://localhost:8080/blobs")
	return &testEnv{
		store: store,
		clock: clock,
		blobs: blobs,
		deps: Deps{
			Rooms:      repository.NewRoomRepository(store),
			Messages:   repository.NewMessageRepository(store),
			Typing:     repository.NewTypingRepository(store),
			Profiles:   repository.NewProfileRepository(store),
			Blobs:      blobs,
			TypingIdle: time.Hour,
			Clock:      clock.Now,
		},
	}
}

// controller 已 Start 的 session, 測試結束時關閉
func (e *testEnv) controller(t *testing.T, u domain.User) *RoomSessionController {
	t.Helper()
	c := NewRoomSessionController(context.Background(), e.deps, u, nil)
	require.NoError(t, c.Start())
	t.Cleanup(c.Close)
	return c
}

func (e *testEnv) profile(t *testing.T, uid, name string) domain.User {
	t.Helper()
	photo := "https://example.com/" + uid + ".png"
	require.NoError(t, e.deps.Profiles.UpsertProfile(context.Background(), uid, domain.ProfileUpdate{DisplayName: &name, PhotoURL: &photo}))
	return domain.User{ID: uid, DisplayName: name, PhotoURL: photo}
}

// fakeTimers 手動觸發的 afterFunc
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped bool
}

func (ft *fakeTimers) after(d time.Duration, f func()) func() bool {
	t := &fakeTimer{f: f}
	ft.mu.Lock()
	ft.timers = append(ft.timers, t)
	ft.mu.Unlock()
	return func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// fireActive 觸發尚未停止的 timer
func (ft *fakeTimers) fireActive() {
	ft.mu.Lock()
	var fire []func()
	for _, t := range ft.timers {
		if !t.stopped {
			t.stopped = true
			fire = append(fire, t.f)
		}
	}
	ft.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

// fireAt 不管是否已停止, 模擬 Stop 與觸發同時發生
func (ft *fakeTimers) fireAt(i int) {
	ft.mu.Lock()
	f := ft.timers[i].f
	ft.mu.Unlock()
	f()
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

type fakeAccount struct {
	user     domain.User
	password string
}

// fakeIdentity in-memory IdentityProvider, 與 firebase 一樣訂閱時先送出目前狀態
type fakeIdentity struct {
	mu         sync.Mutex
	accounts   map[string]*fakeAccount
	current    *domain.User
	listeners  map[int]func(*domain.User)
	nextID     int
	nextSub    int
	silent     bool
	signOutErr error
	updateErr  error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts:  make(map[string]*fakeAccount),
		listeners: make(map[int]func(*domain.User)),
	}
}

func (f *fakeIdentity) emit() {
	f.mu.Lock()
	var u *domain.User
	if f.current != nil {
		c := *f.current
		u = &c
	}
	fns := make([]func(*domain.User), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	f.mu.Lock()
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return nil, domain.NewAuthError(domain.AuthEmailAlreadyInUse, nil)
	}
	f.nextID++
	acc := &fakeAccount{user: domain.User{ID: fmt.Sprintf("uid-%d", f.nextID)}, password: password}
	f.accounts[email] = acc
	u := acc.user
	f.current = &u
	f.mu.Unlock()
	f.emit()
	return &u, nil
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	f.mu.Lock()
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		f.mu.Unlock()
		return nil, domain.NewAuthError(domain.AuthInvalidCredential, nil)
	}
	u := acc.user
	f.current = &u
	f.mu.Unlock()
	f.emit()
	return &u, nil
}

func (f *fakeIdentity) UpdateProfile(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.User, error) {
	f.mu.Lock()
	if f.updateErr != nil {
		err := f.updateErr
		f.mu.Unlock()
		return nil, err
	}
	var acc *fakeAccount
	for _, a := range f.accounts {
		if a.user.ID == uid {
			acc = a
		}
	}
	if acc == nil {
		f.mu.Unlock()
		return nil, domain.NewAuthError(domain.AuthUserNotFound, nil)
	}
	if update.DisplayName != nil {
		acc.user.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		acc.user.PhotoURL = *update.PhotoURL
	}
	u := acc.user
	notify := f.current != nil && f.current.ID == uid
	if notify {
		f.current = &u
	}
	f.mu.Unlock()
	if notify {
		f.emit()
	}
	return &u, nil
}

func (f *fakeIdentity) CurrentUser() *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	u := *f.current
	return &u
}

func (f *fakeIdentity) OnAuthStateChanged(fn func(*domain.User)) func() {
	f.mu.Lock()
	f.nextSub++
	id := f.nextSub
	f.listeners[id] = fn
	silent := f.silent
	f.mu.Unlock()
	if !silent {
		fn(f.CurrentUser())
	}
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	if f.signOutErr != nil {
		err := f.signOutErr
		f.mu.Unlock()
		return err
	}
	f.current = nil
	f.mu.Unlock()
	f.emit()
	return nil
}

func (f *fakeIdentity) Token() string {
	if u := f.CurrentUser(); u != nil {
		return "token-" + u.ID
	}
	return ""
}
