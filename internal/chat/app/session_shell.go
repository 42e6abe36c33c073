package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	errprocess "chat_room_client/pkg/err"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// AvatarBaseURL deterministic avatar seeded by username
const AvatarBaseURL = "https://api.dicebear.com/7.x/icons/svg?seed="

// DefaultLoadingTimeout cutover of the loading state
const DefaultLoadingTimeout = 10 * time.Second

// AuthState session state
type AuthState string

// session states
const (
	StateLoading         AuthState = "loading"
	StateUnauthenticated AuthState = "unauthenticated"
	StateAuthenticated   AuthState = "authenticated"
)

// IdentityProvider accounts and auth state
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*domain.User, error)
	SignIn(ctx context.Context, email, password string) (*domain.User, error)
	UpdateProfile(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.User, error)
	CurrentUser() *domain.User
	OnAuthStateChanged(fn func(*domain.User)) (unsubscribe func())
	SignOut(ctx context.Context) error
	Token() string
}

// ShellOptions optional settings of the shell
type ShellOptions struct {
	LoadingTimeout time.Duration
	Compress       func([]byte) ([]byte, error)
}

// ShellStatus snapshot of the session state
type ShellStatus struct {
	State           AuthState    `json:"state"`
	User            *domain.User `json:"user,omitempty"`
	LoadingTimedOut bool         `json:"loadingTimedOut"`
}

// SessionShell auth state machine feeding the user into a RoomSessionController
type SessionShell struct {
	ctx      context.Context
	identity IdentityProvider
	deps     Deps
	opts     ShellOptions
	changes  chan struct{}

	// authMu 序列化 auth state 轉換
	authMu sync.Mutex

	mu          sync.Mutex
	state       AuthState
	user        *domain.User
	timedOut    bool
	controller  *RoomSessionController
	unsubscribe func()
	stopTimer   func() bool
	signingOut  bool
	closed      bool
}

// NewSessionShell ctx 為整個 application 的生命週期
func NewSessionShell(ctx context.Context, identity IdentityProvider, deps Deps, opts ShellOptions) *SessionShell {
	if opts.LoadingTimeout <= 0 {
		opts.LoadingTimeout = DefaultLoadingTimeout
	}
	if opts.Compress == nil {
		opts.Compress = func(b []byte) ([]byte, error) { return CompressImage(b, DefaultCompressOptions) }
	}
	return &SessionShell{
		ctx:      ctx,
		identity: identity,
		deps:     deps,
		opts:     opts,
		changes:  make(chan struct{}, 1),
		state:    StateLoading,
	}
}

// Start subscribe auth state once for the lifetime of the shell
func (s *SessionShell) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimer = time.AfterFunc(s.opts.LoadingTimeout, s.loadingCutover).Stop
	s.mu.Unlock()

	unsubscribe := s.identity.OnAuthStateChanged(s.onAuthStateChanged)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// loadingCutover 沒有收到 auth state 時轉為 unauthenticated 並標記 timeout
func (s *SessionShell) loadingCutover() {
	s.mu.Lock()
	if s.state != StateLoading || s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateUnauthenticated
	s.timedOut = true
	s.mu.Unlock()
	logger.Log.Warn("auth state loading timed out", zap.Duration("timeout", s.opts.LoadingTimeout))
	s.signal()
}

func (s *SessionShell) onAuthStateChanged(u *domain.User) {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.timedOut = false
	// sign out 進行中, 不再建立新的 session
	if u != nil && s.signingOut {
		s.mu.Unlock()
		return
	}
	current := s.controller

	// 同一個 user 只更新 profile
	if u != nil && current != nil && s.user != nil && s.user.ID == u.ID {
		user := *u
		s.user = &user
		s.mu.Unlock()
		current.SetUser(user)
		s.signal()
		return
	}
	s.controller = nil
	s.mu.Unlock()

	// 先同步拆掉上一個 session
	if current != nil {
		current.Close()
	}

	if u == nil {
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.user = nil
		s.signingOut = false
		s.mu.Unlock()
		logger.Log.Info("signed out")
		s.signal()
		return
	}

	user := *u
	controller := NewRoomSessionController(s.ctx, s.deps, user, s.signal)
	if err := controller.Start(); err != nil {
		logger.Log.Warn("start room session", zap.String("uid", user.ID), zap.Error(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		controller.Close()
		return
	}
	s.state = StateAuthenticated
	s.user = &user
	s.controller = controller
	s.mu.Unlock()
	logger.Log.Info("signed in", zap.String("uid", user.ID))
	s.signal()
}

func (s *SessionShell) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes coalescing change signal of the shell and its controller
func (s *SessionShell) Changes() <-chan struct{} {
	return s.changes
}

// Status current state
func (s *SessionShell) Status() ShellStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := ShellStatus{State: s.state, LoadingTimedOut: s.timedOut}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// CurrentUser nil when signed out
func (s *SessionShell) CurrentUser() *domain.User {
	return s.Status().User
}

// Loading true until the first auth state or the cutover
func (s *SessionShell) Loading() bool {
	return s.Status().State == StateLoading
}

// Controller active controller, nil when signed out
func (s *SessionShell) Controller() *RoomSessionController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// Token session credential of the identity provider
func (s *SessionShell) Token() string {
	return s.identity.Token()
}

// Register sign up, set display name + avatar and write users/{uid}
func (s *SessionShell) Register(ctx context.Context, email, password, username string) (*domain.User, error) {
	email, username = strings.TrimSpace(email), strings.TrimSpace(username)
	if email == "" || password == "" || username == "" {
		return nil, domain.ErrValidation
	}

	u, err := s.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	avatar := AvatarBaseURL + url.PathEscape(username)
	update := domain.ProfileUpdate{DisplayName: &username, PhotoURL: &avatar}
	updated, err := s.identity.UpdateProfile(ctx, u.ID, update)
	if err != nil {
		// 帳號已建立且已登入, users/{uid} 仍會寫入名稱與頭像
		logger.Log.Warn("set profile after register", zap.String("uid", u.ID), zap.Error(err))
		updated = u
	}
	if err := s.deps.Profiles.UpsertProfile(ctx, u.ID, update); err != nil {
		// 帳號已建立, profile 文件會在下次 login 補上
		logger.Log.Warn("write profile after register", zap.String("uid", u.ID), zap.Error(err))
	}
	logger.Log.Info("registered", zap.String("uid", u.ID))
	return updated, nil
}

// Login sign in and fill the missing fields of users/{uid}
func (s *SessionShell) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.ErrValidation
	}

	u, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.reconcileProfile(ctx, *u); err != nil {
		logger.Log.Warn("reconcile profile", zap.String("uid", u.ID), zap.Error(err))
	}
	return u, nil
}

// reconcileProfile 只補上不存在的欄位, 不覆寫既有值
func (s *SessionShell) reconcileProfile(ctx context.Context, u domain.User) error {
	existing, err := s.deps.Profiles.FindProfile(ctx, u.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	var update domain.ProfileUpdate
	if existing == nil || existing.DisplayName == "" || existing.DisplayName == domain.UnknownDisplayName {
		if u.DisplayName != "" {
			name := u.DisplayName
			update.DisplayName = &name
		}
	}
	if existing == nil || existing.PhotoURL == "" {
		if u.PhotoURL != "" {
			photo := u.PhotoURL
			update.PhotoURL = &photo
		}
	}
	if update.IsEmpty() && existing != nil {
		return nil
	}
	return s.deps.Profiles.UpsertProfile(ctx, u.ID, update)
}

// Logout tear down the room session before signing out
func (s *SessionShell) Logout(ctx context.Context) error {
	s.authMu.Lock()
	s.mu.Lock()
	current := s.controller
	s.controller = nil
	s.signingOut = true
	s.mu.Unlock()
	if current != nil {
		current.Close()
	}
	s.authMu.Unlock()

	if err := s.identity.SignOut(ctx); err != nil {
		s.mu.Lock()
		s.signingOut = false
		s.mu.Unlock()
		// 仍是登入狀態, 重建 session
		s.onAuthStateChanged(s.identity.CurrentUser())
		return errprocess.Wrap(domain.ErrNotAuthenticated, "sign out", err)
	}

	// provider 沒有登入中的 user 時不會再通知, 這裡自行收斂
	s.mu.Lock()
	s.signingOut = false
	s.mu.Unlock()
	if s.identity.CurrentUser() == nil {
		s.onAuthStateChanged(nil)
	}
	return nil
}

// UpdateProfile settings: display name and optional picture (compressed, profilePictures/{uid})
func (s *SessionShell) UpdateProfile(ctx context.Context, displayName string, picture *domain.ImageFile) (*domain.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.ErrValidation
	}
	current := s.CurrentUser()
	if current == nil {
		return nil, domain.ErrNotAuthenticated
	}

	photoURL := current.PhotoURL
	if picture != nil {
		if err := domain.ValidateImage(picture); err != nil {
			return nil, err
		}
		data, err := s.opts.Compress(picture.Data)
		if err != nil {
			return nil, errprocess.Wrap(domain.ErrInvalidFileType, "compress profile picture", err)
		}
		ref, err := s.deps.Blobs.Upload(ctx, domain.ProfilePicturePath(current.ID), data, "image/jpeg")
		if err != nil {
			return nil, errprocess.Wrap(domain.ErrSendFailed, "upload profile picture", err)
		}
		if photoURL, err = s.deps.Blobs.DownloadURL(ctx, ref); err != nil {
			return nil, errprocess.Wrap(domain.ErrSendFailed, "resolve profile picture url", err)
		}
	}

	update := domain.ProfileUpdate{DisplayName: &displayName, PhotoURL: &photoURL}
	updated, err := s.identity.UpdateProfile(ctx, current.ID, update)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Profiles.UpsertProfile(ctx, current.ID, update); err != nil {
		return nil, errprocess.Wrap(domain.ErrSendFailed, "update profile document", err)
	}
	return updated, nil
}

// Close stop the auth subscription and the active session
func (s *SessionShell) Close() {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	current := s.controller
	s.controller = nil
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if current != nil {
		current.Close()
	}
}
