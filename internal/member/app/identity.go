package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	chatdomain "chat_room_client/internal/chat/domain"
	"chat_room_client/internal/member/domain"
	"chat_room_client/internal/member/repository"
	"chat_room_client/pkg/database"
	"chat_room_client/pkg/encrypt"
	"chat_room_client/pkg/logger"
	token "chat_room_client/pkg/token"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityOptions session 與 login 限制
type IdentityOptions struct {
	SessionTTL    time.Duration
	LoginAttempts int64
	LoginWindow   time.Duration
	Issuer        string
	Clock         func() time.Time
}

func (o IdentityOptions) withDefaults() IdentityOptions {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.LoginAttempts <= 0 {
		o.LoginAttempts = 5
	}
	if o.LoginWindow <= 0 {
		o.LoginWindow = 15 * time.Minute
	}
	if o.Issuer == "" {
		o.Issuer = "chat_client"
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// MemberIdentity email/password accounts backed by MemberRepository + SessionRepository.
// OnAuthStateChanged 只在 auth state 確定後 (Restore 或 sign in/out) 才會送出目前狀態
type MemberIdentity struct {
	members  repository.MemberRepository
	sessions repository.SessionRepository
	attempts database.RedisCounter
	opts     IdentityOptions
	validate *validator.Validate

	hashPassword func(string) (string, error)

	// emitMu 保證 listener 依序收到狀態
	emitMu sync.Mutex

	mu        sync.Mutex
	current   *chatdomain.User
	session   *domain.MemberSession
	resolved  bool
	listeners map[int]func(*chatdomain.User)
	nextSub   int
}

// NewMemberIdentity 建立 identity provider
func NewMemberIdentity(members repository.MemberRepository, sessions repository.SessionRepository,
	attempts database.RedisCounter, opts IdentityOptions,
) *MemberIdentity {
	return &MemberIdentity{
		members:      members,
		sessions:     sessions,
		attempts:     attempts,
		opts:         opts.withDefaults(),
		validate:     validator.New(),
		hashPassword: encrypt.HashPassword,
		listeners:    make(map[int]func(*chatdomain.User)),
	}
}

// NewMemoryIdentity identity: memory, 帳號只存在 process 內
func NewMemoryIdentity(opts IdentityOptions) *MemberIdentity {
	opts = opts.withDefaults()
	return NewMemberIdentity(
		repository.NewMemoryMemberRepository(opts.Clock),
		repository.NewMemorySessionRepository(opts.Clock),
		repository.NewMemoryCounter(opts.Clock),
		opts,
	)
}

// SignUp create the account and sign it in
func (m *MemberIdentity) SignUp(ctx context.Context, email, password string) (*chatdomain.User, error) {
	email = normalizeEmail(email)
	if err := m.validate.Var(email, "required,email"); err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInvalidEmail, err)
	}
	if err := encrypt.ValidatePasswordStrength(password); err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthWeakPassword, err)
	}
	if _, err := m.members.FindByMember(ctx, &domain.MemberQuery{Email: &email}); err == nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthEmailAlreadyInUse, nil)
	} else if !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}

	pw, err := m.hashPassword(password)
	if err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthWeakPassword, err)
	}
	member := domain.Member{
		MemberID: uuid.New().String(),
		Email:    email,
		Password: pw,
		Status:   domain.MemberStatusOnLine,
	}
	if err := m.members.CreateUser(ctx, &member); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, chatdomain.NewAuthError(chatdomain.AuthEmailAlreadyInUse, err)
		}
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}
	logger.Log.Info("member registered", zap.String("member_id", member.MemberID))

	return m.startSession(ctx, &member)
}

// SignIn email/password, 超過 LoginAttempts 次失敗後在 window 內拒絕
func (m *MemberIdentity) SignIn(ctx context.Context, email, password string) (*chatdomain.User, error) {
	email = normalizeEmail(email)
	if err := m.validate.Var(email, "required,email"); err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInvalidEmail, err)
	}

	key := "login:" + email
	n, err := m.attempts.Incr(ctx, key, m.opts.LoginWindow)
	if err != nil {
		logger.Log.Warn("login rate limit unavailable", zap.Error(err))
	} else if n > m.opts.LoginAttempts {
		return nil, chatdomain.NewAuthError(chatdomain.AuthTooManyRequests, nil)
	}

	member, err := m.members.FindByMember(ctx, &domain.MemberQuery{Email: &email})
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, chatdomain.NewAuthError(chatdomain.AuthUserNotFound, err)
	}
	if err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}
	if err := member.IsPasswordMatch(password); err != nil {
		logger.Log.Info("password mismatch", zap.String("member_id", member.MemberID))
		return nil, chatdomain.NewAuthError(chatdomain.AuthInvalidCredential, err)
	}
	if member.Status == domain.MemberStatusBan || member.Status == domain.MemberStatusDelete {
		return nil, chatdomain.NewAuthError(chatdomain.AuthUserNotFound, nil)
	}

	if err := m.attempts.Reset(ctx, key); err != nil {
		logger.Log.Warn("reset login attempts", zap.Error(err))
	}
	member.Status = domain.MemberStatusOnLine
	if err := m.members.UpdateMemberStatus(ctx, member); err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}
	return m.startSession(ctx, member)
}

// startSession 發 token, 寫入 session, 通知 listener
func (m *MemberIdentity) startSession(ctx context.Context, member *domain.Member) (*chatdomain.User, error) {
	t, err := token.GenerateJWTFunc(member.MemberID, string(token.RoleMember), m.opts.Issuer)
	if err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}
	now := m.opts.Clock()
	session := domain.MemberSession{
		Token:        t,
		MemberID:     member.MemberID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiredAt:    now.Add(m.opts.SessionTTL),
	}
	if err := m.sessions.Save(ctx, session, m.opts.SessionTTL); err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}

	user := member.User()
	m.mu.Lock()
	m.current = &user
	m.session = &session
	m.resolved = true
	m.mu.Unlock()
	logger.Log.Info("member signed in", zap.String("member_id", member.MemberID))

	m.emit()
	out := user
	return &out, nil
}

// Restore resume the session of a saved token
func (m *MemberIdentity) Restore(ctx context.Context, t string) (*chatdomain.User, error) {
	member, session, err := m.checkSession(ctx, t)
	if err != nil {
		m.mu.Lock()
		m.resolved = true
		m.mu.Unlock()
		m.emit()
		return nil, chatdomain.NewAuthError(chatdomain.AuthSessionExpired, err)
	}

	now := m.opts.Clock()
	session.LastActivity = now
	session.ExpiredAt = now.Add(m.opts.SessionTTL)
	if err := m.sessions.Save(ctx, *session, m.opts.SessionTTL); err != nil {
		logger.Log.Warn("extend session", zap.String("member_id", member.MemberID), zap.Error(err))
	}

	user := member.User()
	m.mu.Lock()
	m.current = &user
	m.session = session
	m.resolved = true
	m.mu.Unlock()
	logger.Log.Info("session restored", zap.String("member_id", member.MemberID))

	m.emit()
	out := user
	return &out, nil
}

// MarkSignedOut resolve the auth state without a saved session
func (m *MemberIdentity) MarkSignedOut() {
	m.mu.Lock()
	if m.resolved {
		m.mu.Unlock()
		return
	}
	m.resolved = true
	m.mu.Unlock()
	m.emit()
}

// CheckSession 驗證 token 對應的 session 仍有效
func (m *MemberIdentity) CheckSession(ctx context.Context, t string) (*chatdomain.User, error) {
	member, _, err := m.checkSession(ctx, t)
	if err != nil {
		return nil, err
	}
	user := member.User()
	return &user, nil
}

func (m *MemberIdentity) checkSession(ctx context.Context, t string) (*domain.Member, *domain.MemberSession, error) {
	claims, err := token.ParseJWTFunc(t)
	if err != nil {
		return nil, nil, err
	}
	session, err := m.sessions.Find(ctx, claims.MemberID)
	if err != nil {
		return nil, nil, err
	}
	if session.Token != t || session.IsExpired(m.opts.Clock()) {
		return nil, nil, domain.ErrSessionNotFound
	}
	member, err := m.members.FindByMember(ctx, &domain.MemberQuery{MemberID: &claims.MemberID})
	if err != nil {
		return nil, nil, err
	}
	return member, session, nil
}

// UpdateProfile display name / photo of the account
func (m *MemberIdentity) UpdateProfile(ctx context.Context, uid string, update chatdomain.ProfileUpdate) (*chatdomain.User, error) {
	member, err := m.members.UpdateProfile(ctx, uid, update.DisplayName, update.PhotoURL)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, chatdomain.NewAuthError(chatdomain.AuthUserNotFound, err)
	}
	if err != nil {
		return nil, chatdomain.NewAuthError(chatdomain.AuthInternal, err)
	}

	user := member.User()
	m.mu.Lock()
	isCurrent := m.current != nil && m.current.ID == uid
	if isCurrent {
		m.current = &user
	}
	m.mu.Unlock()
	if isCurrent {
		m.emit()
	}
	out := user
	return &out, nil
}

// CurrentUser nil when signed out
func (m *MemberIdentity) CurrentUser() *chatdomain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	u := *m.current
	return &u
}

// Token JWT of the current session, "" when signed out
func (m *MemberIdentity) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// OnAuthStateChanged 訂閱後立即收到目前狀態 (已確定時)
func (m *MemberIdentity) OnAuthStateChanged(fn func(*chatdomain.User)) func() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.listeners[id] = fn
	resolved := m.resolved
	current := copyUser(m.current)
	m.mu.Unlock()

	if resolved {
		fn(current)
	}
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SignOut 刪除 session, 失敗時仍保持登入
func (m *MemberIdentity) SignOut(ctx context.Context) error {
	m.mu.Lock()
	current := copyUser(m.current)
	m.mu.Unlock()
	if current == nil {
		return nil
	}

	if err := m.sessions.Delete(ctx, current.ID); err != nil {
		return fmt.Errorf("delete session %s: %w", current.ID, err)
	}
	if err := m.members.UpdateMemberStatus(ctx, &domain.Member{
		MemberID: current.ID,
		Status:   domain.MemberStatusOffLine,
	}); err != nil {
		logger.Log.Warn("update member status", zap.String("member_id", current.ID), zap.Error(err))
	}

	m.mu.Lock()
	m.current = nil
	m.session = nil
	m.resolved = true
	m.mu.Unlock()
	logger.Log.Info("member signed out", zap.String("member_id", current.ID))

	m.emit()
	return nil
}

// emit 將目前狀態送給所有 listener
func (m *MemberIdentity) emit() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	current := copyUser(m.current)
	fns := make([]func(*chatdomain.User), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(copyUser(current))
	}
}

func copyUser(u *chatdomain.User) *chatdomain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
