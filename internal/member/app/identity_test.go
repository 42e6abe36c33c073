package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	chatdomain "chat_room_client/internal/chat/domain"
	"chat_room_client/internal/member/domain"
	"chat_room_client/internal/member/repository"
	"chat_room_client/pkg/encrypt"
	"chat_room_client/pkg/logger"
	token "chat_room_client/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ann@example.com"
	testPassword = "Secure123!"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

// authRecorder 記錄 OnAuthStateChanged 收到的狀態
type authRecorder struct {
	mu     sync.Mutex
	states []*chatdomain.User
}

func (r *authRecorder) record(u *chatdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, u)
}

func (r *authRecorder) all() []*chatdomain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*chatdomain.User(nil), r.states...)
}

func newMemoryIdentity(t *testing.T) (*MemberIdentity, *testClock) {
	t.Helper()
	logger.SetNewNop()
	clock := &testClock{now: time.Now()}
	return NewMemoryIdentity(IdentityOptions{
		SessionTTL:    time.Hour,
		LoginAttempts: 3,
		LoginWindow:   time.Minute,
		Clock:         clock.Now,
	}), clock
}

func TestMemberIdentity_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("成功註冊並登入", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		rec := &authRecorder{}
		id.MarkSignedOut()
		unsubscribe := id.OnAuthStateChanged(rec.record)
		defer unsubscribe()

		u, err := id.SignUp(ctx, "  Ann@Example.com ", testPassword)
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.NotEmpty(t, id.Token())
		assert.Equal(t, u, id.CurrentUser())

		states := rec.all()
		require.Len(t, states, 2)
		assert.Nil(t, states[0])
		assert.Equal(t, u.ID, states[1].ID)

		checked, err := id.CheckSession(ctx, id.Token())
		require.NoError(t, err)
		assert.Equal(t, u.ID, checked.ID)
	})

	t.Run("錯誤輸入", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		tests := []struct {
			name     string
			email    string
			password string
			code     string
		}{
			{"email 格式錯誤", "not-an-email", testPassword, chatdomain.AuthInvalidEmail},
			{"email 空白", "  ", testPassword, chatdomain.AuthInvalidEmail},
			{"密碼太弱", testEmail, "short", chatdomain.AuthWeakPassword},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := id.SignUp(ctx, tt.email, tt.password)
				assert.Equal(t, tt.code, chatdomain.AuthCode(err))
			})
		}
		assert.Nil(t, id.CurrentUser())
	})

	t.Run("Email 已存在", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		_, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)

		_, err = id.SignUp(ctx, "ANN@example.com", testPassword)
		assert.Equal(t, chatdomain.AuthEmailAlreadyInUse, chatdomain.AuthCode(err))
	})
}

func TestMemberIdentity_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("成功登入", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		registered, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NoError(t, id.SignOut(ctx))
		assert.Empty(t, id.Token())

		u, err := id.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, u.ID)
		assert.NotEmpty(t, id.Token())
	})

	t.Run("找不到會員", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		_, err := id.SignIn(ctx, testEmail, testPassword)
		assert.Equal(t, chatdomain.AuthUserNotFound, chatdomain.AuthCode(err))
	})

	t.Run("密碼錯誤", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		_, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NoError(t, id.SignOut(ctx))

		_, err = id.SignIn(ctx, testEmail, "Wrong123!")
		assert.Equal(t, chatdomain.AuthInvalidCredential, chatdomain.AuthCode(err))
		assert.Nil(t, id.CurrentUser())
	})

	t.Run("失敗次數過多", func(t *testing.T) {
		id, clock := newMemoryIdentity(t)
		_, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NoError(t, id.SignOut(ctx))

		for i := 0; i < 3; i++ {
			_, err = id.SignIn(ctx, testEmail, "Wrong123!")
			assert.Equal(t, chatdomain.AuthInvalidCredential, chatdomain.AuthCode(err))
		}
		// 正確密碼也會被拒絕, 直到 window 結束
		_, err = id.SignIn(ctx, testEmail, testPassword)
		assert.Equal(t, chatdomain.AuthTooManyRequests, chatdomain.AuthCode(err))

		clock.Advance(time.Minute)
		_, err = id.SignIn(ctx, testEmail, testPassword)
		assert.NoError(t, err)
	})

	t.Run("成功登入後重置計數", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		_, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NoError(t, id.SignOut(ctx))

		for i := 0; i < 2; i++ {
			_, _ = id.SignIn(ctx, testEmail, "Wrong123!")
		}
		_, err = id.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NoError(t, id.SignOut(ctx))

		for i := 0; i < 2; i++ {
			_, _ = id.SignIn(ctx, testEmail, "Wrong123!")
		}
		_, err = id.SignIn(ctx, testEmail, testPassword)
		assert.NoError(t, err)
	})
}

func TestMemberIdentity_AuthState(t *testing.T) {
	ctx := context.Background()

	t.Run("確定狀態前不送出", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		rec := &authRecorder{}
		unsubscribe := id.OnAuthStateChanged(rec.record)
		assert.Empty(t, rec.all())

		id.MarkSignedOut()
		id.MarkSignedOut()
		assert.Equal(t, []*chatdomain.User{nil}, rec.all())

		unsubscribe()
		_, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.Len(t, rec.all(), 1)
	})

	t.Run("訂閱時收到目前狀態", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		u, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)

		rec := &authRecorder{}
		defer id.OnAuthStateChanged(rec.record)()
		require.Len(t, rec.all(), 1)
		assert.Equal(t, u.ID, rec.all()[0].ID)
	})

	t.Run("更新 profile 通知 listener", func(t *testing.T) {
		id, _ := newMemoryIdentity(t)
		u, err := id.SignUp(ctx, testEmail, testPassword)
		require.NoError(t, err)

		rec := &authRecorder{}
		defer id.OnAuthStateChanged(rec.record)()

		name := "Ann"
		updated, err := id.UpdateProfile(ctx, u.ID, chatdomain.ProfileUpdate{DisplayName: &name})
		require.NoError(t, err)
		assert.Equal(t, "Ann", updated.DisplayName)
		assert.Equal(t, "Ann", id.CurrentUser().DisplayName)

		states := rec.all()
		require.Len(t, states, 2)
		assert.Equal(t, "Ann", states[1].DisplayName)

		_, err = id.UpdateProfile(ctx, "missing", chatdomain.ProfileUpdate{DisplayName: &name})
		assert.Equal(t, chatdomain.AuthUserNotFound, chatdomain.AuthCode(err))
	})
}

func TestMemberIdentity_Restore(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()
	clock := &testClock{now: time.Now()}
	opts := IdentityOptions{SessionTTL: time.Hour, Clock: clock.Now}
	members := repository.NewMemoryMemberRepository(clock.Now)
	sessions := repository.NewMemorySessionRepository(clock.Now)
	attempts := repository.NewMemoryCounter(clock.Now)

	first := NewMemberIdentity(members, sessions, attempts, opts)
	u, err := first.SignUp(ctx, testEmail, testPassword)
	require.NoError(t, err)
	saved := first.Token()

	t.Run("以保存的 token 恢復 session", func(t *testing.T) {
		second := NewMemberIdentity(members, sessions, attempts, opts)
		rec := &authRecorder{}
		defer second.OnAuthStateChanged(rec.record)()

		clock.Advance(30 * time.Minute)
		restored, err := second.Restore(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, u.ID, restored.ID)
		assert.Equal(t, saved, second.Token())
		require.Len(t, rec.all(), 1)
		assert.Equal(t, u.ID, rec.all()[0].ID)

		// Restore 延長 session
		clock.Advance(45 * time.Minute)
		_, err = second.CheckSession(ctx, saved)
		assert.NoError(t, err)
	})

	t.Run("token 不正確", func(t *testing.T) {
		third := NewMemberIdentity(members, sessions, attempts, opts)
		rec := &authRecorder{}
		defer third.OnAuthStateChanged(rec.record)()

		_, err := third.Restore(ctx, "not-a-token")
		assert.Equal(t, chatdomain.AuthSessionExpired, chatdomain.AuthCode(err))
		assert.Equal(t, []*chatdomain.User{nil}, rec.all())
	})

	t.Run("session 過期", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		_, err := first.CheckSession(ctx, saved)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		fourth := NewMemberIdentity(members, sessions, attempts, opts)
		_, err = fourth.Restore(ctx, saved)
		assert.Equal(t, chatdomain.AuthSessionExpired, chatdomain.AuthCode(err))
	})

	t.Run("登出後 token 失效", func(t *testing.T) {
		_, err := first.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		current := first.Token()
		require.NoError(t, first.SignOut(ctx))

		_, err = first.CheckSession(ctx, current)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestMemberIdentity_Failures(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()
	email := testEmail
	hashedPassword, err := encrypt.HashPassword(testPassword)
	require.NoError(t, err)

	newIdentity := func(members *MockMemberRepo, sessions *MockSessionRepo, counter *MockCounter) *MemberIdentity {
		return NewMemberIdentity(members, sessions, counter, IdentityOptions{SessionTTL: time.Hour})
	}

	t.Run("建立用戶失敗", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(nil, domain.ErrMemberNotFound).Once()
		mockRepo.On("CreateUser", ctx, mock.Anything).Return(errors.New("db error")).Once()

		id := newIdentity(mockRepo, new(MockSessionRepo), new(MockCounter))
		_, err := id.SignUp(ctx, email, testPassword)

		assert.Equal(t, chatdomain.AuthInternal, chatdomain.AuthCode(err))
		assert.ErrorContains(t, err, "db error")
		mockRepo.AssertExpectations(t)
	})

	t.Run("密碼加密失敗", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(nil, domain.ErrMemberNotFound).Once()

		id := newIdentity(mockRepo, new(MockSessionRepo), new(MockCounter))
		id.hashPassword = func(string) (string, error) { return "", errors.New("hash password error") }
		_, err := id.SignUp(ctx, email, testPassword)

		assert.ErrorContains(t, err, "hash password error")
		mockRepo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	})

	t.Run("JWT 生成失敗", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockSessions := new(MockSessionRepo)
		mockCounter := new(MockCounter)
		existing := &domain.Member{MemberID: "AAA", Email: email, Password: hashedPassword}
		mockCounter.On("Incr", ctx, "login:"+email, mock.Anything).Return(int64(1), nil).Once()
		mockCounter.On("Reset", ctx, "login:"+email).Return(nil).Once()
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(existing, nil).Once()
		mockRepo.On("UpdateMemberStatus", ctx, existing).Return(nil).Once()

		originalGenerateJWT := token.GenerateJWTFunc
		defer func() { token.GenerateJWTFunc = originalGenerateJWT }()
		token.GenerateJWTFunc = func(memberID, role, issuer string) (string, error) {
			return "", errors.New("sign error")
		}

		id := newIdentity(mockRepo, mockSessions, mockCounter)
		_, err := id.SignIn(ctx, email, testPassword)

		assert.Equal(t, chatdomain.AuthInternal, chatdomain.AuthCode(err))
		assert.Nil(t, id.CurrentUser())
		mockSessions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("計數器不可用時仍可登入", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockSessions := new(MockSessionRepo)
		mockCounter := new(MockCounter)
		existing := &domain.Member{MemberID: "AAA", Email: email, Password: hashedPassword}
		mockCounter.On("Incr", ctx, "login:"+email, mock.Anything).Return(int64(0), errors.New("redis down")).Once()
		mockCounter.On("Reset", ctx, "login:"+email).Return(errors.New("redis down")).Once()
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(existing, nil).Once()
		mockRepo.On("UpdateMemberStatus", ctx, mock.MatchedBy(func(m *domain.Member) bool {
			return m.Status == domain.MemberStatusOnLine
		})).Return(nil).Once()
		mockSessions.On("Save", ctx, mock.MatchedBy(func(s domain.MemberSession) bool {
			return s.MemberID == "AAA" && s.Token != ""
		}), time.Hour).Return(nil).Once()

		id := newIdentity(mockRepo, mockSessions, mockCounter)
		u, err := id.SignIn(ctx, email, testPassword)

		require.NoError(t, err)
		assert.Equal(t, "AAA", u.ID)
		mockRepo.AssertExpectations(t)
		mockSessions.AssertExpectations(t)
		mockCounter.AssertExpectations(t)
	})

	t.Run("封鎖的帳號", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockCounter := new(MockCounter)
		banned := &domain.Member{MemberID: "AAA", Email: email, Password: hashedPassword, Status: domain.MemberStatusBan}
		mockCounter.On("Incr", ctx, "login:"+email, mock.Anything).Return(int64(1), nil).Once()
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(banned, nil).Once()

		id := newIdentity(mockRepo, new(MockSessionRepo), mockCounter)
		_, err := id.SignIn(ctx, email, testPassword)

		assert.Equal(t, chatdomain.AuthUserNotFound, chatdomain.AuthCode(err))
		mockRepo.AssertNotCalled(t, "UpdateMemberStatus", mock.Anything, mock.Anything)
	})

	t.Run("登出失敗時保持登入", func(t *testing.T) {
		mockRepo := new(MockMemberRepo)
		mockSessions := new(MockSessionRepo)
		mockCounter := new(MockCounter)
		existing := &domain.Member{MemberID: "AAA", Email: email, Password: hashedPassword}
		mockCounter.On("Incr", ctx, "login:"+email, mock.Anything).Return(int64(1), nil).Once()
		mockCounter.On("Reset", ctx, "login:"+email).Return(nil).Once()
		mockRepo.On("FindByMember", ctx, &domain.MemberQuery{Email: &email}).Return(existing, nil).Once()
		mockRepo.On("UpdateMemberStatus", ctx, mock.Anything).Return(nil).Once()
		mockSessions.On("Save", ctx, mock.Anything, time.Hour).Return(nil).Once()
		mockSessions.On("Delete", ctx, "AAA").Return(errors.New("redis down")).Once()

		id := newIdentity(mockRepo, mockSessions, mockCounter)
		_, err := id.SignIn(ctx, email, testPassword)
		require.NoError(t, err)

		err = id.SignOut(ctx)
		assert.ErrorContains(t, err, "redis down")
		require.NotNil(t, id.CurrentUser())
		assert.Equal(t, "AAA", id.CurrentUser().ID)
		assert.NotEmpty(t, id.Token())
	})
}
