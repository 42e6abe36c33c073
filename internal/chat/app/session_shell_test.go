package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat_room_client/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T, env *testEnv, identity IdentityProvider, opts ShellOptions) *SessionShell {
	t.Helper()
	s := NewSessionShell(context.Background(), identity, env.deps, opts)
	s.Start()
	t.Cleanup(s.Close)
	return s
}

func TestSessionShell_RegisterAndLogout(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	shell := newTestShell(t, env, identity, ShellOptions{})
	ctx := context.Background()

	// 訂閱時立即收到 signed out 狀態
	assert.Equal(t, StateUnauthenticated, shell.Status().State)
	assert.False(t, shell.Status().LoadingTimedOut)
	assert.Nil(t, shell.Controller())

	_, err := shell.Register(ctx, "a@example.com", "Passw0rd!", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	u, err := shell.Register(ctx, "a@example.com", "Passw0rd!", "ann lee")
	require.NoError(t, err)
	assert.Equal(t, "ann lee", u.DisplayName)
	assert.Equal(t, AvatarBaseURL+"ann%20lee", u.PhotoURL)

	st := shell.Status()
	assert.Equal(t, StateAuthenticated, st.State)
	require.NotNil(t, st.User)
	assert.Equal(t, "ann lee", st.User.DisplayName)
	assert.Equal(t, "token-"+u.ID, shell.Token())

	stored, err := env.deps.Profiles.FindProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, *u, *stored)

	controller := shell.Controller()
	require.NotNil(t, controller)
	assert.Equal(t, "ann lee", controller.User().DisplayName)

	_, err = shell.Register(ctx, "a@example.com", "Passw0rd!", "again")
	assert.Equal(t, domain.AuthEmailAlreadyInUse, domain.AuthCode(err))

	require.NoError(t, shell.Logout(ctx))
	assert.Equal(t, StateUnauthenticated, shell.Status().State)
	assert.Nil(t, shell.Controller())
	select {
	case <-controller.Done():
	default:
		t.Fatal("controller should be closed on logout")
	}
}

func TestSessionShell_LoginReconcilesProfile(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	ctx := context.Background()

	u, err := identity.SignUp(ctx, "b@example.com", "Passw0rd!")
	require.NoError(t, err)
	name, photo := "Bea", "https://example.com/bea.png"
	_, err = identity.UpdateProfile(ctx, u.ID, domain.ProfileUpdate{DisplayName: &name, PhotoURL: &photo})
	require.NoError(t, err)
	require.NoError(t, identity.SignOut(ctx))

	// users/{uid} 只有自訂名稱, 缺少 photoURL
	custom := "Beatrice"
	require.NoError(t, env.deps.Profiles.UpsertProfile(ctx, u.ID, domain.ProfileUpdate{DisplayName: &custom}))

	shell := newTestShell(t, env, identity, ShellOptions{})
	_, err = shell.Login(ctx, "b@example.com", "wrong")
	assert.Equal(t, domain.AuthInvalidCredential, domain.AuthCode(err))
	assert.Equal(t, StateUnauthenticated, shell.Status().State)

	_, err = shell.Login(ctx, "b@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, shell.Status().State)

	stored, err := env.deps.Profiles.FindProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beatrice", stored.DisplayName)
	assert.Equal(t, photo, stored.PhotoURL)
}

func TestSessionShell_LoadingCutover(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	identity.silent = true
	shell := newTestShell(t, env, identity, ShellOptions{LoadingTimeout: 20 * time.Millisecond})

	assert.True(t, shell.Loading())
	assert.Eventually(t, func() bool {
		st := shell.Status()
		return st.State == StateUnauthenticated && st.LoadingTimedOut
	}, time.Second, 5*time.Millisecond)

	// 之後收到的 auth state 仍然生效
	_, err := identity.SignUp(context.Background(), "c@example.com", "Passw0rd!")
	require.NoError(t, err)
	st := shell.Status()
	assert.Equal(t, StateAuthenticated, st.State)
	assert.False(t, st.LoadingTimedOut)
}

func TestSessionShell_SameUserKeepsController(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	shell := newTestShell(t, env, identity, ShellOptions{})
	ctx := context.Background()

	u, err := shell.Register(ctx, "d@example.com", "Passw0rd!", "dan")
	require.NoError(t, err)
	controller := shell.Controller()
	room, err := controller.CreateRoom(ctx, "Foo", "p")
	require.NoError(t, err)
	require.NoError(t, controller.SelectRoom(ctx, room.ID))

	name := "Daniel"
	_, err = identity.UpdateProfile(ctx, u.ID, domain.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Same(t, controller, shell.Controller())
	assert.Equal(t, "Daniel", controller.User().DisplayName)
	assert.Equal(t, room.ID, controller.ActiveRoom())
}

func TestSessionShell_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	var compressed []byte
	shell := newTestShell(t, env, identity, ShellOptions{Compress: func(b []byte) ([]byte, error) {
		compressed = b
		return []byte("jpeg"), nil
	}})
	ctx := context.Background()

	_, err := shell.UpdateProfile(ctx, "new", nil)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	u, err := shell.Register(ctx, "e@example.com", "Passw0rd!", "eve")
	require.NoError(t, err)

	_, err = shell.UpdateProfile(ctx, " ", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	pdf := &domain.ImageFile{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("x")}
	_, err = shell.UpdateProfile(ctx, "Eve", pdf)
	assert.ErrorIs(t, err, domain.ErrInvalidFileType)

	pic := &domain.ImageFile{Name: "me.png", ContentType: "image/png", Data: []byte("png")}
	updated, err := shell.UpdateProfile(ctx, "Eve", pic)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), compressed)

	data, contentType, ok := env.blobs.Object(domain.ProfilePicturePath(u.ID))
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg"), data)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, "http://localhost:8080/blobs/profilePictures/"+u.ID, updated.PhotoURL)

	stored, err := env.deps.Profiles.FindProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eve", stored.DisplayName)
	assert.Equal(t, updated.PhotoURL, stored.PhotoURL)
	assert.Equal(t, "Eve", shell.Controller().User().DisplayName)

	// 只改名稱時保留原本的照片
	again, err := shell.UpdateProfile(ctx, "Evelyn", nil)
	require.NoError(t, err)
	assert.Equal(t, updated.PhotoURL, again.PhotoURL)
}

func TestSessionShell_LogoutFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	shell := newTestShell(t, env, identity, ShellOptions{})
	ctx := context.Background()

	_, err := shell.Register(ctx, "f@example.com", "Passw0rd!", "fay")
	require.NoError(t, err)
	old := shell.Controller()

	identity.signOutErr = errors.New("network")
	err = shell.Logout(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	assert.Equal(t, StateAuthenticated, shell.Status().State)
	require.NotNil(t, shell.Controller())
	assert.NotSame(t, old, shell.Controller())
}

func TestSessionShell_CloseStopsAuthUpdates(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	shell := NewSessionShell(context.Background(), identity, env.deps, ShellOptions{})
	shell.Start()
	shell.Close()

	_, err := identity.SignUp(context.Background(), "g@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Nil(t, shell.Controller())
	assert.Equal(t, StateUnauthenticated, shell.Status().State)
}

func TestSessionShell_RegisterKeepsSessionWhenProfileUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	identity := newFakeIdentity()
	identity.updateErr = errors.New("profile service down")
	shell := newTestShell(t, env, identity, ShellOptions{})
	ctx := context.Background()

	u, err := shell.Register(ctx, "h@example.com", "Passw0rd!", "hana")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, StateAuthenticated, shell.Status().State)
	require.NotNil(t, shell.Controller())

	// users/{uid} 仍有名稱與頭像
	stored, err := env.deps.Profiles.FindProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana", stored.DisplayName)
	assert.Equal(t, AvatarBaseURL+"hana", stored.PhotoURL)
}
