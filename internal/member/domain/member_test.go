package domain

import (
	"testing"
	"time"

	"chat_room_client/pkg/encrypt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMember_IsPasswordMatch(t *testing.T) {
	hashed, err := encrypt.HashPassword("!Password123")
	require.NoError(t, err)
	m := &Member{MemberID: "m1", Password: hashed, DisplayName: "Ann", PhotoURL: "p"}

	assert.NoError(t, m.IsPasswordMatch("!Password123"))
	assert.ErrorIs(t, m.IsPasswordMatch("wrong"), encrypt.ErrPasswordMismatch)

	u := m.User()
	assert.Equal(t, "m1", u.ID)
	assert.Equal(t, "Ann", u.DisplayName)
	assert.Equal(t, "p", u.PhotoURL)
}

func TestMemberSession_IsExpired(t *testing.T) {
	now := time.Now()
	s := &MemberSession{ExpiredAt: now.Add(time.Minute)}
	assert.False(t, s.IsExpired(now))
	assert.True(t, s.IsExpired(now.Add(time.Minute)))
}
