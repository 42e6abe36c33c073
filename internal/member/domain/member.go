package domain

import (
	"errors"
	"time"

	chatdomain "chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/encrypt"
)

// MemberStatus 用來表示使用者狀態
type MemberStatus int

// 状态: 0=offline, 1=online, 2=ban ,3=delete
const (
	// MemberStatusOffLine 使用者離線
	MemberStatusOffLine MemberStatus = iota
	// MemberStatusOnLine 使用者在線
	MemberStatusOnLine
	// MemberStatusBan 使用者被封鎖
	MemberStatusBan
	// MemberStatusDelete 使用者已刪除
	MemberStatusDelete
)

var (
	// ErrMemberNotFound no member matches the query
	ErrMemberNotFound = errors.New("no member found with given criteria")
	// ErrEmailExists email already registered
	ErrEmailExists = errors.New("email already exists")
	// ErrSessionNotFound session expired or never created
	ErrSessionNotFound = errors.New("session not found")
)

// Member 用來表示使用者
type Member struct {
	ID          int64
	MemberID    string
	Email       string
	Password    string
	DisplayName string
	PhotoURL    string
	Status      MemberStatus
	CreatedAt   time.Time
}

// MemberSession 用來表示使用者的 Session
type MemberSession struct {
	Token        string    `json:"Token"`
	MemberID     string    `json:"MemberID"`
	CreatedAt    time.Time `json:"CreatedAt"`
	LastActivity time.Time `json:"LastActivity"`
	ExpiredAt    time.Time `json:"ExpiredAt"`
}

// IsPasswordMatch 密碼驗證
func (m *Member) IsPasswordMatch(inputPwd string) error {
	return encrypt.CheckPassword(m.Password, inputPwd)
}

// User profile exposed to the chat client
func (m *Member) User() chatdomain.User {
	return chatdomain.User{ID: m.MemberID, DisplayName: m.DisplayName, PhotoURL: m.PhotoURL}
}

// IsExpired 檢查 Session 是否已過期
func (s *MemberSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiredAt)
}

// MemberQuery join conditions are used to query members
type MemberQuery struct {
	ID       *int64  `db:"id"`
	MemberID *string `db:"member_id"`
	Email    *string `db:"email"`
}
