package domain

import (
	"strings"
	"time"

	"chat_room_client/pkg"
)

// Room definition chat room document chatRooms/{id}
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"-"` // bcrypt hash, 空字串代表無密碼
	Members   []string  `json:"members"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember check uid in members
func (r Room) HasMember(uid string) bool {
	return pkg.Contains(r.Members, uid)
}

// RoomPreview latest message of a room
type RoomPreview struct {
	RoomID          string    `json:"roomId"`
	LatestText      string    `json:"latestText"`
	LatestImage     bool      `json:"latestImage"`
	LatestTimestamp time.Time `json:"latestTimestamp"`
}

// LatestMillis 0 when the room has no message or the timestamp is pending
func (p RoomPreview) LatestMillis() int64 {
	return millis(p.LatestTimestamp)
}

// PreviewFromMessage build preview, nil message = empty room
func PreviewFromMessage(roomID string, m *Message) RoomPreview {
	if m == nil {
		return RoomPreview{RoomID: roomID}
	}
	return RoomPreview{
		RoomID:          roomID,
		LatestText:      m.Text,
		LatestImage:     m.ImageURL != "",
		LatestTimestamp: m.Timestamp,
	}
}

// RoomListItem room with its preview
type RoomListItem struct {
	Room    Room        `json:"room"`
	Preview RoomPreview `json:"preview"`
}

// NormalizeName trim name / password input
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}
