package domain

import "time"

// Message definition chatRooms/{room}/messages/{id}
type Message struct {
	ID       string `json:"id"`
	RoomID   string `json:"roomId"`
	SenderID string `json:"uid"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	// 寫入時的 sender profile, 只在 profile cache 沒資料時使用
	DisplayName string    `json:"displayName,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TimestampMillis 0 while the server timestamp is unresolved
func (m Message) TimestampMillis() int64 {
	return millis(m.Timestamp)
}

// MessageView message ready for rendering
type MessageView struct {
	Message    Message `json:"message"`
	Sender     User    `json:"sender"`
	ShowHeader bool    `json:"showHeader"`
	Own        bool    `json:"own"`
}

// ImageFile image picked by the user, validated before any upload
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size bytes
func (f *ImageFile) Size() int {
	return len(f.Data)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
