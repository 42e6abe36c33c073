package domain

// TypingStatus definition chatRooms/{room}/typing/{uid}
type TypingStatus struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"uid"`
	IsTyping bool   `json:"isTyping"`
}
