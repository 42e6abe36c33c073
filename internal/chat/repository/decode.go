package repository

import (
	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/docstore"
)

// ErrNotFound document 不存在
var ErrNotFound = docstore.ErrNotFound

func decodeRoom(d docstore.Document) domain.Room {
	return domain.Room{
		ID:        d.ID,
		Name:      d.String("name"),
		Password:  d.String("password"),
		Members:   d.Strings("members"),
		CreatedBy: d.String("createdBy"),
		CreatedAt: d.Time("createdAt"),
	}
}

func decodeMessage(roomID string, d docstore.Document) domain.Message {
	return domain.Message{
		ID:          d.ID,
		RoomID:      roomID,
		SenderID:    d.String("uid"),
		Text:        d.String("text"),
		ImageURL:    d.String("imageUrl"),
		DisplayName: d.String("displayName"),
		PhotoURL:    d.String("photoURL"),
		Timestamp:   d.Time("timestamp"),
	}
}

func decodeTyping(roomID string, d docstore.Document) domain.TypingStatus {
	return domain.TypingStatus{
		RoomID:   roomID,
		UserID:   d.ID,
		IsTyping: d.Bool("isTyping"),
	}
}

// decodeUser 欄位缺少時補上預設值
func decodeUser(uid string, d docstore.Document) domain.User {
	u := domain.DefaultProfile(uid)
	if _, ok := d.Data["displayName"]; ok {
		u.DisplayName = d.String("displayName")
	}
	u.PhotoURL = d.String("photoURL")
	return u
}
