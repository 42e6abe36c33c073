package domain

import (
	"fmt"
	"path"
)

// persisted layout
const (
	RoomsCollection    = "chatRooms"
	UsersCollection    = "users"
	messagesCollection = "messages"
	typingCollection   = "typing"
	imagesFolder       = "images"
	profileFolder      = "profilePictures"
)

// RoomPath chatRooms/{room}
func RoomPath(roomID string) string {
	return RoomsCollection + "/" + roomID
}

// MessagesPath chatRooms/{room}/messages
func MessagesPath(roomID string) string {
	return RoomPath(roomID) + "/" + messagesCollection
}

// TypingPath chatRooms/{room}/typing
func TypingPath(roomID string) string {
	return RoomPath(roomID) + "/" + typingCollection
}

// TypingDocPath chatRooms/{room}/typing/{uid}
func TypingDocPath(roomID, uid string) string {
	return TypingPath(roomID) + "/" + uid
}

// UserPath users/{uid}
func UserPath(uid string) string {
	return UsersCollection + "/" + uid
}

// ImageObjectPath chatRooms/{room}/images/{uid}-{millis}-{name}
func ImageObjectPath(roomID, uid string, millis int64, name string) string {
	return fmt.Sprintf("%s/%s/%s-%d-%s", RoomPath(roomID), imagesFolder, uid, millis, path.Base(name))
}

// ProfilePicturePath profilePictures/{uid}
func ProfilePicturePath(uid string) string {
	return profileFolder + "/" + uid
}
