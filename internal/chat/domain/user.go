package domain

// UnknownDisplayName 尚未收到 profile 時顯示的名稱
const UnknownDisplayName = "Unknown"

// User definition profile mirrored in users/{uid}
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// DefaultProfile profile used before the first delivery
func DefaultProfile(uid string) User {
	return User{ID: uid, DisplayName: UnknownDisplayName}
}

// ProfileUpdate nil 欄位不會寫入, 既有值保留
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// IsEmpty no field to write
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.PhotoURL == nil
}
