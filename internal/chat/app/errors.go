package app

import (
	"errors"

	"chat_room_client/internal/chat/domain"
)

var authMessages = map[string]string{
	domain.AuthUserNotFound:      "No account found with this email.",
	domain.AuthInvalidCredential: "Incorrect email or password.",
	domain.AuthEmailAlreadyInUse: "An account with this email already exists.",
	domain.AuthInvalidEmail:      "Please enter a valid email address.",
	domain.AuthWeakPassword:      "Password must be at least 8 characters and include an uppercase letter, a digit and a special character.",
	domain.AuthTooManyRequests:   "Too many attempts. Please try again later.",
	domain.AuthSessionExpired:    "Your session has expired. Please log in again.",
}

// DescribeError user facing message, "" for nil
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	if code := domain.AuthCode(err); code != "" {
		if msg, ok := authMessages[code]; ok {
			return msg
		}
		return "Authentication failed. Please try again."
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return "Please fill in all required fields."
	case errors.Is(err, domain.ErrDuplicateName):
		return "A room with this name already exists."
	case errors.Is(err, domain.ErrNotFound):
		return "Room not found"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "Incorrect password"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "Type a message or attach an image."
	case errors.Is(err, domain.ErrUploadTooLarge):
		return "Image is too large (max 5MB)."
	case errors.Is(err, domain.ErrInvalidFileType):
		return "Please select an image file."
	case errors.Is(err, domain.ErrSendFailed):
		return "Failed to send message. Please try again."
	case errors.Is(err, domain.ErrNotAuthenticated):
		return "Please log in first."
	case errors.Is(err, domain.ErrNoActiveRoom):
		return "Select a room first."
	}
	return "Something went wrong. Please try again."
}
