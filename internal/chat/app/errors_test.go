package app

import (
	"errors"
	"fmt"
	"testing"

	"chat_room_client/internal/chat/domain"
	errprocess "chat_room_client/pkg/err"

	"github.com/stretchr/testify/assert"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", domain.ErrNotFound, "Room not found"},
		{"wrong password", domain.ErrInvalidCredential, "Incorrect password"},
		{"duplicate", domain.ErrDuplicateName, "A room with this name already exists."},
		{"too large wrapped", fmt.Errorf("%w: 6000000 bytes", domain.ErrUploadTooLarge), "Image is too large (max 5MB)."},
		{"not an image", domain.ErrInvalidFileType, "Please select an image file."},
		{"send failed", errprocess.Wrap(domain.ErrSendFailed, "insert message", errors.New("unavailable")), "Failed to send message. Please try again."},
		{"auth code", domain.NewAuthError(domain.AuthWeakPassword, nil), authMessages[domain.AuthWeakPassword]},
		{"unknown auth code", domain.NewAuthError("quota-exceeded", nil), "Authentication failed. Please try again."},
		{"unknown", errors.New("boom"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeError(tt.err))
		})
	}
}
