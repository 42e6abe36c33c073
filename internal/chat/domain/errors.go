package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation required field empty after trimming
	ErrValidation = errors.New("validation error")
	// ErrDuplicateName room name already taken
	ErrDuplicateName = errors.New("room name already exists")
	// ErrNotFound room not found
	ErrNotFound = errors.New("room not found")
	// ErrInvalidCredential wrong room password
	ErrInvalidCredential = errors.New("invalid room password")
	// ErrEmptyMessage neither text nor image
	ErrEmptyMessage = errors.New("empty message")
	// ErrSendFailed message or image write failed
	ErrSendFailed = errors.New("send failed")
	// ErrUploadTooLarge image over MaxImageSize
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrInvalidFileType not an image
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrNotAuthenticated operation needs a signed in user
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoActiveRoom operation needs a selected room
	ErrNoActiveRoom = errors.New("no active room")
)

// identity provider error codes
const (
	AuthUserNotFound      = "user-not-found"
	AuthInvalidCredential = "invalid-credential"
	AuthEmailAlreadyInUse = "email-already-in-use"
	AuthInvalidEmail      = "invalid-email"
	AuthWeakPassword      = "weak-password"
	AuthTooManyRequests   = "too-many-requests"
	AuthSessionExpired    = "session-expired"
	AuthInternal          = "internal-error"
)

// AuthError coded identity provider failure
type AuthError struct {
	Code string
	Err  error
}

// NewAuthError new coded error, err may be nil
func NewAuthError(code string, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth/" + e.Code
	}
	return fmt.Sprintf("auth/%s: %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthCode code of the first AuthError in the chain, "" if none
func AuthCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// MaxImageSize 5 MB
const MaxImageSize = 5 * 1024 * 1024

// ValidateImage 上傳前檢查, 不做任何 I/O
func ValidateImage(f *ImageFile) error {
	if f == nil {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, f.ContentType)
	}
	if f.Size() > MaxImageSize {
		return fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, f.Size())
	}
	return nil
}
