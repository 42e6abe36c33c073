package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chatdomain "chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// TokenFile session token saved between runs, 空 Path 代表不保存
type TokenFile struct {
	Path string
}

// Load "" when nothing is saved
func (f TokenFile) Load() (string, error) {
	if f.Path == "" {
		return "", nil
	}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save 只有本人可讀寫
func (f TokenFile) Save(token string) error {
	if f.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session token dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write session token: %w", err)
	}
	return nil
}

// Clear remove the saved token
func (f TokenFile) Clear() error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session token: %w", err)
	}
	return nil
}

// PersistSession keep the file in sync with the auth state of identity
func PersistSession(identity *MemberIdentity, file TokenFile) (unsubscribe func()) {
	return identity.OnAuthStateChanged(func(u *chatdomain.User) {
		var err error
		if u == nil {
			err = file.Clear()
		} else {
			err = file.Save(identity.Token())
		}
		if err != nil {
			logger.Log.Warn("persist session token", zap.Error(err))
		}
	})
}
