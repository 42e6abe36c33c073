package errprocess

import (
	"errors"
	"fmt"

	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 將底層錯誤轉成指定的錯誤種類, errors.Is 對 kind 與 err 都成立
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, op)
	}
	logger.Log.Error(op, zap.String("kind", kind.Error()), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
