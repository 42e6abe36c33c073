package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"chat_room_client/internal/chat/app"
	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/logger"
	"chat_room_client/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck check api connect start
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat client gateway start!")
}

// DebugLogFlag toggle debug log flag
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// CurrentUserOnly token 的 member 必須是目前登入的 user
func CurrentUserOnly(shell *app.SessionShell) fiber.Handler {
	return func(c *fiber.Ctx) error {
		memberID, _ := c.Locals(middlewares.TokenMemberID).(string)
		current := shell.CurrentUser()
		if current == nil || current.ID != memberID {
			return writeError(c, domain.ErrNotAuthenticated)
		}
		return c.Next()
	}
}

// statusOf error kind -> http status
func statusOf(err error) int {
	switch domain.AuthCode(err) {
	case "":
	case domain.AuthInvalidEmail, domain.AuthWeakPassword:
		return fiber.StatusBadRequest
	case domain.AuthEmailAlreadyInUse:
		return fiber.StatusConflict
	case domain.AuthTooManyRequests:
		return fiber.StatusTooManyRequests
	case domain.AuthInternal:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusUnauthorized
	}

	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrEmptyMessage):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidCredential):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrNoActiveRoom):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrUploadTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidFileType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrSendFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// writeError 回傳 user facing message, 原始錯誤只寫 log
func writeError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Log.Debug("request rejected", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": app.DescribeError(err)})
}

// imageFromForm nil when the form has no such file
func imageFromForm(c *fiber.Ctx, field string) (*domain.ImageFile, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, fiber.ErrUnprocessableEntity) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, domain.ErrUploadTooLarge
		}
		return nil, nil
	}
	if fh.Size > domain.MaxImageSize {
		return nil, domain.ErrUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return &domain.ImageFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

// controller active room session, ErrNotAuthenticated when signed out
func controller(shell *app.SessionShell) (*app.RoomSessionController, error) {
	ctrl := shell.Controller()
	if ctrl == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return ctrl, nil
}
