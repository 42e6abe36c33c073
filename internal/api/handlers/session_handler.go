package handlers

import (
	"time"

	"chat_room_client/internal/chat/app"
	"chat_room_client/internal/chat/domain"
	"chat_room_client/pkg/logger"
	"chat_room_client/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SessionHandler register / login / logout / settings over the SessionShell
type SessionHandler struct {
	shell      *app.SessionShell
	sessionTTL time.Duration
}

// NewSessionHandler sessionTTL 用來設定 cookie 的有效期限
func NewSessionHandler(shell *app.SessionShell, sessionTTL time.Duration) *SessionHandler {
	return &SessionHandler{shell: shell, sessionTTL: sessionTTL}
}

type sessionResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (h *SessionHandler) signedIn(c *fiber.Ctx, u *domain.User) error {
	token := h.shell.Token()
	c.Cookie(&fiber.Cookie{
		Name:     middlewares.CookieToken,
		Value:    token,
		Expires:  time.Now().Add(h.sessionTTL),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.JSON(sessionResponse{User: u, Token: token})
}

// Register POST /session/register
func (h *SessionHandler) Register(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	logger.Log.Debug("Register request", zap.String("email", req.Email), zap.String("username", req.Username))

	u, err := h.shell.Register(c.UserContext(), req.Email, req.Password, req.Username)
	if err != nil {
		return writeError(c, err)
	}
	return h.signedIn(c, u)
}

// Login POST /session/login
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	logger.Log.Debug("Login request", zap.String("email", req.Email))

	u, err := h.shell.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return h.signedIn(c, u)
}

// Logout POST /session/logout
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if err := h.shell.Logout(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	c.ClearCookie(middlewares.CookieToken)
	return c.JSON(fiber.Map{"message": "logout success"})
}

// Status GET /session, 不需要 token, 畫面用來決定顯示 loading / login / chat
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.shell.Status())
}

// UpdateProfile PUT /session/profile (multipart: displayName, picture)
func (h *SessionHandler) UpdateProfile(c *fiber.Ctx) error {
	picture, err := imageFromForm(c, "picture")
	if err != nil {
		return writeError(c, err)
	}
	u, err := h.shell.UpdateProfile(c.UserContext(), c.FormValue("displayName"), picture)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"user": u})
}
