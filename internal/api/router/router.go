package router

import (
	"time"

	"chat_room_client/internal/api/handlers"
	"chat_room_client/internal/chat/app"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Options gateway 的可選設定
type Options struct {
	SessionTTL   time.Duration
	PingInterval time.Duration
	// Blobs 非 nil 時提供 GET /blobs/*
	Blobs *repository.MemoryBlobStore
	// SessionChecks 額外驗證 token 對應的 session
	SessionChecks []middlewares.SessionCheck
}

// RegisterRoutes 注册 session / room / message / view 路由
func RegisterRoutes(r *fiber.App, shell *app.SessionShell, hub *handlers.ViewHub, opts Options) {
	sessionHandler := handlers.NewSessionHandler(shell, opts.SessionTTL)
	chatHandler := handlers.NewChatHandler(shell)
	wsHandler := handlers.NewViewWebsocketHandler(hub, opts.PingInterval)

	r.Get("/", handlers.ConnectCheck)
	r.Post("/debug", handlers.DebugLogFlag)
	if opts.Blobs != nil {
		r.Get("/blobs/*", handlers.NewBlobHandler(opts.Blobs).Get)
	}

	sessionRoutes := r.Group("/session")
	sessionRoutes.Get("/", sessionHandler.Status)
	sessionRoutes.Post("/register", sessionHandler.Register)
	sessionRoutes.Post("/login", sessionHandler.Login)

	jwt := middlewares.JWTMiddleware(opts.SessionChecks...)
	currentUser := handlers.CurrentUserOnly(shell)

	sessionRoutes.Post("/logout", jwt, currentUser, sessionHandler.Logout)
	sessionRoutes.Put("/profile", jwt, currentUser, sessionHandler.UpdateProfile)

	r.Get("/ws", jwt, currentUser, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(wsHandler.HandleConnection))

	r.Get("/view", jwt, currentUser, chatHandler.View)
	r.Get("/rooms", jwt, currentUser, chatHandler.ListRooms)
	r.Post("/rooms", jwt, currentUser, chatHandler.CreateRoom)
	r.Post("/rooms/join", jwt, currentUser, chatHandler.JoinRoom)
	r.Post("/rooms/:id/select", jwt, currentUser, chatHandler.SelectRoom)
	r.Post("/messages", jwt, currentUser, chatHandler.SendMessage)

	composerRoutes := r.Group("/composer")
	composerRoutes.Put("/", jwt, currentUser, chatHandler.SetDraft)
	composerRoutes.Post("/image", jwt, currentUser, chatHandler.AttachImage)
	composerRoutes.Delete("/image", jwt, currentUser, chatHandler.ClearImage)
	composerRoutes.Post("/submit", jwt, currentUser, chatHandler.Submit)

	typingRoutes := r.Group("/typing")
	typingRoutes.Post("/keystroke", jwt, currentUser, chatHandler.Keystroke)
	typingRoutes.Post("/blur", jwt, currentUser, chatHandler.Blur)
}
