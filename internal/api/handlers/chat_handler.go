package handlers

import (
	"chat_room_client/internal/chat/app"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler rooms, composer and typing of the active session
type ChatHandler struct {
	shell *app.SessionShell
}

// NewChatHandler create ChatHandler
func NewChatHandler(shell *app.SessionShell) *ChatHandler {
	return &ChatHandler{shell: shell}
}

type roomRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ListRooms GET /rooms
func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"rooms": ctrl.Directory().Rooms(), "loading": !ctrl.Directory().Loaded()})
}

// CreateRoom POST /rooms
func (h *ChatHandler) CreateRoom(c *fiber.Ctx) error {
	var req roomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	room, err := ctrl.CreateRoom(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room})
}

// JoinRoom POST /rooms/join, 成功後直接進入該 room
func (h *ChatHandler) JoinRoom(c *fiber.Ctx) error {
	var req roomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	room, err := ctrl.JoinRoom(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"room": room})
}

// SelectRoom POST /rooms/:id/select
func (h *ChatHandler) SelectRoom(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.SelectRoom(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"activeRoom": ctrl.ActiveRoom()})
}

// SendMessage POST /messages (multipart: text, image)
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	image, err := imageFromForm(c, "image")
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.SendMessage(c.UserContext(), c.FormValue("text"), image); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "sent"})
}

// SetDraft PUT /composer, 每次輸入都會觸發 typing
func (h *ChatHandler) SetDraft(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.SetComposerText(c.UserContext(), req.Text); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"draft": ctrl.View().Draft})
}

// AttachImage POST /composer/image (multipart: image)
func (h *ChatHandler) AttachImage(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	image, err := imageFromForm(c, "image")
	if err != nil {
		return writeError(c, err)
	}
	if image == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing image"})
	}
	if err := ctrl.AttachImage(image); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"draft": ctrl.View().Draft})
}

// ClearImage DELETE /composer/image
func (h *ChatHandler) ClearImage(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.ClearImage(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"draft": ctrl.View().Draft})
}

// Submit POST /composer/submit
func (h *ChatHandler) Submit(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.Submit(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "sent"})
}

// Keystroke POST /typing/keystroke
func (h *ChatHandler) Keystroke(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.Keystroke(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Blur POST /typing/blur
func (h *ChatHandler) Blur(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctrl.Blur(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// View GET /view
func (h *ChatHandler) View(c *fiber.Ctx) error {
	ctrl, err := controller(h.shell)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ctrl.ResolvedView(c.UserContext()))
}
