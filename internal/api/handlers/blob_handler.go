package handlers

import (
	"net/url"

	"chat_room_client/internal/chat/repository"

	"github.com/gofiber/fiber/v2"
)

// BlobHandler GET /blobs/* serves objects of the in-process blob store
type BlobHandler struct {
	blobs *repository.MemoryBlobStore
}

// NewBlobHandler create BlobHandler
func NewBlobHandler(blobs *repository.MemoryBlobStore) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// Get object bytes with the stored content type
func (h *BlobHandler) Get(c *fiber.Ctx) error {
	path, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	data, contentType, ok := h.blobs.Object(path)
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Send(data)
}
