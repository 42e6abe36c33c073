package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chat_room_client/internal/chat/domain"
)

// Draft composer content
type Draft struct {
	Text  string            `json:"text"`
	Image *domain.ImageFile `json:"-"`
	// ImageName 給畫面顯示用
	ImageName string `json:"imageName,omitempty"`
	Sending   bool   `json:"sending"`
}

// Composer message input of one room; cleared before the write completes
type Composer struct {
	stream *MessageStream
	roomID string

	mu      sync.Mutex
	text    string
	image   *domain.ImageFile
	sending bool
	edits   uint64
}

// NewComposer composer bound to roomID, a room switch never redirects its draft
func NewComposer(stream *MessageStream, roomID string) *Composer {
	return &Composer{stream: stream, roomID: roomID}
}

// SetText replace text
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.edits++
}

// AttachImage 先檢查類型與大小, 不合格時不會替換目前的圖片
func (c *Composer) AttachImage(f *domain.ImageFile) error {
	if f == nil {
		return nil
	}
	if err := domain.ValidateImage(f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = f
	c.edits++
	return nil
}

// ClearImage drop the attached image
func (c *Composer) ClearImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = nil
	c.edits++
}

// Draft current content
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := Draft{Text: c.text, Image: c.image, Sending: c.sending}
	if c.image != nil {
		d.ImageName = c.image.Name
	}
	return d
}

// Submit clear then send; on ErrSendFailed the draft is restored unless edited meanwhile
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil
	}
	text, image := c.text, c.image
	if strings.TrimSpace(text) == "" && image == nil {
		c.mu.Unlock()
		return domain.ErrEmptyMessage
	}
	c.text, c.image = "", nil
	c.sending = true
	c.edits++
	edits := c.edits
	c.mu.Unlock()

	err := c.stream.sendTo(ctx, c.roomID, text, image)

	c.mu.Lock()
	c.sending = false
	if errors.Is(err, domain.ErrSendFailed) && c.edits == edits {
		c.text, c.image = text, image
	}
	c.mu.Unlock()
	return err
}
