package app

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/docstore"
	errprocess "chat_room_client/pkg/err"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// MessageStream live ordered messages of the open room
type MessageStream struct {
	ctx      context.Context
	repo     repository.MessageRepository
	blobs    repository.BlobStore
	profiles *ProfileCache
	user     func() domain.User
	clock    func() time.Time
	onChange func()

	mu       sync.Mutex
	roomID   string
	gen      uint64
	sub      docstore.Subscription
	messages []domain.Message
	loading  bool
	lastErr  error
	closed   bool
}

// NewMessageStream user returns the current sender profile at send time
func NewMessageStream(
	ctx context.Context,
	repo repository.MessageRepository,
	blobs repository.BlobStore,
	profiles *ProfileCache,
	user func() domain.User,
	clock func() time.Time,
	onChange func(),
) *MessageStream {
	if clock == nil {
		clock = time.Now
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &MessageStream{
		ctx:      ctx,
		repo:     repo,
		blobs:    blobs,
		profiles: profiles,
		user:     user,
		clock:    clock,
		onChange: onChange,
	}
}

// Open dispose the previous subscription, then subscribe roomID
func (s *MessageStream) Open(roomID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	old := s.sub
	s.sub = nil
	s.roomID = roomID
	s.messages = nil
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	sub, err := s.repo.WatchRoomMessages(s.ctx, roomID, func(msgs []domain.Message, err error) {
		s.apply(gen, msgs, err)
	})

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		if sub != nil {
			sub.Stop()
		}
		return nil
	}
	if err != nil {
		s.loading = false
		s.lastErr = err
		s.mu.Unlock()
		logger.Log.Warn("watch messages", zap.String("room_id", roomID), zap.Error(err))
		s.onChange()
		return err
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// apply 只接受目前 generation 的 delivery
func (s *MessageStream) apply(gen uint64, msgs []domain.Message, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		// 保留上一次的結果
		s.lastErr = err
		s.loading = false
		roomID := s.roomID
		s.mu.Unlock()
		logger.Log.Warn("message delivery", zap.String("room_id", roomID), zap.Error(err))
		s.onChange()
		return
	}

	sorted := append([]domain.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return orderKey(sorted[i]) < orderKey(sorted[j])
	})
	s.messages = sorted
	s.loading = false
	s.lastErr = nil
	s.mu.Unlock()

	if s.profiles != nil {
		seen := make(map[string]struct{}, len(sorted))
		for _, m := range sorted {
			if _, ok := seen[m.SenderID]; ok {
				continue
			}
			seen[m.SenderID] = struct{}{}
			s.profiles.Observe(m.SenderID)
		}
	}
	s.onChange()
}

// orderKey 尚未取得 server timestamp 的訊息排在最後
func orderKey(m domain.Message) int64 {
	if m.Timestamp.IsZero() {
		return math.MaxInt64
	}
	return m.TimestampMillis()
}

// RoomID room currently open
func (s *MessageStream) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Messages latest delivered messages, ascending by timestamp
func (s *MessageStream) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

// Loading true until the first delivery of the open room
func (s *MessageStream) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err last delivery error, nil after a successful delivery
func (s *MessageStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Views grouped messages with resolved senders
func (s *MessageStream) Views(currentUID string) []domain.MessageView {
	views := GroupMessages(s.Messages())
	for i := range views {
		m := views[i].Message
		views[i].Own = m.SenderID == currentUID
		views[i].Sender = s.sender(m)
	}
	return views
}

// sender profile cache 優先, 其次是訊息寫入時的 profile
func (s *MessageStream) sender(m domain.Message) domain.User {
	if s.profiles != nil {
		if u, ok := s.profiles.Lookup(m.SenderID); ok {
			return u
		}
	}
	if m.DisplayName != "" {
		return domain.User{ID: m.SenderID, DisplayName: m.DisplayName, PhotoURL: m.PhotoURL}
	}
	return domain.DefaultProfile(m.SenderID)
}

// SendMessage validate, upload the optional image and append one message to the open room
func (s *MessageStream) SendMessage(ctx context.Context, text string, image *domain.ImageFile) error {
	return s.sendTo(ctx, s.RoomID(), text, image)
}

func (s *MessageStream) sendTo(ctx context.Context, roomID, text string, image *domain.ImageFile) error {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return domain.ErrEmptyMessage
	}
	if err := domain.ValidateImage(image); err != nil {
		return err
	}
	if roomID == "" {
		return domain.ErrNoActiveRoom
	}
	user := s.user()

	msg := &domain.Message{
		RoomID:      roomID,
		SenderID:    user.ID,
		Text:        text,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}

	if image != nil {
		path := domain.ImageObjectPath(roomID, user.ID, s.clock().UnixMilli(), image.Name)
		ref, err := s.blobs.Upload(ctx, path, image.Data, image.ContentType)
		if err != nil {
			return errprocess.Wrap(domain.ErrSendFailed, "upload image", err)
		}
		url, err := s.blobs.DownloadURL(ctx, ref)
		if err != nil {
			return errprocess.Wrap(domain.ErrSendFailed, "resolve image url", err)
		}
		msg.ImageURL = url
	}

	if _, err := s.repo.InsertMessage(ctx, msg); err != nil {
		return errprocess.Wrap(domain.ErrSendFailed, "insert message", err)
	}
	logger.Log.Debug("message sent", zap.String("room_id", roomID), zap.String("message_id", msg.ID))
	return nil
}

// Close dispose the subscription, no delivery is applied afterwards
func (s *MessageStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}
