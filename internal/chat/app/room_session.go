package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// Deps backends shared by every component of a signed in session
type Deps struct {
	Rooms      repository.RoomRepository
	Messages   repository.MessageRepository
	Typing     repository.TypingRepository
	Profiles   repository.ProfileRepository
	Blobs      repository.BlobStore
	TypingIdle time.Duration
	Clock      func() time.Time
}

// View composed state for renderers
type View struct {
	User            domain.User           `json:"user"`
	Rooms           []domain.RoomListItem `json:"rooms"`
	RoomsLoading    bool                  `json:"roomsLoading"`
	ActiveRoom      *domain.Room          `json:"activeRoom,omitempty"`
	Messages        []domain.MessageView  `json:"messages"`
	MessagesLoading bool                  `json:"messagesLoading"`
	MessagesError   string                `json:"messagesError,omitempty"`
	TypingUsers     []domain.User         `json:"typingUsers"`
	Draft           Draft                 `json:"draft"`
}

// RoomSessionController owns the active room and binds stream + presence to it
type RoomSessionController struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Deps
	notify func()

	directory *RoomDirectory
	profiles  *ProfileCache
	stream    *MessageStream
	changes   chan struct{}

	// switchMu 序列化 room 切換與 Close
	switchMu sync.Mutex

	mu         sync.Mutex
	user       domain.User
	activeRoom string
	presence   *PresenceTracker
	composer   *Composer
	closed     bool
}

// NewRoomSessionController notify is called after every state change, may be nil
func NewRoomSessionController(parent context.Context, deps Deps, user domain.User, notify func()) *RoomSessionController {
	ctx, cancel := context.WithCancel(parent)
	if notify == nil {
		notify = func() {}
	}
	c := &RoomSessionController{
		ctx:     ctx,
		cancel:  cancel,
		deps:    deps,
		notify:  notify,
		user:    user,
		changes: make(chan struct{}, 1),
	}
	c.profiles = NewProfileCache(ctx, deps.Profiles, c.signal)
	c.directory = NewRoomDirectory(ctx, deps.Rooms, deps.Messages, user.ID, c.signal)
	c.stream = NewMessageStream(ctx, deps.Messages, deps.Blobs, c.profiles, c.User, deps.Clock, c.signal)
	return c
}

// Start subscribe the user's rooms and own profile
func (c *RoomSessionController) Start() error {
	c.profiles.Observe(c.User().ID)
	return c.directory.Start()
}

// signal 合併通知, renderer 只需要知道有變動
func (c *RoomSessionController) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
	c.notify()
}

// Changes coalescing change signal
func (c *RoomSessionController) Changes() <-chan struct{} {
	return c.changes
}

// Done closed after Close
func (c *RoomSessionController) Done() <-chan struct{} {
	return c.ctx.Done()
}

// User current user
func (c *RoomSessionController) User() domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// SetUser profile changed (settings)
func (c *RoomSessionController) SetUser(u domain.User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
	c.signal()
}

// Profiles profile cache of the session
func (c *RoomSessionController) Profiles() *ProfileCache {
	return c.profiles
}

// Directory room directory of the session
func (c *RoomSessionController) Directory() *RoomDirectory {
	return c.directory
}

// ActiveRoom "" when no room is selected
func (c *RoomSessionController) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoom
}

// SelectRoom activate a room the user is a member of
func (c *RoomSessionController) SelectRoom(ctx context.Context, roomID string) error {
	if _, ok := c.directory.Room(roomID); !ok {
		// directory 可能還沒收到剛建立的 room, 直接讀一次
		room, err := c.deps.Rooms.FindByID(ctx, roomID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find room %s: %w", roomID, err)
		}
		if !room.HasMember(c.User().ID) {
			return domain.ErrNotFound
		}
	}
	return c.selectRoom(roomID)
}

// selectRoom 先同步拆掉舊的 presence / stream, 再建立新 room 的訂閱
func (c *RoomSessionController) selectRoom(roomID string) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrNotAuthenticated
	}
	if c.activeRoom == roomID {
		c.mu.Unlock()
		return nil
	}
	old := c.presence
	c.presence = nil
	c.composer = nil
	c.activeRoom = ""
	uid := c.user.ID
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	var tracker *PresenceTracker
	tracker = NewPresenceTracker(c.ctx, c.deps.Typing, roomID, uid, c.deps.TypingIdle, func() {
		for _, u := range tracker.TypingUsers() {
			c.profiles.Observe(u)
		}
		c.signal()
	})

	c.mu.Lock()
	c.activeRoom = roomID
	c.presence = tracker
	c.composer = NewComposer(c.stream, roomID)
	c.mu.Unlock()

	// Open 會先停掉上一個 room 的訂閱
	if err := c.stream.Open(roomID); err != nil {
		logger.Log.Warn("open room stream", zap.String("room_id", roomID), zap.Error(err))
	}
	if err := tracker.Start(); err != nil {
		logger.Log.Warn("start presence", zap.String("room_id", roomID), zap.Error(err))
	}
	logger.Log.Info("room selected", zap.String("room_id", roomID), zap.String("uid", uid))
	c.signal()
	return nil
}

// CreateRoom create and join, the new room is not selected
func (c *RoomSessionController) CreateRoom(ctx context.Context, name, password string) (domain.Room, error) {
	if c.isClosed() {
		return domain.Room{}, domain.ErrNotAuthenticated
	}
	return c.directory.CreateRoom(ctx, name, password)
}

// JoinRoom join then select the joined room
func (c *RoomSessionController) JoinRoom(ctx context.Context, name, password string) (domain.Room, error) {
	if c.isClosed() {
		return domain.Room{}, domain.ErrNotAuthenticated
	}
	room, err := c.directory.JoinRoom(ctx, name, password)
	if err != nil {
		return domain.Room{}, err
	}
	if err := c.selectRoom(room.ID); err != nil {
		return room, err
	}
	return room, nil
}

func (c *RoomSessionController) active() (*PresenceTracker, *Composer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, domain.ErrNotAuthenticated
	}
	if c.presence == nil || c.composer == nil {
		return nil, nil, domain.ErrNoActiveRoom
	}
	return c.presence, c.composer, nil
}

// Keystroke typing signal of the current user
func (c *RoomSessionController) Keystroke(ctx context.Context) error {
	p, _, err := c.active()
	if err != nil {
		return err
	}
	p.Keystroke(ctx)
	return nil
}

// Blur input lost focus
func (c *RoomSessionController) Blur(ctx context.Context) error {
	p, _, err := c.active()
	if err != nil {
		return err
	}
	p.Blur(ctx)
	return nil
}

// SetComposerText replace composer text and count it as a keystroke
func (c *RoomSessionController) SetComposerText(ctx context.Context, text string) error {
	p, comp, err := c.active()
	if err != nil {
		return err
	}
	comp.SetText(text)
	p.Keystroke(ctx)
	c.signal()
	return nil
}

// AttachImage attach image to the composer
func (c *RoomSessionController) AttachImage(f *domain.ImageFile) error {
	_, comp, err := c.active()
	if err != nil {
		return err
	}
	if err := comp.AttachImage(f); err != nil {
		return err
	}
	c.signal()
	return nil
}

// ClearImage drop composer image
func (c *RoomSessionController) ClearImage() error {
	_, comp, err := c.active()
	if err != nil {
		return err
	}
	comp.ClearImage()
	c.signal()
	return nil
}

// Submit send the composer content of the active room
func (c *RoomSessionController) Submit(ctx context.Context) error {
	p, comp, err := c.active()
	if err != nil {
		return err
	}
	p.Blur(ctx)
	defer c.signal()
	return comp.Submit(ctx)
}

// SendMessage send directly to the active room
func (c *RoomSessionController) SendMessage(ctx context.Context, text string, image *domain.ImageFile) error {
	_, comp, err := c.active()
	if err != nil {
		return err
	}
	return c.stream.sendTo(ctx, comp.roomID, text, image)
}

// View compose rooms, active room, messages, typing users and draft
func (c *RoomSessionController) View() View {
	c.mu.Lock()
	user := c.user
	activeRoom := c.activeRoom
	presence := c.presence
	composer := c.composer
	c.mu.Unlock()

	v := View{
		User:         user,
		Rooms:        c.directory.Rooms(),
		RoomsLoading: !c.directory.Loaded(),
		Messages:     []domain.MessageView{},
		TypingUsers:  []domain.User{},
	}
	if activeRoom == "" {
		return v
	}

	room, ok := c.directory.Room(activeRoom)
	if !ok {
		room = domain.Room{ID: activeRoom}
	}
	v.ActiveRoom = &room
	// stream 可能還停在上一個 room
	if c.stream.RoomID() == activeRoom {
		v.Messages = c.stream.Views(user.ID)
		v.MessagesLoading = c.stream.Loading()
		if err := c.stream.Err(); err != nil {
			v.MessagesError = "Failed to load messages."
		}
	} else {
		v.MessagesLoading = true
	}
	if presence != nil {
		for _, uid := range presence.TypingUsers() {
			v.TypingUsers = append(v.TypingUsers, c.profiles.Get(uid))
		}
	}
	if composer != nil {
		v.Draft = composer.Draft()
	}
	return v
}

// ResolvedView View, 還沒收到 profile 的 typing user 與沒有寫入時 profile 的 sender 先一次性載入
func (c *RoomSessionController) ResolvedView(ctx context.Context) View {
	v := c.View()
	resolved := make(map[string]domain.User)
	resolve := func(uid string) (domain.User, bool) {
		if u, ok := c.profiles.Lookup(uid); ok {
			return u, true
		}
		if u, ok := resolved[uid]; ok {
			return u, true
		}
		u, err := c.profiles.Resolve(ctx, uid)
		if err != nil {
			logger.Log.Warn("resolve profile", zap.String("uid", uid), zap.Error(err))
			return domain.User{}, false
		}
		resolved[uid] = u
		return u, true
	}

	for i, u := range v.TypingUsers {
		if r, ok := resolve(u.ID); ok {
			v.TypingUsers[i] = r
		}
	}
	for i := range v.Messages {
		m := v.Messages[i].Message
		if m.DisplayName != "" {
			continue
		}
		if r, ok := resolve(m.SenderID); ok {
			v.Messages[i].Sender = r
		}
	}
	return v
}

func (c *RoomSessionController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tear down every subscription, no operation re-attaches afterwards
func (c *RoomSessionController) Close() {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	presence := c.presence
	c.presence = nil
	c.composer = nil
	c.activeRoom = ""
	c.mu.Unlock()

	if presence != nil {
		presence.Close()
	}
	c.stream.Close()
	c.directory.Close()
	c.profiles.Close()
	c.cancel()
	logger.Log.Info("room session closed", zap.String("uid", c.User().ID))
}
