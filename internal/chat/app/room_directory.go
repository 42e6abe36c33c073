package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	"chat_room_client/pkg"
	"chat_room_client/pkg/docstore"
	"chat_room_client/pkg/encrypt"
	errprocess "chat_room_client/pkg/err"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// previewEntry 每個 room 一個 latest message 訂閱, 以 pointer 判斷 delivery 是否過期
type previewEntry struct {
	room    domain.Room
	preview domain.RoomPreview
	order   int
	sub     docstore.Subscription
}

// RoomDirectory rooms of the current user with live previews, sorted by recency
type RoomDirectory struct {
	ctx      context.Context
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	uid      string
	onChange func()

	mu      sync.Mutex
	sub     docstore.Subscription
	entries map[string]*previewEntry
	loaded  bool
	closed  bool
}

// NewRoomDirectory ctx 為訂閱的生命週期
func NewRoomDirectory(ctx context.Context, rooms repository.RoomRepository, messages repository.MessageRepository, uid string, onChange func()) *RoomDirectory {
	if onChange == nil {
		onChange = func() {}
	}
	return &RoomDirectory{
		ctx:      ctx,
		rooms:    rooms,
		messages: messages,
		uid:      uid,
		onChange: onChange,
		entries:  make(map[string]*previewEntry),
	}
}

// Start subscribe rooms whose members contain uid
func (d *RoomDirectory) Start() error {
	sub, err := d.rooms.WatchMemberRooms(d.ctx, d.uid, d.applyRooms)
	if err != nil {
		logger.Log.Warn("watch rooms", zap.String("uid", d.uid), zap.Error(err))
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		sub.Stop()
		return nil
	}
	d.sub = sub
	d.mu.Unlock()
	return nil
}

// applyRooms 以 room id diff 訂閱: 移除的停止, 新的訂閱, 留下的保留 preview
func (d *RoomDirectory) applyRooms(rooms []domain.Room, err error) {
	if err != nil {
		logger.Log.Warn("rooms delivery", zap.String("uid", d.uid), zap.Error(err))
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	next := make(map[string]*previewEntry, len(rooms))
	var added []*previewEntry
	order := 0
	for _, r := range rooms {
		if !pkg.Contains(r.Members, d.uid) {
			continue
		}
		if _, dup := next[r.ID]; dup {
			continue
		}
		if e, ok := d.entries[r.ID]; ok {
			e.room = r
			e.order = order
			next[r.ID] = e
		} else {
			e := &previewEntry{room: r, preview: domain.PreviewFromMessage(r.ID, nil), order: order}
			next[r.ID] = e
			added = append(added, e)
		}
		order++
	}
	var removed []docstore.Subscription
	for id, e := range d.entries {
		if _, ok := next[id]; !ok && e.sub != nil {
			removed = append(removed, e.sub)
			e.sub = nil
		}
	}
	d.entries = next
	d.loaded = true
	d.mu.Unlock()

	for _, sub := range removed {
		sub.Stop()
	}
	for _, e := range added {
		d.watchPreview(e)
	}
	d.onChange()
}

func (d *RoomDirectory) watchPreview(e *previewEntry) {
	roomID := e.room.ID
	sub, err := d.messages.WatchLatestMessage(d.ctx, roomID, func(m *domain.Message, err error) {
		d.applyPreview(roomID, e, m, err)
	})
	if err != nil {
		logger.Log.Warn("watch preview", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	d.mu.Lock()
	// entry 在訂閱期間被移除或已關閉
	if d.closed || d.entries[roomID] != e {
		d.mu.Unlock()
		sub.Stop()
		return
	}
	e.sub = sub
	d.mu.Unlock()
}

func (d *RoomDirectory) applyPreview(roomID string, e *previewEntry, m *domain.Message, err error) {
	if err != nil {
		logger.Log.Warn("preview delivery", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	d.mu.Lock()
	if d.closed || d.entries[roomID] != e {
		d.mu.Unlock()
		return
	}
	e.preview = domain.PreviewFromMessage(roomID, m)
	d.mu.Unlock()
	d.onChange()
}

// Rooms sorted by latest timestamp desc, ties keep delivery order
func (d *RoomDirectory) Rooms() []domain.RoomListItem {
	d.mu.Lock()
	entries := make([]*previewEntry, 0, len(d.entries))
	for _, e := range d.entries {
		entries = append(entries, e)
	}
	items := make([]domain.RoomListItem, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	for _, e := range entries {
		items = append(items, domain.RoomListItem{Room: e.room, Preview: e.preview})
	}
	d.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Preview.LatestMillis() > items[j].Preview.LatestMillis()
	})
	return items
}

// Room room by id if the user is a member
func (d *RoomDirectory) Room(roomID string) (domain.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[roomID]
	if !ok {
		return domain.Room{}, false
	}
	return e.room, true
}

// Loaded first room set delivered
func (d *RoomDirectory) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// PreviewSubscriptions live preview subscriptions count
func (d *RoomDirectory) PreviewSubscriptions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.entries {
		if e.sub != nil {
			n++
		}
	}
	return n
}

// CreateRoom name check then write; concurrent creators may still both succeed
func (d *RoomDirectory) CreateRoom(ctx context.Context, name, password string) (domain.Room, error) {
	name, password = domain.NormalizeName(name), domain.NormalizeName(password)
	if name == "" || password == "" {
		return domain.Room{}, domain.ErrValidation
	}

	existing, err := d.rooms.FindByName(ctx, name)
	if err != nil {
		return domain.Room{}, errprocess.Wrap(domain.ErrSendFailed, "find room by name", err)
	}
	if len(existing) > 0 {
		return domain.Room{}, domain.ErrDuplicateName
	}

	hashed, err := encrypt.HashSecret(password)
	if err != nil {
		return domain.Room{}, errprocess.Wrap(domain.ErrSendFailed, "hash room password", err)
	}
	room := domain.Room{
		Name:      name,
		Password:  hashed,
		Members:   []string{d.uid},
		CreatedBy: d.uid,
	}
	if _, err := d.rooms.CreateRoom(ctx, &room); err != nil {
		return domain.Room{}, errprocess.Wrap(domain.ErrSendFailed, "create room", err)
	}
	logger.Log.Info("room created", zap.String("room_id", room.ID), zap.String("uid", d.uid))
	return room, nil
}

// JoinRoom earliest room with the exact name; membership add is idempotent
func (d *RoomDirectory) JoinRoom(ctx context.Context, name, password string) (domain.Room, error) {
	name, password = domain.NormalizeName(name), domain.NormalizeName(password)
	if name == "" || password == "" {
		return domain.Room{}, domain.ErrValidation
	}

	rooms, err := d.rooms.FindByName(ctx, name)
	if err != nil {
		return domain.Room{}, errprocess.Wrap(domain.ErrSendFailed, "find room by name", err)
	}
	if len(rooms) == 0 {
		return domain.Room{}, domain.ErrNotFound
	}
	room := rooms[0]
	// 沒有密碼的 room 不接受任何非空輸入
	if room.Password == "" || encrypt.CheckPassword(room.Password, password) != nil {
		return domain.Room{}, domain.ErrInvalidCredential
	}

	if err := d.rooms.AddMember(ctx, room.ID, d.uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Room{}, domain.ErrNotFound
		}
		return domain.Room{}, errprocess.Wrap(domain.ErrSendFailed, "add member", err)
	}
	room.Members = pkg.AppendIfNotExists(room.Members, d.uid)
	logger.Log.Info("room joined", zap.String("room_id", room.ID), zap.String("uid", d.uid))
	return room, nil
}

// Close dispose the room set and every preview subscription
func (d *RoomDirectory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	sub := d.sub
	d.sub = nil
	subs := make([]docstore.Subscription, 0, len(d.entries))
	for _, e := range d.entries {
		if e.sub != nil {
			subs = append(subs, e.sub)
			e.sub = nil
		}
	}
	d.entries = make(map[string]*previewEntry)
	d.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	for _, s := range subs {
		s.Stop()
	}
}
