package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_room_client/internal/chat/app"
	"chat_room_client/pkg/logger"
	"chat_room_client/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Snapshot 推送給 websocket client 的完整畫面狀態
type Snapshot struct {
	Session app.ShellStatus `json:"session"`
	View    *app.View       `json:"view,omitempty"`
}

// ViewHub fan out the shell's change signal to every websocket connection
type ViewHub struct {
	shell *app.SessionShell

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewViewHub create ViewHub, Run must be started to deliver changes
func NewViewHub(shell *app.SessionShell) *ViewHub {
	return &ViewHub{shell: shell, subs: make(map[chan struct{}]struct{})}
}

// Run 唯一讀取 shell.Changes() 的 goroutine
func (h *ViewHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shell.Changes():
			h.broadcast()
		}
	}
}

func (h *ViewHub) broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe coalescing signal, call cancel when done
func (h *ViewHub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Snapshot current session + view
func (h *ViewHub) Snapshot() Snapshot {
	s := Snapshot{Session: h.shell.Status()}
	if ctrl := h.shell.Controller(); ctrl != nil {
		v := ctrl.View()
		s.View = &v
	}
	return s
}

// ViewWebsocketHandler GET /ws, 每次狀態變動推送一份 Snapshot
type ViewWebsocketHandler struct {
	hub          *ViewHub
	pingInterval time.Duration
}

// NewViewWebsocketHandler pingInterval <= 0 uses one minute
func NewViewWebsocketHandler(hub *ViewHub, pingInterval time.Duration) *ViewWebsocketHandler {
	if pingInterval <= 0 {
		pingInterval = time.Minute
	}
	return &ViewWebsocketHandler{hub: hub, pingInterval: pingInterval}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ViewWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	logger.Log.Info("websocket connected", zap.String("member_id", memberID))

	changes, cancelSub := h.hub.Subscribe()
	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(context.Background())
	readDone := make(chan struct{})

	defer func() {
		ticker.Stop()
		cancelSub()
		cancel()
		logger.Log.Info("websocket close", zap.String("member_id", memberID))
		conn.Close()
		// handler 回傳後 conn 會被回收, 等 reader 結束
		<-readDone
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket closed by client", zap.Int("code", code))
		cancel()
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("member_id", memberID))
		return nil
	})

	// 畫面只讀取狀態, client 的訊息只用來偵測斷線
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived,
				) {
					logger.Log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	if err := h.send(conn); err != nil {
		return
	}
	for {
		select {
		case <-ctxClose.Done():
			return
		case <-changes:
			if err := h.send(conn); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				logger.Log.Debug("ping error", zap.Error(err))
				return
			}
		}
	}
}

// send 只在 HandleConnection 的 goroutine 寫入
func (h *ViewWebsocketHandler) send(conn *websocket.Conn) error {
	b, err := json.Marshal(h.hub.Snapshot())
	if err != nil {
		logger.Log.Error("marshal snapshot", zap.Error(err))
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Debug("write snapshot", zap.Error(err))
		return err
	}
	return nil
}
