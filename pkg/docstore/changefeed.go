package docstore

import (
	"context"
	"fmt"
	"sync"

	"chat_room_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const changeChannelPrefix = "docstore:"

// changeFeed 所有 listener 共用一條 redis pub/sub 連線,
// 依 channel 分派 "collection 有變動" 的通知
type changeFeed struct {
	client *redis.Client
	pubsub *redis.PubSub

	mu       sync.Mutex
	handlers map[string]map[uint64]func()
	nextID   uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func changeChannel(collection string) string {
	return changeChannelPrefix + collection
}

func newChangeFeed(client *redis.Client) *changeFeed {
	ctx, cancel := context.WithCancel(context.Background())
	f := &changeFeed{
		client:   client,
		pubsub:   client.Subscribe(ctx),
		handlers: make(map[string]map[uint64]func()),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Publish 通知 collection 有寫入
func (f *changeFeed) Publish(ctx context.Context, collection string) error {
	return f.client.Publish(ctx, changeChannel(collection), "changed").Err()
}

// Subscribe 訂閱 collection 的變動, 回傳取消函式
func (f *changeFeed) Subscribe(ctx context.Context, collection string, handler func()) (func(), error) {
	channel := changeChannel(collection)

	f.mu.Lock()
	defer f.mu.Unlock()

	hs, ok := f.handlers[channel]
	if !ok {
		if err := f.pubsub.Subscribe(ctx, channel); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		hs = make(map[uint64]func())
		f.handlers[channel] = hs
	}
	f.nextID++
	id := f.nextID
	hs[id] = handler

	return func() { f.unsubscribe(channel, id) }, nil
}

func (f *changeFeed) unsubscribe(channel string, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hs, ok := f.handlers[channel]
	if !ok {
		return
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(f.handlers, channel)
		if err := f.pubsub.Unsubscribe(context.Background(), channel); err != nil {
			logger.Log.Warn("docstore unsubscribe", zap.String("channel", channel), zap.Error(err))
		}
	}
}

func (f *changeFeed) run(ctx context.Context) {
	defer close(f.done)
	ch := f.pubsub.Channel()

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			f.mu.Lock()
			targets := make([]func(), 0, len(f.handlers[m.Channel]))
			for _, h := range f.handlers[m.Channel] {
				targets = append(targets, h)
			}
			f.mu.Unlock()

			// listener 自己會合併通知, 不讓慢的查詢卡住其他 channel
			for _, h := range targets {
				go h()
			}
		case <-ctx.Done():
			logger.Log.Info("docstore change feed closed")
			return
		}
	}
}

// Close stop the feed goroutine and the pub/sub connection
func (f *changeFeed) Close() error {
	f.cancel()
	err := f.pubsub.Close()
	<-f.done
	return err
}
