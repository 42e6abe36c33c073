package docstore

import (
	"context"
	"sync"
)

// listener 依序執行 run, 執行中收到的通知合併成一次重跑,
// 因此最後一次 delivery 一定反映最新狀態
type listener struct {
	mu      sync.Mutex
	run     func()
	running bool
	pending bool
	stopped bool
	onStop  func()
}

func newListener(run func()) *listener {
	return &listener{run: run}
}

func (l *listener) notify() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if l.running {
		l.pending = true
		l.mu.Unlock()
		return
	}
	l.running = true
	for {
		l.pending = false
		l.mu.Unlock()
		l.run()
		l.mu.Lock()
		if !l.pending || l.stopped {
			break
		}
	}
	l.running = false
	l.mu.Unlock()
}

func (l *listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Stop implements Subscription
func (l *listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	onStop := l.onStop
	l.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// bind ctx 結束或 Stop 時呼叫 release 一次.
// AfterFunc 可能立即觸發 Stop, 所以 onStop 要在註冊前先設好
func (l *listener) bind(ctx context.Context, release func()) {
	l.mu.Lock()
	l.onStop = release
	l.mu.Unlock()

	stopAfter := context.AfterFunc(ctx, l.Stop)
	l.mu.Lock()
	if !l.stopped {
		l.onStop = func() {
			stopAfter()
			release()
		}
	}
	l.mu.Unlock()
}
