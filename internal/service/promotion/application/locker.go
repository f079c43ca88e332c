package application

import (
	"context"
	"sync"
)

// LocalLocker 是进程内的互斥锁，没有配置 ZooKeeper 时使用。
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// Lock 阻塞直到获得 resource 的锁或 ctx 结束。
func (l *LocalLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	l.mu.Lock()
	slot, ok := l.slots[resource]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[resource] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
