package infrastructure

import (
	"context"

	"promoindex/internal/zookeeper"
)

// ZKLocker 用 ZooKeeper 临时顺序节点实现跨进程互斥
type ZKLocker struct {
	conn *zookeeper.Conn
	root string
}

func NewZKLocker(conn *zookeeper.Conn, root string) *ZKLocker {
	return &ZKLocker{conn: conn, root: root}
}

func (l *ZKLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, resource)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}
