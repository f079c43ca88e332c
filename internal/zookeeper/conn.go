// Package zookeeper 提供 ZooKeeper 连接和基于临时顺序节点的分布式锁。
package zookeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"

	"promoindex/internal/pkg/logger"
)

// Conn 是已建立会话的 ZooKeeper 连接
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 并等待会话建立
func Connect(ctx context.Context, servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("zookeeper: no server configured")
	}
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(logger.Ctx(ctx)))
	if err != nil {
		return nil, fmt.Errorf("zookeeper connect %v: %w", servers, err)
	}

	timer := time.NewTimer(sessionTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Ctx(ctx).Info().Strs("servers", servers).Msg("zookeeper session established")
				return &Conn{Conn: conn}, nil
			}
			if ev.State == zk.StateAuthFailed || ev.State == zk.StateExpired {
				conn.Close()
				return nil, fmt.Errorf("zookeeper session state %s", ev.State)
			}
		case <-timer.C:
			conn.Close()
			return nil, fmt.Errorf("zookeeper: timeout waiting for session on %v", servers)
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		}
	}
}

// EnsurePath 逐级创建持久节点，已存在的节点跳过
func (c *Conn) EnsurePath(path string) error {
	for i := 1; i <= len(path); i++ {
		if i != len(path) && path[i] != '/' {
			continue
		}
		_, err := c.Create(path[:i], nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("create node %s: %w", path[:i], err)
		}
	}
	return nil
}
