package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-zookeeper/zk"

	"promoindex/internal/pkg/logger"
)

const defaultLockRoot = "/distributed_locks"

// ErrNotLocked 表示释放一个未持有的锁
var ErrNotLocked = errors.New("zookeeper: lock not held")

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /distributed_locks/item-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁并确保锁路径存在，root 为空时使用 /distributed_locks
func NewDistributedLock(conn *Conn, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = defaultLockRoot
	}
	lockPath := strings.TrimRight(root, "/") + "/" + resourceID
	if err := conn.EnsurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 阻塞直到获得锁或 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 受保护的临时顺序节点，名字形如 _c_<guid>-lock-0000000007
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return l.abandon(ctx, fmt.Errorf("failed to get children nodes: %w", err))
		}
		sortBySequence(children)

		idx := slices.Index(children, myNode)
		switch {
		case idx < 0:
			l.lockNode = ""
			return errors.New("zookeeper: own lock node disappeared, session may have expired")
		case idx == 0:
			return nil
		}

		// 只监听前一个节点
		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			return l.abandon(ctx, fmt.Errorf("failed to watch previous node: %w", err))
		}
		if !exists {
			continue
		}
		select {
		case <-eventChan:
		case <-ctx.Done():
			return l.abandon(ctx, ctx.Err())
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotLocked
	}
	return l.release()
}

// abandon 放弃本次加锁并返回 cause，删除节点失败只记日志
func (l *DistributedLock) abandon(ctx context.Context, cause error) error {
	node := l.lockNode
	if err := l.release(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("lock_node", node).AnErr("cause", cause).
			Msg("failed to remove abandoned lock node")
	}
	return cause
}

func (l *DistributedLock) release() error {
	node := l.lockNode
	l.lockNode = ""
	if err := l.conn.Delete(node, -1); err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}

// sortBySequence 按节点名末尾的顺序号排序，忽略受保护节点的 guid 前缀
func sortBySequence(nodes []string) {
	slices.SortStableFunc(nodes, func(a, b string) int {
		return sequenceOf(a) - sequenceOf(b)
	})
}

func sequenceOf(node string) int {
	i := strings.LastIndex(node, "-")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(node[i+1:])
	if err != nil {
		return 0
	}
	return n
}
