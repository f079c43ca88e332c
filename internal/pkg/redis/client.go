// Package redis 封装 go-redis 的通用客户端，单地址连单机，多地址连集群。
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"promoindex/internal/pkg/logger"
)

// Client 持有 UniversalClient，供缓存等基础设施使用。
type Client struct {
	goredis.UniversalClient
}

// NewClient 按逗号分隔的地址创建客户端并 PING 一次。
func NewClient(addrs, password string, db int) (*Client, error) {
	var list []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}

	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        list,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %v: %w", list, err)
	}
	logger.Ctx(ctx).Info().Strs("addrs", list).Msg("connected to redis")
	return &Client{UniversalClient: rdb}, nil
}
