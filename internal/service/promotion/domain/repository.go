package domain

import (
	"context"

	"promoindex/internal/service/promotion/domain/condition"
)

// RuleSource 提供促销规则。
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]*Rule, error)
	// ListRulesByIDs 按 ID 加载规则，activeOnly=false 时同时返回未启用的规则。
	ListRulesByIDs(ctx context.Context, ids []int64, activeOnly bool) ([]*Rule, error)
}

// ProductQuery 描述一次候选商品查询。
type ProductQuery struct {
	// IDs 为空表示不按 ID 过滤。
	IDs     []int64
	Filters []condition.ProductFilter
	// BatchSize 是每批回调的商品数量，<=0 时使用实现的默认值。
	BatchSize int
}

// ProductSource 分批流式返回启用的商品。fn 返回错误时停止遍历并原样返回。
type ProductSource interface {
	ListEnabledProducts(ctx context.Context, q ProductQuery, fn func([]*Product) error) error
}

// IndexStore 是折扣索引表的读写端口。
type IndexStore interface {
	// Upsert 按 (rule_id, product_id, website_id) 写入或覆盖行，并记录写入时间戳 builtAt。
	// 已有行的时间戳比 builtAt 新时保持不变。
	Upsert(ctx context.Context, rows []IndexRow, builtAt int64) error
	// Sweep 删除 scope 内 builtAt 早于 before 的行，返回删除的行数。
	Sweep(ctx context.Context, scope IndexScope, before int64) (int64, error)
	// Find 返回满足过滤条件的行。
	Find(ctx context.Context, f IndexFilter) ([]IndexRow, error)
}

// IndexState 记录整张索引是否需要全量重建。
type IndexState interface {
	Invalidate(ctx context.Context) error
	Snapshot(ctx context.Context) (IndexStateSnapshot, error)
	// MarkValid 仅当版本号仍为 version 时把索引标记为有效。
	MarkValid(ctx context.Context, version int64) (bool, error)
}

// Locker 提供跨进程的互斥锁，返回的函数用于释放锁。
type Locker interface {
	Lock(ctx context.Context, resource string) (func() error, error)
}

// ReadCache 缓存读路径的查询结果。Epoch 在每次索引变更后递增，旧 epoch 的缓存自然失效。
type ReadCache interface {
	Epoch(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}
