package domain

import "github.com/shopspring/decimal"

// IndexRow 是索引中的一行: (规则, 商品, 网站) -> 折扣金额。
type IndexRow struct {
	RuleID     int64
	ProductID  int64
	WebsiteID  int64
	RulePrice  decimal.Decimal
	ProductSKU string
}

// IndexKey 是索引行的唯一键。
type IndexKey struct {
	RuleID    int64
	ProductID int64
	WebsiteID int64
}

// Key 返回行的唯一键。
func (r IndexRow) Key() IndexKey {
	return IndexKey{RuleID: r.RuleID, ProductID: r.ProductID, WebsiteID: r.WebsiteID}
}

// IndexScope 限定一次重建负责的行，两个列表都为空表示整张索引。
type IndexScope struct {
	RuleIDs    []int64
	ProductIDs []int64
}

// IndexFilter 是读路径的查询条件。RuleID/ProductID 为 0 表示不过滤，WebsiteID 总是参与过滤。
type IndexFilter struct {
	RuleID    int64
	ProductID int64
	WebsiteID int64
}

// IndexStatus 是整张索引的有效状态。
type IndexStatus string

const (
	IndexValid   IndexStatus = "valid"
	IndexInvalid IndexStatus = "invalid"
)

// IndexStateSnapshot 是某一时刻的索引状态，Version 每次失效时递增。
type IndexStateSnapshot struct {
	Status  IndexStatus
	Version int64
}
