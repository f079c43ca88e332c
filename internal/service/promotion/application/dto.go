package application

import (
	"time"

	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain"
)

// RuleQuery 是查询规则折扣的请求。
type RuleQuery struct {
	RuleID    int64
	ProductID int64
	WebsiteID int64
}

// RuleMetadata 是返回给调用方的规则信息
type RuleMetadata struct {
	RuleID              int64           `json:"rule_id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	IsActive            bool            `json:"is_active"`
	FromDate            *time.Time      `json:"from_date,omitempty"`
	ToDate              *time.Time      `json:"to_date,omitempty"`
	WebsiteIDs          []int64         `json:"website_ids"`
	SimpleAction        string          `json:"simple_action"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountQty         decimal.Decimal `json:"discount_qty"`
	DiscountStep        int64           `json:"discount_step"`
	StopRulesProcessing bool            `json:"stop_rules_processing"`
	SortOrder           int             `json:"sort_order"`
	CouponCode          string          `json:"coupon_code,omitempty"`
}

// ProductDiscount 是规则在某个商品上的索引折扣
type ProductDiscount struct {
	RuleID     int64           `json:"rule_id"`
	ProductID  int64           `json:"product_id"`
	ProductSKU string          `json:"product_sku"`
	WebsiteID  int64           `json:"website_id"`
	RulePrice  decimal.Decimal `json:"rule_price"`
}

// RuleWithDiscounts 是查询接口的单条结果
type RuleWithDiscounts struct {
	RuleMetadata
	ProductDiscounts []ProductDiscount `json:"product_discounts"`
}

// ReindexRequest 是管理端按 ID 重建的请求体
type ReindexRequest struct {
	IDs []int64 `json:"ids"`
}

func toRuleMetadata(r *domain.Rule) RuleMetadata {
	return RuleMetadata{
		RuleID:              r.ID,
		Name:                r.Name,
		Description:         r.Description,
		IsActive:            r.IsActive,
		FromDate:            r.FromDate,
		ToDate:              r.ToDate,
		WebsiteIDs:          r.WebsiteIDs,
		SimpleAction:        string(r.SimpleAction),
		DiscountAmount:      r.DiscountAmount,
		DiscountQty:         r.DiscountQty,
		DiscountStep:        r.DiscountStep,
		StopRulesProcessing: r.StopRulesProcessing,
		SortOrder:           r.SortOrder,
		CouponCode:          r.CouponCode,
	}
}

func toProductDiscount(row domain.IndexRow) ProductDiscount {
	return ProductDiscount{
		RuleID:     row.RuleID,
		ProductID:  row.ProductID,
		ProductSKU: row.ProductSKU,
		WebsiteID:  row.WebsiteID,
		RulePrice:  row.RulePrice,
	}
}
