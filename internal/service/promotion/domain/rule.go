package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain/condition"
)

// SimpleAction 决定规则的折扣计算方式，也是折扣计算器的注册键。
type SimpleAction string

const (
	ActionByPercent SimpleAction = "by_percent"  // 按百分比减
	ActionToPercent SimpleAction = "to_percent"  // 打到百分比
	ActionByFixed   SimpleAction = "by_fixed"    // 每件立减固定金额
	ActionToFixed   SimpleAction = "to_fixed"    // 一口价
	ActionCartFixed SimpleAction = "cart_fixed"  // 整单立减
	ActionBuyXGetY  SimpleAction = "buy_x_get_y" // 买 X 送 Y
)

// Rule 是一条购物车促销规则，对索引器来说只读。
type Rule struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	FromDate    *time.Time
	ToDate      *time.Time
	WebsiteIDs  []int64

	// Conditions 作用于购物车地址 (包含 found / subselect 商品子条件)。
	Conditions condition.Node
	// Actions 是折扣作用对象的过滤条件，作用于购物车行。
	Actions condition.Node

	SimpleAction        SimpleAction
	DiscountAmount      decimal.Decimal
	DiscountQty         decimal.Decimal
	DiscountStep        int64
	StopRulesProcessing bool
	SortOrder           int
	CouponCode          string
}

// AppliesToWebsite 判断规则是否在该网站生效。
func (r *Rule) AppliesToWebsite(websiteID int64) bool {
	for _, id := range r.WebsiteIDs {
		if id == websiteID {
			return true
		}
	}
	return false
}
