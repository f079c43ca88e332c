package domain

import (
	"strconv"

	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain/condition"
)

// ProductType 是商品类型。
type ProductType string

const (
	ProductSimple       ProductType = "simple"
	ProductVirtual      ProductType = "virtual"
	ProductConfigurable ProductType = "configurable"
)

// WebsitePrice 是商品在某个网站下的价格。
type WebsitePrice struct {
	Price        decimal.Decimal
	SpecialPrice decimal.NullDecimal
}

// Product 是参与折扣模拟的候选商品。
type Product struct {
	ID             int64
	SKU            string
	TypeID         ProductType
	Enabled        bool
	InStock        bool
	AttributeSetID int64
	Price          decimal.Decimal
	SpecialPrice   decimal.NullDecimal
	Weight         decimal.Decimal

	WebsiteIDs    []int64
	WebsitePrices map[int64]WebsitePrice
	CategoryIDs   []int64
	// Attributes 是 EAV 属性，多选值以逗号分隔保存。
	Attributes map[string]string
	// Children 是可配置商品的子商品，按关联顺序排列。
	Children []*Product
}

// PriceIn 返回网站作用域下的价格，没有网站价格时回退到基础价格。
func (p *Product) PriceIn(websiteID int64) decimal.Decimal {
	if wp, ok := p.WebsitePrices[websiteID]; ok {
		return wp.Price
	}
	return p.Price
}

// SpecialPriceIn 返回网站作用域下的特价。
func (p *Product) SpecialPriceIn(websiteID int64) decimal.NullDecimal {
	if wp, ok := p.WebsitePrices[websiteID]; ok && wp.SpecialPrice.Valid {
		return wp.SpecialPrice
	}
	return p.SpecialPrice
}

// Salable 表示商品可售: 启用且有库存。
func (p *Product) Salable() bool {
	return p.Enabled && p.InStock
}

// FirstSalableChild 返回第一个可售的子商品。
func (p *Product) FirstSalableChild() *Product {
	if p.TypeID != ProductConfigurable {
		return nil
	}
	for _, child := range p.Children {
		if child != nil && child.Salable() {
			return child
		}
	}
	return nil
}

// InWebsite 判断商品是否属于该网站。
func (p *Product) InWebsite(websiteID int64) bool {
	for _, id := range p.WebsiteIDs {
		if id == websiteID {
			return true
		}
	}
	return false
}

// AttributeValue 按属性代码取值，静态属性优先于 EAV 属性。
func (p *Product) AttributeValue(code string) (any, bool) {
	switch code {
	case "sku":
		return p.SKU, true
	case "type_id":
		return string(p.TypeID), true
	case "attribute_set_id":
		return strconv.FormatInt(p.AttributeSetID, 10), true
	case "price":
		return p.Price.String(), true
	case "special_price":
		if !p.SpecialPrice.Valid {
			return nil, false
		}
		return p.SpecialPrice.Decimal.String(), true
	case "weight":
		return p.Weight.String(), true
	case "status":
		if p.Enabled {
			return "1", true
		}
		return "2", true
	case condition.AttrCategoryIDs:
		ids := make([]string, 0, len(p.CategoryIDs))
		for _, id := range p.CategoryIDs {
			ids = append(ids, condition.FormatID(id))
		}
		return ids, true
	}
	v, ok := p.Attributes[code]
	return v, ok
}
