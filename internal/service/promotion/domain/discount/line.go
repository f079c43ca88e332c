// Package discount 用一个只含一件商品的虚拟购物车行模拟促销规则的折扣。
package discount

import (
	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

// Line 是模拟用的购物车行，只存在于一次折扣计算中。
type Line struct {
	Product *domain.Product
	// Child 是可配置商品选中的子商品，价格以它为准。
	Child     *domain.Product
	WebsiteID int64
	Qty       decimal.Decimal

	Price            decimal.Decimal
	SpecialPrice     decimal.NullDecimal
	CalculationPrice decimal.Decimal

	Address Address
}

// Address 是折扣计算需要的最小账单/收货地址替身。
type Address struct {
	BaseSubtotal             decimal.Decimal
	BaseSubtotalWithDiscount decimal.Decimal
	TotalQty                 decimal.Decimal
	Weight                   decimal.Decimal
	ShippingMethod           string
	PaymentMethod            string
	Postcode                 string
	Region                   string
	RegionID                 string
	CountryID                string
}

// NewLine 为商品在网站作用域下构造数量为 1 的购物车行。
func NewLine(p *domain.Product, websiteID int64) *Line {
	line := &Line{
		Product:   p,
		WebsiteID: websiteID,
		Qty:       decimal.NewFromInt(1),
	}
	basis := p
	if child := p.FirstSalableChild(); child != nil {
		line.Child = child
		basis = child
	}
	line.Price = basis.PriceIn(websiteID)
	line.SpecialPrice = basis.SpecialPriceIn(websiteID)
	line.CalculationPrice = line.Price

	rowTotal := line.RowTotal()
	line.Address = Address{
		BaseSubtotal:             rowTotal,
		BaseSubtotalWithDiscount: rowTotal,
		TotalQty:                 line.Qty,
		Weight:                   basis.Weight.Mul(line.Qty),
	}
	return line
}

// RowTotal 是行金额: 计算价格 × 数量。
func (l *Line) RowTotal() decimal.Decimal {
	return l.CalculationPrice.Mul(l.Qty)
}

// AddressSubject 返回规则条件 (地址级) 的求值视图。
func (l *Line) AddressSubject() condition.Subject {
	return addressSubject{line: l}
}

// ItemSubject 返回规则动作过滤条件 (行级) 的求值视图。
func (l *Line) ItemSubject() condition.Subject {
	return itemSubject{line: l, product: l.Product}
}

type addressSubject struct {
	line *Line
}

func (s addressSubject) Lookup(scope condition.Scope, attribute string) (any, bool) {
	if scope != condition.ScopeAddress {
		return s.line.ItemSubject().Lookup(scope, attribute)
	}
	a := s.line.Address
	switch attribute {
	case "base_subtotal":
		return a.BaseSubtotal.String(), true
	case "base_subtotal_with_discount":
		return a.BaseSubtotalWithDiscount.String(), true
	case "total_qty":
		return a.TotalQty.String(), true
	case "weight":
		return a.Weight.String(), true
	case "shipping_method":
		return a.ShippingMethod, true
	case "payment_method":
		return a.PaymentMethod, true
	case "postcode":
		return a.Postcode, true
	case "region":
		return a.Region, true
	case "region_id":
		return a.RegionID, true
	case "country_id":
		return a.CountryID, true
	}
	return nil, false
}

func (s addressSubject) Items() []condition.Subject {
	return []condition.Subject{s.line.ItemSubject()}
}

func (s addressSubject) Variant() condition.Subject {
	return s.line.ItemSubject().Variant()
}

type itemSubject struct {
	line    *Line
	product *domain.Product
}

func (s itemSubject) Lookup(scope condition.Scope, attribute string) (any, bool) {
	switch scope {
	case condition.ScopeItem:
		switch attribute {
		case condition.AttrItemQty:
			return s.line.Qty.String(), true
		case condition.AttrItemPrice:
			return s.line.CalculationPrice.String(), true
		case condition.AttrItemRowTotal:
			return s.line.RowTotal().String(), true
		}
		return nil, false
	case condition.ScopeProduct:
		return s.product.AttributeValue(attribute)
	case condition.ScopeAddress:
		return s.line.AddressSubject().Lookup(scope, attribute)
	}
	// 模拟的购物车没有客户
	return nil, false
}

func (s itemSubject) Items() []condition.Subject {
	return nil
}

func (s itemSubject) Variant() condition.Subject {
	if s.line.Child == nil || s.product == s.line.Child {
		return nil
	}
	return itemSubject{line: s.line, product: s.line.Child}
}
