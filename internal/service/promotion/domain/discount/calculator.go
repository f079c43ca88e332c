package discount

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain"
)

var hundred = decimal.NewFromInt(100)

// Discount 是一次折扣计算的结果。
type Discount struct {
	Amount         decimal.Decimal
	OriginalAmount decimal.Decimal
	// Percent 非零表示按百分比计算，金额需要按币种精度修正。
	Percent decimal.Decimal
}

// Calculator 按规则的折扣方式计算购物车行的折扣。
type Calculator interface {
	Calculate(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error)
}

// CalculatorFunc 让普通函数实现 Calculator。
type CalculatorFunc func(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error)

func (f CalculatorFunc) Calculate(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error) {
	return f(rule, line, qty)
}

// Registry 按 SimpleAction 查找折扣计算器。
type Registry map[domain.SimpleAction]Calculator

// DefaultCalculators 返回平台内置的全部折扣方式。
func DefaultCalculators() Registry {
	return Registry{
		domain.ActionByPercent: CalculatorFunc(byPercent),
		domain.ActionToPercent: CalculatorFunc(toPercent),
		domain.ActionByFixed:   CalculatorFunc(byFixed),
		domain.ActionToFixed:   CalculatorFunc(toFixed),
		domain.ActionCartFixed: CalculatorFunc(cartFixed),
		domain.ActionBuyXGetY:  CalculatorFunc(buyXGetY),
	}
}

// Resolve 返回 action 对应的计算器。
func (r Registry) Resolve(action domain.SimpleAction) (Calculator, error) {
	c, ok := r[action]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownAction, "action %q", action)
	}
	return c, nil
}

func byPercent(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error) {
	return percentOff(line, qty, decimal.Min(rule.DiscountAmount, hundred)), nil
}

func toPercent(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error) {
	return percentOff(line, qty, hundred.Sub(decimal.Min(rule.DiscountAmount, hundred))), nil
}

func percentOff(line *Line, qty, pct decimal.Decimal) Discount {
	rate := pct.Div(hundred)
	return Discount{
		Amount:         qty.Mul(line.CalculationPrice).Mul(rate),
		OriginalAmount: qty.Mul(line.Price).Mul(rate),
		Percent:        pct,
	}
}

func byFixed(rule *domain.Rule, _ *Line, qty decimal.Decimal) (Discount, error) {
	amount := qty.Mul(rule.DiscountAmount)
	return Discount{Amount: amount, OriginalAmount: amount}, nil
}

// toFixed: 一口价，折扣为 price - min(amount, price)。
func toFixed(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error) {
	return Discount{
		Amount:         qty.Mul(line.CalculationPrice.Sub(decimal.Min(rule.DiscountAmount, line.CalculationPrice))),
		OriginalAmount: qty.Mul(line.Price.Sub(decimal.Min(rule.DiscountAmount, line.Price))),
	}, nil
}

// cartFixed 把整单立减金额按行金额占比分摊，虚拟购物车只有一行，所以全部落在这一行。
func cartFixed(rule *domain.Rule, line *Line, _ decimal.Decimal) (Discount, error) {
	amount := decimal.Min(rule.DiscountAmount, line.RowTotal())
	return Discount{Amount: amount, OriginalAmount: amount}, nil
}

// buyXGetY: 每买 X (DiscountStep) 件送 Y (DiscountAmount) 件。
func buyXGetY(rule *domain.Rule, line *Line, qty decimal.Decimal) (Discount, error) {
	x := decimal.NewFromInt(rule.DiscountStep)
	y := rule.DiscountAmount
	if x.Sign() <= 0 || y.GreaterThan(x) {
		return Discount{}, nil
	}
	period := x.Add(y)
	fullPeriods := qty.Div(period).Floor()
	free := qty.Sub(fullPeriods.Mul(period))
	discountQty := fullPeriods.Mul(y)
	if free.GreaterThan(x) {
		discountQty = discountQty.Add(free.Sub(x))
	}
	return Discount{
		Amount:         discountQty.Mul(line.CalculationPrice),
		OriginalAmount: discountQty.Mul(line.Price),
	}, nil
}
