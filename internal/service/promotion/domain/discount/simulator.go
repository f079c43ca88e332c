package discount

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

// DefaultPrecision 是币种的默认小数位。
const DefaultPrecision int32 = 2

// Simulator 对单个 (商品, 规则, 网站) 计算折扣，不持有可变状态，可以并发使用。
type Simulator struct {
	calculators Registry
	precision   int32
}

// Option 配置 Simulator。
type Option func(*Simulator)

// WithCalculators 替换折扣计算器集合。
func WithCalculators(r Registry) Option {
	return func(s *Simulator) { s.calculators = r }
}

// WithPrecision 设置币种精度。
func WithPrecision(places int32) Option {
	return func(s *Simulator) { s.precision = places }
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		calculators: DefaultCalculators(),
		precision:   DefaultPrecision,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeDiscount 返回折扣金额；ok=false 表示规则不适用于该商品 (不同于折扣为 0)。
func (s *Simulator) ComputeDiscount(p *domain.Product, r *domain.Rule, websiteID int64) (amount decimal.Decimal, ok bool, err error) {
	if p == nil || r == nil {
		return decimal.Zero, false, errors.Wrap(domain.ErrUndefinedEntity, "simulate discount")
	}
	if !r.AppliesToWebsite(websiteID) {
		return decimal.Zero, false, nil
	}

	line := NewLine(p, websiteID)
	if !condition.Validate(r.Conditions, line.AddressSubject()) ||
		!condition.Validate(r.Actions, line.ItemSubject()) {
		return decimal.Zero, false, nil
	}

	calc, err := s.calculators.Resolve(r.SimpleAction)
	if err != nil {
		return decimal.Zero, false, err
	}
	qty := line.Qty
	if r.DiscountQty.Sign() > 0 && r.DiscountQty.LessThan(qty) {
		qty = r.DiscountQty
	}
	d, err := calc.Calculate(r, line, qty)
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "rule %d product %d", r.ID, p.ID)
	}

	d = s.roundingFix(d)
	d = minFix(d, line, qty)
	if d.Amount.Sign() < 0 {
		d.Amount = decimal.Zero
	}
	return d.Amount, true, nil
}

// roundingFix 只对百分比折扣按币种精度四舍五入。
// 每次模拟都是全新的购物车，没有跨行累积的舍入差额。
func (s *Simulator) roundingFix(d Discount) Discount {
	if d.Percent.IsZero() {
		return d
	}
	d.Amount = d.Amount.Round(s.precision)
	d.OriginalAmount = d.OriginalAmount.Round(s.precision)
	return d
}

// minFix 保证折扣不超过 行价格 × 数量。
func minFix(d Discount, line *Line, qty decimal.Decimal) Discount {
	limit := line.CalculationPrice.Mul(qty)
	d.Amount = decimal.Min(d.Amount, limit)
	d.OriginalAmount = decimal.Min(d.OriginalAmount, line.Price.Mul(qty))
	return d
}
