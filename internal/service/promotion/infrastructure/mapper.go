package infrastructure

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

// ToDomainRule 将数据库模型转换为领域模型，条件树解析失败时返回 ErrInvalidCondition
func ToDomainRule(m *SalesRuleModel, websiteIDs []int64, couponCode string) (*domain.Rule, error) {
	conditions, err := condition.Parse([]byte(m.ConditionsSerialized))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidCondition, "rule %d conditions: %v", m.RuleID, err)
	}
	actions, err := condition.Parse([]byte(m.ActionsSerialized))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidCondition, "rule %d actions: %v", m.RuleID, err)
	}

	r := &domain.Rule{
		ID:                  m.RuleID,
		Name:                m.Name,
		Description:         m.Description,
		IsActive:            m.IsActive,
		FromDate:            m.FromDate,
		ToDate:              m.ToDate,
		WebsiteIDs:          websiteIDs,
		Conditions:          conditions,
		Actions:             actions,
		SimpleAction:        domain.SimpleAction(m.SimpleAction),
		DiscountAmount:      m.DiscountAmount,
		DiscountStep:        m.DiscountStep,
		StopRulesProcessing: m.StopRulesProcessing,
		SortOrder:           m.SortOrder,
		CouponCode:          couponCode,
	}
	if m.DiscountQty.Valid {
		r.DiscountQty = m.DiscountQty.Decimal
	}
	return r, nil
}

// FromDomainRule 将领域模型转换为数据库模型 (用于写入)
func FromDomainRule(r *domain.Rule) (*SalesRuleModel, error) {
	conditions, err := condition.Marshal(r.Conditions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal conditions")
	}
	actions, err := condition.Marshal(r.Actions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal actions")
	}
	m := &SalesRuleModel{
		RuleID:               r.ID,
		Name:                 r.Name,
		Description:          r.Description,
		IsActive:             r.IsActive,
		FromDate:             r.FromDate,
		ToDate:               r.ToDate,
		ConditionsSerialized: string(conditions),
		ActionsSerialized:    string(actions),
		SimpleAction:         string(r.SimpleAction),
		DiscountAmount:       r.DiscountAmount,
		DiscountStep:         r.DiscountStep,
		StopRulesProcessing:  r.StopRulesProcessing,
		SortOrder:            r.SortOrder,
	}
	if r.DiscountQty.IsPositive() {
		m.DiscountQty = decimal.NewNullDecimal(r.DiscountQty)
	}
	return m, nil
}

// toDomainProduct 只转换商品主表字段，关联数据由 hydrate 填充
func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:             m.EntityID,
		SKU:            m.SKU,
		TypeID:         domain.ProductType(m.TypeID),
		Enabled:        m.Status == productStatusEnabled,
		InStock:        m.IsInStock,
		AttributeSetID: m.AttributeSetID,
		Price:          m.Price,
		SpecialPrice:   m.SpecialPrice,
		Weight:         m.Weight,
	}
}

func toRuleProductModel(row domain.IndexRow, builtAt int64) RuleProductModel {
	return RuleProductModel{
		RuleID:     row.RuleID,
		ProductID:  row.ProductID,
		WebsiteID:  row.WebsiteID,
		RulePrice:  row.RulePrice,
		ProductSKU: row.ProductSKU,
		BuiltAt:    builtAt,
	}
}

func toDomainIndexRow(m *RuleProductModel) domain.IndexRow {
	return domain.IndexRow{
		RuleID:     m.RuleID,
		ProductID:  m.ProductID,
		WebsiteID:  m.WebsiteID,
		RulePrice:  m.RulePrice,
		ProductSKU: m.ProductSKU,
	}
}
