package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/domain"
)

// GormRuleRepository 是 RuleSource 的 GORM 实现
type GormRuleRepository struct {
	db *gorm.DB
}

func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// ListActiveRules 按 sort_order 返回所有启用的规则
func (r *GormRuleRepository) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	return r.load(ctx, r.db.WithContext(ctx).Where("is_active = ?", true))
}

func (r *GormRuleRepository) ListRulesByIDs(ctx context.Context, ids []int64, activeOnly bool) ([]*domain.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Where("rule_id IN ?", ids)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	return r.load(ctx, q)
}

// load 查询规则并加载网站和主优惠码。条件树无法解析的规则记录日志后跳过。
func (r *GormRuleRepository) load(ctx context.Context, q *gorm.DB) ([]*domain.Rule, error) {
	var models []SalesRuleModel
	if err := q.Order("sort_order, rule_id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query salesrule")
	}
	if len(models) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(models))
	for i, m := range models {
		ids[i] = m.RuleID
	}

	var websites []SalesRuleWebsiteModel
	if err := r.db.WithContext(ctx).Where("rule_id IN ?", ids).Order("rule_id, website_id").Find(&websites).Error; err != nil {
		return nil, errors.Wrap(err, "query salesrule_website")
	}
	websitesByRule := make(map[int64][]int64, len(ids))
	for _, w := range websites {
		websitesByRule[w.RuleID] = append(websitesByRule[w.RuleID], w.WebsiteID)
	}

	var coupons []SalesRuleCouponModel
	if err := r.db.WithContext(ctx).Where("rule_id IN ? AND is_primary = ?", ids, true).Find(&coupons).Error; err != nil {
		return nil, errors.Wrap(err, "query salesrule_coupon")
	}
	couponByRule := make(map[int64]string, len(coupons))
	for _, c := range coupons {
		couponByRule[c.RuleID] = c.Code
	}

	rules := make([]*domain.Rule, 0, len(models))
	for i := range models {
		m := &models[i]
		rule, err := ToDomainRule(m, websitesByRule[m.RuleID], couponByRule[m.RuleID])
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("rule_id", m.RuleID).Msg("skipping rule with invalid conditions")
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Save 写入规则及其网站和主优惠码
func (r *GormRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	model, err := FromDomainRule(rule)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(model).Error; err != nil {
			return errors.Wrap(err, "save salesrule")
		}
		rule.ID = model.RuleID

		if err := tx.Where("rule_id = ?", rule.ID).Delete(&SalesRuleWebsiteModel{}).Error; err != nil {
			return errors.Wrap(err, "clear salesrule_website")
		}
		if len(rule.WebsiteIDs) > 0 {
			links := make([]SalesRuleWebsiteModel, len(rule.WebsiteIDs))
			for i, w := range rule.WebsiteIDs {
				links[i] = SalesRuleWebsiteModel{RuleID: rule.ID, WebsiteID: w}
			}
			if err := tx.Create(&links).Error; err != nil {
				return errors.Wrap(err, "save salesrule_website")
			}
		}

		if err := tx.Where("rule_id = ? AND is_primary = ?", rule.ID, true).Delete(&SalesRuleCouponModel{}).Error; err != nil {
			return errors.Wrap(err, "clear primary coupon")
		}
		if rule.CouponCode == "" {
			return nil
		}
		coupon := SalesRuleCouponModel{RuleID: rule.ID, Code: rule.CouponCode, IsPrimary: true}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"rule_id", "is_primary"}),
		}).Create(&coupon).Error
		return errors.Wrap(err, "save primary coupon")
	})
}
