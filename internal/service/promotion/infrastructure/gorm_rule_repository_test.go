package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

func skuRule(name string, active bool, sku string) *domain.Rule {
	return &domain.Rule{
		Name:     name,
		IsActive: active,
		Conditions: condition.NewAll(&condition.Combine{
			Kind:       condition.KindFound,
			Aggregator: condition.AggregatorAll,
			Value:      true,
			Children:   []condition.Node{condition.NewProductLeaf("sku", condition.OpEq, sku)},
		}),
		Actions:        condition.NewAll(),
		WebsiteIDs:     []int64{1, 2},
		SimpleAction:   domain.ActionByPercent,
		DiscountAmount: dec("10"),
	}
}

func TestRuleRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRuleRepository(db)
	ctx := context.Background()

	active := skuRule("ten off", true, "A-100")
	active.CouponCode = "SAVE10"
	active.DiscountQty = dec("2")
	require.NoError(t, repo.Save(ctx, active))
	inactive := skuRule("paused", false, "B-50")
	require.NoError(t, repo.Save(ctx, inactive))
	require.NotZero(t, active.ID)
	require.NotEqual(t, active.ID, inactive.ID)

	rules, err := repo.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	got := rules[0]
	require.Equal(t, active.ID, got.ID)
	require.Equal(t, "ten off", got.Name)
	require.Equal(t, []int64{1, 2}, got.WebsiteIDs)
	require.Equal(t, "SAVE10", got.CouponCode)
	require.True(t, got.DiscountQty.Equal(dec("2")))
	require.True(t, got.DiscountAmount.Equal(dec("10")))
	require.False(t, got.StopRulesProcessing)

	leaves := condition.Leaves(got.Conditions)
	require.Len(t, leaves, 1)
	require.Equal(t, "sku", leaves[0].Attribute)
	require.Equal(t, "A-100", leaves[0].Value)

	all, err := repo.ListRulesByIDs(ctx, []int64{active.ID, inactive.ID}, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyActive, err := repo.ListRulesByIDs(ctx, []int64{active.ID, inactive.ID}, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)

	none, err := repo.ListRulesByIDs(ctx, nil, false)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRuleRepositorySaveReplacesWebsites(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRuleRepository(db)
	ctx := context.Background()

	r := skuRule("r", true, "A-100")
	require.NoError(t, repo.Save(ctx, r))
	r.WebsiteIDs = []int64{2}
	r.IsActive = false
	require.NoError(t, repo.Save(ctx, r))

	rules, err := repo.ListRulesByIDs(ctx, []int64{r.ID}, false)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, []int64{2}, rules[0].WebsiteIDs)
	require.False(t, rules[0].IsActive)
}

func TestRuleRepositorySkipsInvalidConditions(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRuleRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, skuRule("good", true, "A-100")))
	require.NoError(t, db.Create(&SalesRuleModel{
		Name:                 "broken",
		IsActive:             true,
		ConditionsSerialized: `{"type":"combine","conditions":[`,
		SimpleAction:         string(domain.ActionByPercent),
	}).Error)

	rules, err := repo.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "good", rules[0].Name)
}

func TestToDomainRuleInvalidCondition(t *testing.T) {
	_, err := ToDomainRule(&SalesRuleModel{RuleID: 9, ActionsSerialized: `{"type":"nope"}`}, nil, "")
	require.ErrorIs(t, err, domain.ErrInvalidCondition)
}
