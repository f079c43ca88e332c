package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"promoindex/internal/service/promotion/application"
	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

func indexedPrices(t *testing.T, store *GormIndexStore, websites ...int64) map[domain.IndexKey]string {
	t.Helper()
	out := map[domain.IndexKey]string{}
	for _, w := range websites {
		rows, err := store.Find(context.Background(), domain.IndexFilter{WebsiteID: w})
		require.NoError(t, err)
		for _, r := range rows {
			out[r.Key()] = r.RulePrice.StringFixed(2)
		}
	}
	return out
}

func TestIndexBuilderAgainstDatabase(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	rules := NewGormRuleRepository(db)
	categoryRule := &domain.Rule{
		Name:     "category 3",
		IsActive: true,
		Conditions: condition.NewAll(&condition.Combine{
			Kind:       condition.KindFound,
			Aggregator: condition.AggregatorAll,
			Value:      true,
			Children:   []condition.Node{condition.NewProductLeaf(condition.AttrCategoryIDs, condition.OpEq, "3")},
		}),
		Actions:        condition.NewAll(),
		WebsiteIDs:     []int64{1, 2},
		SimpleAction:   domain.ActionByPercent,
		DiscountAmount: dec("10"),
	}
	require.NoError(t, rules.Save(ctx, categoryRule))

	store := NewGormIndexStore(db, 0)
	state := NewGormIndexStateRepository(db)
	builder := application.NewIndexBuilder(rules, NewGormProductRepository(db), store, state,
		noop.NewTracerProvider().Tracer("test"), application.IndexerConfig{BatchSize: 2})

	report, err := builder.RebuildFull(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Failures)

	id := categoryRule.ID
	require.Equal(t, map[domain.IndexKey]string{
		{RuleID: id, ProductID: 1, WebsiteID: 1}: "10.00",
		{RuleID: id, ProductID: 1, WebsiteID: 2}: "9.00",
		// 可配置商品按第一个可售子商品 (6, 40) 计价
		{RuleID: id, ProductID: 4, WebsiteID: 1}: "4.00",
		{RuleID: id, ProductID: 6, WebsiteID: 1}: "4.00",
	}, indexedPrices(t, store, 1, 2))

	snap, err := state.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.IndexValid, snap.Status)

	// 商品 1 移出分类 3 后按商品重建，它的行被清除
	require.NoError(t, db.Where("product_id = ? AND category_id = ?", 1, 3).Delete(&CategoryProductModel{}).Error)
	report, err = builder.RebuildForProducts(ctx, []int64{1})
	require.NoError(t, err)
	require.EqualValues(t, 2, report.RowsSwept)
	require.Equal(t, map[domain.IndexKey]string{
		{RuleID: id, ProductID: 4, WebsiteID: 1}: "4.00",
		{RuleID: id, ProductID: 6, WebsiteID: 1}: "4.00",
	}, indexedPrices(t, store, 1, 2))

	// 停用规则后按规则重建，它的行全部清除
	categoryRule.IsActive = false
	require.NoError(t, rules.Save(ctx, categoryRule))
	_, err = builder.RebuildForRules(ctx, []int64{id})
	require.NoError(t, err)
	require.Empty(t, indexedPrices(t, store, 1, 2))
}

// 对纯商品条件的规则，按规则重建和全量重建得到同样的索引行。
func TestRuleRebuildAgreesWithFullRebuild(t *testing.T) {
	leaves := []*condition.Leaf{
		condition.NewProductLeaf("sku", condition.OpContains, "100"),
		condition.NewProductLeaf("color", condition.OpContains, "RE"),
		condition.NewProductLeaf("sku", condition.OpOneOf, "a-100,conf-g"),
		condition.NewProductLeaf("price", condition.OpLt, "45"),
		condition.NewProductLeaf(condition.AttrCategoryIDs, condition.OpContains, "3"),
	}
	for _, leaf := range leaves {
		leaf := leaf
		t.Run(leaf.Attribute+" "+string(leaf.Operator), func(t *testing.T) {
			db := newTestDB(t)
			seedCatalog(t, db)
			ctx := context.Background()

			rules := NewGormRuleRepository(db)
			r := &domain.Rule{
				Name:     "single leaf",
				IsActive: true,
				Conditions: condition.NewAll(&condition.Combine{
					Kind:       condition.KindFound,
					Aggregator: condition.AggregatorAll,
					Value:      true,
					Children:   []condition.Node{leaf},
				}),
				Actions:        condition.NewAll(),
				WebsiteIDs:     []int64{1, 2},
				SimpleAction:   domain.ActionByPercent,
				DiscountAmount: dec("10"),
			}
			require.NoError(t, rules.Save(ctx, r))

			store := NewGormIndexStore(db, 0)
			builder := application.NewIndexBuilder(rules, NewGormProductRepository(db), store, NewGormIndexStateRepository(db),
				noop.NewTracerProvider().Tracer("test"), application.IndexerConfig{})

			_, err := builder.RebuildFull(ctx)
			require.NoError(t, err)
			full := indexedPrices(t, store, 1, 2)
			require.NotEmpty(t, full)

			report, err := builder.RebuildForRules(ctx, []int64{r.ID})
			require.NoError(t, err)
			require.Zero(t, report.RowsSwept)
			require.Equal(t, full, indexedPrices(t, store, 1, 2))
		})
	}
}

// sweepHookStore 在下一次 Sweep 之前执行一次 beforeSweep
type sweepHookStore struct {
	*GormIndexStore
	beforeSweep func()
}

func (s *sweepHookStore) Sweep(ctx context.Context, scope domain.IndexScope, before int64) (int64, error) {
	if hook := s.beforeSweep; hook != nil {
		s.beforeSweep = nil
		hook()
	}
	return s.GormIndexStore.Sweep(ctx, scope, before)
}

// 较早开始的按规则重建夹在按商品重建的写入和清理之间，两轮都保留的行不能丢。
func TestInterleavedRebuildsKeepRows(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	rules := NewGormRuleRepository(db)
	r := &domain.Rule{
		Name:     "sku 100",
		IsActive: true,
		Conditions: condition.NewAll(&condition.Combine{
			Kind:       condition.KindFound,
			Aggregator: condition.AggregatorAll,
			Value:      true,
			Children:   []condition.Node{condition.NewProductLeaf("sku", condition.OpContains, "100")},
		}),
		Actions:        condition.NewAll(),
		WebsiteIDs:     []int64{1, 2},
		SimpleAction:   domain.ActionByPercent,
		DiscountAmount: dec("10"),
	}
	require.NoError(t, rules.Save(ctx, r))

	store := NewGormIndexStore(db, 0)
	hooked := &sweepHookStore{GormIndexStore: store}
	products := NewGormProductRepository(db)
	state := NewGormIndexStateRepository(db)
	tracer := noop.NewTracerProvider().Tracer("test")
	fixed := func(ns int64) application.IndexBuilderOption {
		return application.WithClock(func() time.Time { return time.Unix(0, ns) })
	}

	earlier := application.NewIndexBuilder(rules, products, store, state, tracer, application.IndexerConfig{}, fixed(1000))
	later := application.NewIndexBuilder(rules, products, hooked, state, tracer, application.IndexerConfig{}, fixed(2000))
	hooked.beforeSweep = func() {
		_, err := earlier.RebuildForRules(ctx, []int64{r.ID})
		require.NoError(t, err)
	}

	report, err := later.RebuildForProducts(ctx, []int64{1})
	require.NoError(t, err)
	require.Zero(t, report.RowsSwept)
	require.Equal(t, map[domain.IndexKey]string{
		{RuleID: r.ID, ProductID: 1, WebsiteID: 1}: "10.00",
		{RuleID: r.ID, ProductID: 1, WebsiteID: 2}: "9.00",
	}, indexedPrices(t, store, 1, 2))
}
