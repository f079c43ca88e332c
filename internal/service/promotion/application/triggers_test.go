package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"promoindex/internal/service/promotion/domain"
)

type recordingRebuilder struct {
	full     int
	rules    [][]int64
	products [][]int64
}

func (r *recordingRebuilder) RebuildFull(context.Context) (*RebuildReport, error) {
	r.full++
	return &RebuildReport{Operation: OpFull}, nil
}

func (r *recordingRebuilder) RebuildForRules(_ context.Context, ids []int64) (*RebuildReport, error) {
	r.rules = append(r.rules, ids)
	return &RebuildReport{Operation: OpRules}, nil
}

func (r *recordingRebuilder) RebuildForProducts(_ context.Context, ids []int64) (*RebuildReport, error) {
	r.products = append(r.products, ids)
	return &RebuildReport{Operation: OpProducts}, nil
}

func TestTriggerHandler(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name        string
		event       domain.EntityEvent
		wantRules   [][]int64
		wantProduct [][]int64
		invalidated bool
	}{
		{
			name:        "product saved",
			event:       domain.EntityEvent{Type: domain.EventProductSaved, EntityID: 10},
			wantProduct: [][]int64{{10}},
		},
		{
			name:        "variant saved with its configurable parents",
			event:       domain.EntityEvent{Type: domain.EventProductSaved, EntityID: 6, AffectedProductIDs: []int64{4, 6, 0, 4}},
			wantProduct: [][]int64{{6, 4}},
		},
		{
			name:  "product saved by mass update",
			event: domain.EntityEvent{Type: domain.EventProductSaved, EntityID: 10, MassUpdate: true},
		},
		{
			name:        "category saved",
			event:       domain.EntityEvent{Type: domain.EventCategorySaved, EntityID: 3, AffectedProductIDs: []int64{10, 11}},
			wantProduct: [][]int64{{10, 11}},
		},
		{
			name:  "category saved without product changes",
			event: domain.EntityEvent{Type: domain.EventCategorySaved, EntityID: 3},
		},
		{
			name:        "category deleted",
			event:       domain.EntityEvent{Type: domain.EventCategoryDeleted, EntityID: 3},
			invalidated: true,
		},
		{
			name:      "rule saved",
			event:     domain.EntityEvent{Type: domain.EventRuleSaved, EntityID: 7},
			wantRules: [][]int64{{7}},
		},
		{
			name:        "website saved",
			event:       domain.EntityEvent{Type: domain.EventWebsiteSaved, EntityID: 1},
			invalidated: true,
		},
		{
			name:        "website deleted",
			event:       domain.EntityEvent{Type: domain.EventWebsiteDeleted, EntityID: 1},
			invalidated: true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rb := &recordingRebuilder{}
			state := &memState{status: domain.IndexValid}
			h := NewTriggerHandler(rb, state, nil, testTracer)

			require.NoError(t, h.Handle(ctx, &tc.event))
			require.Equal(t, tc.wantRules, rb.rules)
			require.Equal(t, tc.wantProduct, rb.products)
			require.Zero(t, rb.full)
			if tc.invalidated {
				require.Equal(t, domain.IndexInvalid, state.status)
				require.EqualValues(t, 1, state.version)
			} else {
				require.Equal(t, domain.IndexValid, state.status)
			}
		})
	}
}

func TestTriggerHandlerRejectsBadEvents(t *testing.T) {
	ctx := context.Background()
	h := NewTriggerHandler(&recordingRebuilder{}, &memState{}, nil, testTracer)

	require.ErrorIs(t, h.Handle(ctx, &domain.EntityEvent{Type: "store_saved"}), domain.ErrUnknownEvent)
	require.ErrorIs(t, h.Handle(ctx, nil), domain.ErrUnknownEvent)
	require.ErrorIs(t, h.Handle(ctx, &domain.EntityEvent{Type: domain.EventProductSaved}), domain.ErrUndefinedEntity)
	require.ErrorIs(t, h.Handle(ctx, &domain.EntityEvent{Type: domain.EventRuleSaved}), domain.ErrUndefinedEntity)
}

func TestTriggersDriveIndexBuilder(t *testing.T) {
	p := product(10, "A", "100")
	f := newIndexFixture(IndexerConfig{}, []*domain.Rule{rule(1, domain.ActionByFixed, "5")}, []*domain.Product{p})
	h := NewTriggerHandler(f.builder, f.state, nil, testTracer)
	ctx := context.Background()

	require.NoError(t, h.OnRuleSaved(ctx, 1))
	require.Len(t, f.store.snapshot(), 1)

	p.Enabled = false
	require.NoError(t, h.OnProductSaved(ctx, 10, nil, false))
	require.Empty(t, f.store.snapshot())
}

// 子商品改价后，父商品的索引行随子商品一起刷新
func TestVariantSaveRefreshesParent(t *testing.T) {
	child := product(11, "A-red", "40", 1)
	parent := product(10, "A", "0", 1)
	parent.TypeID = domain.ProductConfigurable
	parent.Children = []*domain.Product{child}
	f := newIndexFixture(IndexerConfig{}, []*domain.Rule{rule(1, domain.ActionByFixed, "5")}, []*domain.Product{parent, child})
	h := NewTriggerHandler(f.builder, f.state, nil, testTracer)
	ctx := context.Background()

	require.NoError(t, h.OnRuleSaved(ctx, 1))
	require.Equal(t, "35", f.store.snapshot()[key(1, 10, 1)])

	child.Price = dec("30")
	require.NoError(t, h.OnProductSaved(ctx, 11, []int64{10}, false))
	require.Equal(t, map[domain.IndexKey]string{
		key(1, 10, 1): "25",
		key(1, 11, 1): "25",
	}, f.store.snapshot())
}
