package condition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractProductFilters(t *testing.T) {
	tree := NewAll(
		NewProductLeaf("sku", OpEq, "A"),
		NewAddressLeaf("base_subtotal", OpGte, "100"),
		&Combine{Kind: KindFound, Aggregator: AggregatorAll, Value: true, Children: []Node{
			NewProductLeaf("color", OpOneOf, "red,blue"),
			NewProductLeaf(AttrCategoryIDs, OpEq, "3,4"),
			NewProductLeaf(AttrItemQty, OpGt, "1"),
		}},
		&Leaf{Type: LeafCustomer, Attribute: "segment", Operator: OpEq, Value: "vip"},
		NewProductLeaf("weight", OpLte, "2.5"),
		NewProductLeaf("name", OpNotContains, "gift"),
		NewProductLeaf("name", OpContains, "100"),
	)

	filters, ok := ExtractProductFilters(tree)
	require.True(t, ok)
	require.Equal(t, []ProductFilter{
		{Kind: FilterAttribute, Attribute: "sku", Operator: FilterEq, Value: "A", Source: OpEq},
		{Kind: FilterAttribute, Attribute: "color", Operator: FilterIn, Value: []string{"red", "blue"}, Source: OpOneOf},
		{Kind: FilterCategory, Attribute: AttrCategoryIDs, Operator: FilterEq, Value: []string{"3", "4"}, Source: OpEq},
		{Kind: FilterAttribute, Attribute: "weight", Operator: FilterLteq, Value: "2.5", Source: OpLte},
		{Kind: FilterAttribute, Attribute: "name", Operator: FilterNin, Value: []string{"gift"}, Source: OpNotContains},
		{Kind: FilterAttribute, Attribute: "name", Operator: FilterIn, Value: []string{"100"}, Source: OpContains},
	}, filters)
}

func TestExtractProductFiltersUnmappedOperator(t *testing.T) {
	tree := NewAll(
		NewProductLeaf("sku", OpEq, "A"),
		NewProductLeaf("sku", Operator("~="), "B"),
	)
	filters, ok := ExtractProductFilters(tree)
	require.False(t, ok)
	require.Nil(t, filters)
}

func TestExtractProductFiltersWithoutProductLeaves(t *testing.T) {
	filters, ok := ExtractProductFilters(NewAll(NewAddressLeaf("total_qty", OpGt, "1")))
	require.True(t, ok)
	require.Empty(t, filters)

	filters, ok = ExtractProductFilters(nil)
	require.True(t, ok)
	require.Empty(t, filters)
}

// 过滤里保留的运算符和取值足以还原叶子的判定结果；SQL 侧的覆盖性在 infrastructure 里对 SQLite 校验。
func TestExtractedFiltersKeepLeafVerdict(t *testing.T) {
	leaves := []*Leaf{
		NewProductLeaf("sku", OpEq, "a-100"),
		NewProductLeaf("sku", OpNeq, "A-100"),
		NewProductLeaf("sku", OpContains, "100"),
		NewProductLeaf("sku", OpNotContains, "100"),
		NewProductLeaf("sku", OpOneOf, "A-100,B-2"),
		NewProductLeaf("sku", OpNotOneOf, "A-100,B-2"),
		NewProductLeaf("price", OpGt, "40"),
		NewProductLeaf("price", OpGte, "45"),
		NewProductLeaf("price", OpLt, "45"),
		NewProductLeaf("price", OpLte, "12.5"),
		NewProductLeaf("color", OpEq, "RED"),
		NewProductLeaf("color", OpGt, "m"),
		NewProductLeaf(AttrCategoryIDs, OpEq, "3"),
		NewProductLeaf(AttrCategoryIDs, OpOneOf, "4,9"),
		NewProductLeaf(AttrCategoryIDs, OpContains, "3"),
	}
	subjects := []*fakeSubject{
		{values: map[Scope]map[string]any{ScopeProduct: {"sku": "A-100", "price": "45", "color": "red", AttrCategoryIDs: []string{"3"}}}},
		{values: map[Scope]map[string]any{ScopeProduct: {"sku": "x-1000", "price": "12.5", "color": "", AttrCategoryIDs: []string{"4", "5"}}}},
		{values: map[Scope]map[string]any{ScopeProduct: {"sku": "B-2", "price": "40", "color": "Navy", AttrCategoryIDs: []string{}}}},
	}

	for _, leaf := range leaves {
		filters, ok := ExtractProductFilters(NewAll(leaf))
		require.True(t, ok)
		require.Len(t, filters, 1)
		f := filters[0]
		require.Equal(t, leaf.Operator, f.Source)

		value := f.Value
		if list, isList := value.([]string); isList {
			value = strings.Join(list, ",")
		}
		rebuilt := NewProductLeaf(f.Attribute, f.Source, value)
		for i, s := range subjects {
			require.Equal(t, Validate(leaf, s), Validate(rebuilt, s),
				"%s %s %v on subject %d", leaf.Attribute, leaf.Operator, leaf.Value, i)
		}
	}
}
