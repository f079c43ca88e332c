package condition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSubject struct {
	values  map[Scope]map[string]any
	items   []Subject
	variant Subject
}

func (f *fakeSubject) Lookup(scope Scope, attribute string) (any, bool) {
	v, ok := f.values[scope][attribute]
	return v, ok
}

func (f *fakeSubject) Items() []Subject { return f.items }

func (f *fakeSubject) Variant() Subject { return f.variant }

func item(sku, qty string) *fakeSubject {
	return &fakeSubject{values: map[Scope]map[string]any{
		ScopeProduct: {"sku": sku},
		ScopeItem:    {AttrItemQty: qty, AttrItemRowTotal: qty},
	}}
}

func TestValidateCombine(t *testing.T) {
	s := item("A", "1")

	require.True(t, Validate(nil, s))
	require.True(t, Validate(NewAll(), s))
	require.True(t, Validate(NewAll(NewProductLeaf("sku", OpEq, "a")), s))
	require.False(t, Validate(NewAll(
		NewProductLeaf("sku", OpEq, "A"),
		NewProductLeaf("sku", OpEq, "B"),
	), s))
	require.True(t, Validate(NewAny(
		NewProductLeaf("sku", OpEq, "B"),
		NewProductLeaf("sku", OpEq, "A"),
	), s))

	// ANY 为 FALSE: 任一子条件不满足即可
	anyFalse := &Combine{Kind: KindCombine, Aggregator: AggregatorAny, Value: false, Children: []Node{
		NewProductLeaf("sku", OpEq, "A"),
		NewProductLeaf("sku", OpEq, "B"),
	}}
	require.True(t, Validate(anyFalse, s))

	// ALL 为 FALSE: 所有子条件都不满足
	allFalse := &Combine{Kind: KindCombine, Aggregator: AggregatorAll, Value: false, Children: []Node{
		NewProductLeaf("sku", OpEq, "A"),
	}}
	require.False(t, Validate(allFalse, s))
}

func TestValidateFound(t *testing.T) {
	addr := &fakeSubject{items: []Subject{item("A", "1"), item("B", "2")}}

	found := &Combine{Kind: KindFound, Aggregator: AggregatorAll, Value: true, Children: []Node{
		NewProductLeaf("sku", OpEq, "B"),
	}}
	require.True(t, Validate(found, addr))

	notFound := &Combine{Kind: KindFound, Aggregator: AggregatorAll, Value: false, Children: []Node{
		NewProductLeaf("sku", OpEq, "C"),
	}}
	require.True(t, Validate(notFound, addr))

	notFound.Children = []Node{NewProductLeaf("sku", OpEq, "A")}
	require.False(t, Validate(notFound, addr))
}

func TestValidateSubselect(t *testing.T) {
	addr := &fakeSubject{items: []Subject{item("A", "2"), item("A", "3"), item("B", "10")}}

	sub := &Combine{
		Kind:       KindSubselect,
		Aggregator: AggregatorAll,
		Value:      true,
		Attribute:  "qty",
		Operator:   OpGte,
		Threshold:  "5",
		Children:   []Node{NewProductLeaf("sku", OpEq, "A")},
	}
	require.True(t, Validate(sub, addr))

	sub.Threshold = "6"
	require.False(t, Validate(sub, addr))

	sub.Attribute = "base_row_total"
	sub.Operator = OpEq
	sub.Threshold = "5"
	require.True(t, Validate(sub, addr))
}

func TestValidateLeafFallsBackToVariant(t *testing.T) {
	parent := item("CFG", "1")
	parent.variant = item("CFG-RED", "1")

	require.True(t, Validate(NewProductLeaf("sku", OpEq, "CFG-RED"), parent))
	require.True(t, Validate(NewProductLeaf("sku", OpEq, "CFG"), parent))
	require.False(t, Validate(NewProductLeaf("sku", OpEq, "CFG-BLUE"), parent))
	// 非商品作用域不回退
	require.False(t, Validate(NewProductLeaf(AttrItemQty, OpGt, "5"), parent))
}
