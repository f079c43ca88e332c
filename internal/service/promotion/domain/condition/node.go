// Package condition 描述促销规则的条件树，并提供求值与商品预筛选两种遍历。
package condition

// Node 是条件树中的一个节点，只可能是 *Combine 或 *Leaf。
type Node interface {
	node()
}

// Aggregator 决定组合节点如何合并子节点的结果。
type Aggregator string

const (
	AggregatorAll Aggregator = "all" // 所有子条件都满足
	AggregatorAny Aggregator = "any" // 任一子条件满足
)

// CombineKind 区分不同语义的组合节点。
type CombineKind string

const (
	// KindCombine 普通组合: "如果以下条件 ALL/ANY 为 TRUE/FALSE"
	KindCombine CombineKind = "combine"
	// KindFound 购物车中是否存在满足子条件的商品行 (Value=false 表示 NOT FOUND)
	KindFound CombineKind = "product_found"
	// KindSubselect 对满足子条件的商品行的 qty / base_row_total 求和后再比较
	KindSubselect CombineKind = "product_subselect"
)

// LeafType 是叶子条件所属的实体类型。
type LeafType string

const (
	LeafProduct  LeafType = "product"
	LeafAddress  LeafType = "address"
	LeafCustomer LeafType = "customer"
)

// Scope 是叶子条件真正读取取值的作用域。
type Scope int

const (
	ScopeProduct Scope = iota + 1
	ScopeItem
	ScopeAddress
	ScopeCustomer
)

func (s Scope) String() string {
	switch s {
	case ScopeProduct:
		return "product"
	case ScopeItem:
		return "item"
	case ScopeAddress:
		return "address"
	case ScopeCustomer:
		return "customer"
	default:
		return "unknown"
	}
}

// 购物车行上的属性，虽然挂在商品条件下，但取值来自行而不是商品，无法预筛选。
const (
	AttrItemQty      = "quote_item_qty"
	AttrItemPrice    = "quote_item_price"
	AttrItemRowTotal = "quote_item_row_total"

	// AttrCategoryIDs 是分类归属，预筛选时转换为分类过滤而不是属性过滤。
	AttrCategoryIDs = "category_ids"
)

// Combine 是组合节点。Subselect 额外使用 Attribute/Operator/Threshold。
type Combine struct {
	Kind       CombineKind
	Aggregator Aggregator
	Value      bool
	Children   []Node

	Attribute string
	Operator  Operator
	Threshold any
}

func (*Combine) node() {}

// Leaf 是叶子条件: 属性 / 比较运算符 / 比较值。
type Leaf struct {
	Type      LeafType
	Attribute string
	Operator  Operator
	Value     any
}

func (*Leaf) node() {}

// Scope 返回叶子条件的取值作用域。
func (l *Leaf) Scope() Scope {
	switch l.Type {
	case LeafProduct:
		switch l.Attribute {
		case AttrItemQty, AttrItemPrice, AttrItemRowTotal:
			return ScopeItem
		}
		return ScopeProduct
	case LeafAddress:
		return ScopeAddress
	default:
		return ScopeCustomer
	}
}

// ParsedValue 将原始比较值规整为 string 或 []string。
// 多值运算符和分类属性总是得到列表，逗号分隔的字符串会被拆开。
func (l *Leaf) ParsedValue() any {
	return parseValue(l.Value, l.Operator.isArrayOperator() || l.Attribute == AttrCategoryIDs)
}

// Walk 先序遍历条件树，visit 返回 false 时不再进入该节点的子节点。
func Walk(n Node, visit func(Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	if c, ok := n.(*Combine); ok {
		for _, child := range c.Children {
			Walk(child, visit)
		}
	}
}

// Leaves 按文档顺序返回所有叶子节点。
func Leaves(n Node) []*Leaf {
	var out []*Leaf
	Walk(n, func(n Node) bool {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l)
		}
		return true
	})
	return out
}
