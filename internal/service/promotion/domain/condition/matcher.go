package condition

// FilterOperator 是商品查询层面的比较运算。
type FilterOperator string

const (
	FilterEq   FilterOperator = "eq"
	FilterNeq  FilterOperator = "neq"
	FilterGt   FilterOperator = "gt"
	FilterGteq FilterOperator = "gteq"
	FilterLt   FilterOperator = "lt"
	FilterLteq FilterOperator = "lteq"
	FilterIn   FilterOperator = "in"
	FilterNin  FilterOperator = "nin"
)

// FilterKind 区分普通属性过滤和分类归属过滤。
type FilterKind int

const (
	FilterAttribute FilterKind = iota + 1
	FilterCategory
)

// ProductFilter 是从规则条件里提取出的一条商品预筛选条件。
// Value 为 string，或者 in/nin/分类过滤时为 []string。
// Source 是条件里原本的运算符: {} 和 () 都映射为 in，但 {} 对标量属性是子串匹配。
type ProductFilter struct {
	Kind      FilterKind
	Attribute string
	Operator  FilterOperator
	Value     any
	Source    Operator
}

var operatorMap = map[Operator]FilterOperator{
	OpEq:          FilterEq,
	OpNeq:         FilterNeq,
	OpGt:          FilterGt,
	OpGte:         FilterGteq,
	OpLt:          FilterLt,
	OpLte:         FilterLteq,
	OpOneOf:       FilterIn,
	OpContains:    FilterIn,
	OpNotOneOf:    FilterNin,
	OpNotContains: FilterNin,
}

// ExtractProductFilters 收集条件树里所有商品作用域的叶子条件并翻译成商品过滤。
//
// 地址、购物车行、客户条件无法预筛选，直接忽略，留给模拟器校验。
// 注意: 不区分 ALL / ANY，也不考虑取反的组合。当 ANY 组合里混有非商品条件时，
// 预筛选可能排除掉完整条件树会接受的商品，这是已知的精度缺口。
//
// 任意一个运算符无法映射时返回 (nil, false): 整条规则放弃预筛选，匹配所有商品。
func ExtractProductFilters(tree Node) ([]ProductFilter, bool) {
	var (
		filters []ProductFilter
		ok      = true
	)
	Walk(tree, func(n Node) bool {
		if !ok {
			return false
		}
		leaf, isLeaf := n.(*Leaf)
		if !isLeaf || leaf.Scope() != ScopeProduct {
			return true
		}
		op, mapped := operatorMap[leaf.Operator]
		if !mapped {
			ok = false
			return false
		}
		f := ProductFilter{
			Kind:      FilterAttribute,
			Attribute: leaf.Attribute,
			Operator:  op,
			Value:     leaf.ParsedValue(),
			Source:    leaf.Operator,
		}
		if leaf.Attribute == AttrCategoryIDs {
			f.Kind = FilterCategory
		} else if op == FilterIn || op == FilterNin {
			f.Value = asList(f.Value)
		}
		filters = append(filters, f)
		return true
	})
	if !ok {
		return nil, false
	}
	return filters, true
}
