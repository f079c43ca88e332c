package condition

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Subject 是条件求值时看到的实体视图 (地址或购物车行)。
type Subject interface {
	// Lookup 返回作用域内的属性值，ok=false 表示该实体没有这个属性。
	Lookup(scope Scope, attribute string) (any, bool)
	// Items 返回 found / subselect 需要遍历的购物车行，行本身返回 nil。
	Items() []Subject
	// Variant 返回可配置商品选中的子商品视图，没有时为 nil。
	Variant() Subject
}

// Validate 对 subject 求值整棵条件树。nil 树视为恒真。
func Validate(n Node, s Subject) bool {
	switch t := n.(type) {
	case nil:
		return true
	case *Combine:
		switch t.Kind {
		case KindFound:
			return validateFound(t, s)
		case KindSubselect:
			return validateSubselect(t, s)
		}
		return validateCombine(t, s)
	case *Leaf:
		return validateLeaf(t, s)
	}
	return false
}

func validateCombine(c *Combine, s Subject) bool {
	if len(c.Children) == 0 {
		return true
	}
	all := c.Aggregator != AggregatorAny
	for _, child := range c.Children {
		ok := Validate(child, s)
		if all && ok != c.Value {
			return false
		}
		if !all && ok == c.Value {
			return true
		}
	}
	return all
}

// validateFound: 是否存在一行满足子条件，Value=false 时取反 (NOT FOUND)。
func validateFound(c *Combine, s Subject) bool {
	all := c.Aggregator != AggregatorAny
	found := false
	for _, item := range itemsOf(s) {
		found = all
		for _, child := range c.Children {
			ok := Validate(child, item)
			if (all && !ok) || (!all && ok) {
				found = ok
				break
			}
		}
		if found {
			break
		}
	}
	if c.Value {
		return found
	}
	return !found
}

// validateSubselect 对满足子条件的行的 qty / base_row_total 求和，再与阈值比较。
func validateSubselect(c *Combine, s Subject) bool {
	total := decimal.Zero
	inner := &Combine{Kind: KindCombine, Aggregator: c.Aggregator, Value: true, Children: c.Children}
	for _, item := range itemsOf(s) {
		if !validateCombine(inner, item) {
			continue
		}
		attr := AttrItemQty
		if c.Attribute == "base_row_total" {
			attr = AttrItemRowTotal
		}
		v, ok := item.Lookup(ScopeItem, attr)
		if !ok {
			continue
		}
		if d, err := decimal.NewFromString(scalar(normalize(v))); err == nil {
			total = total.Add(d)
		}
	}
	return ValidateAttribute(total.String(), c.Operator, parseValue(c.Threshold, c.Operator.isArrayOperator()))
}

func validateLeaf(l *Leaf, s Subject) bool {
	scope := l.Scope()
	want := l.ParsedValue()

	v, _ := s.Lookup(scope, l.Attribute)
	if ValidateAttribute(v, l.Operator, want) {
		return true
	}
	// 可配置商品: 父商品不满足时再用选中的子商品校验
	if scope == ScopeProduct {
		if variant := s.Variant(); variant != nil {
			cv, _ := variant.Lookup(scope, l.Attribute)
			return ValidateAttribute(cv, l.Operator, want)
		}
	}
	return false
}

func itemsOf(s Subject) []Subject {
	if items := s.Items(); items != nil {
		return items
	}
	return []Subject{s}
}

// FormatID 是 ID 列表属性 (如 category_ids) 的统一字符串形式。
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
