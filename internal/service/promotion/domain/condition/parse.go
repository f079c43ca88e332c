package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawNode 是条件树的序列化格式。
//
//	{"type":"combine","aggregator":"all","value":true,"conditions":[
//	    {"type":"product","attribute":"sku","operator":"==","value":"SKU-1"}]}
type rawNode struct {
	Type       string            `json:"type"`
	Aggregator string            `json:"aggregator,omitempty"`
	Attribute  string            `json:"attribute,omitempty"`
	Operator   string            `json:"operator,omitempty"`
	Value      json.RawMessage   `json:"value,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
}

// 平台原生的条件类名，导入已有规则时按别名处理。
var typeAliases = map[string]string{
	`Magento\SalesRule\Model\Rule\Condition\Combine`:           string(KindCombine),
	`Magento\SalesRule\Model\Rule\Condition\Product\Combine`:   string(KindCombine),
	`Magento\SalesRule\Model\Rule\Condition\Product\Found`:     string(KindFound),
	`Magento\SalesRule\Model\Rule\Condition\Product\Subselect`: string(KindSubselect),
	`Magento\SalesRule\Model\Rule\Condition\Product`:           string(LeafProduct),
	`Magento\SalesRule\Model\Rule\Condition\Address`:           string(LeafAddress),
	`Magento\CustomerSegment\Model\Segment\Condition\Segment`:  string(LeafCustomer),
}

const maxDepth = 32

// Parse 解析序列化的条件树。空输入返回一个空的 ALL 组合 (恒为真)。
func Parse(data []byte) (Node, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return NewAll(), nil
	}
	return parseNode(data, 0)
}

// NewAll 创建 "ALL 为 TRUE" 的组合节点。
func NewAll(children ...Node) *Combine {
	return &Combine{Kind: KindCombine, Aggregator: AggregatorAll, Value: true, Children: children}
}

// NewAny 创建 "ANY 为 TRUE" 的组合节点。
func NewAny(children ...Node) *Combine {
	return &Combine{Kind: KindCombine, Aggregator: AggregatorAny, Value: true, Children: children}
}

// NewProductLeaf 创建商品属性条件。
func NewProductLeaf(attribute string, op Operator, value any) *Leaf {
	return &Leaf{Type: LeafProduct, Attribute: attribute, Operator: op, Value: value}
}

// NewAddressLeaf 创建地址 (购物车汇总) 条件。
func NewAddressLeaf(attribute string, op Operator, value any) *Leaf {
	return &Leaf{Type: LeafAddress, Attribute: attribute, Operator: op, Value: value}
}

func parseNode(data []byte, depth int) (Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("condition tree deeper than %d levels", maxDepth)
	}
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	typ := raw.Type
	if alias, ok := typeAliases[typ]; ok {
		typ = alias
	}

	value, err := decodeValue(raw.Value)
	if err != nil {
		return nil, err
	}

	switch CombineKind(typ) {
	case KindCombine, KindFound, KindSubselect:
		c := &Combine{
			Kind:       CombineKind(typ),
			Aggregator: AggregatorAll,
			Value:      true,
		}
		if strings.EqualFold(raw.Aggregator, string(AggregatorAny)) {
			c.Aggregator = AggregatorAny
		}
		if c.Kind == KindSubselect {
			c.Attribute = raw.Attribute
			c.Operator = Operator(raw.Operator)
			c.Threshold = value
		} else if value != nil {
			c.Value = truthy(value)
		}
		for _, child := range raw.Conditions {
			n, err := parseNode(child, depth+1)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, n)
		}
		return c, nil
	}

	switch LeafType(typ) {
	case LeafProduct, LeafAddress, LeafCustomer:
		if raw.Attribute == "" {
			return nil, fmt.Errorf("%s condition without attribute", typ)
		}
		return &Leaf{
			Type:      LeafType(typ),
			Attribute: raw.Attribute,
			Operator:  Operator(raw.Operator),
			Value:     value,
		}, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", raw.Type)
}

func decodeValue(msg json.RawMessage) (any, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, fmt.Errorf("decode condition value: %w", err)
	}
	return v, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	}
	return v != nil
}

// Marshal 把条件树序列化回存储格式。
func Marshal(n Node) ([]byte, error) {
	return json.Marshal(toRaw(n))
}

type encodedNode struct {
	Type       string         `json:"type"`
	Aggregator string         `json:"aggregator,omitempty"`
	Attribute  string         `json:"attribute,omitempty"`
	Operator   string         `json:"operator,omitempty"`
	Value      any            `json:"value,omitempty"`
	Conditions []*encodedNode `json:"conditions,omitempty"`
}

func toRaw(n Node) *encodedNode {
	switch t := n.(type) {
	case *Combine:
		out := &encodedNode{Type: string(t.Kind), Aggregator: string(t.Aggregator)}
		if t.Kind == KindSubselect {
			out.Attribute = t.Attribute
			out.Operator = string(t.Operator)
			out.Value = t.Threshold
		} else {
			out.Value = t.Value
		}
		for _, child := range t.Children {
			out.Conditions = append(out.Conditions, toRaw(child))
		}
		return out
	case *Leaf:
		return &encodedNode{Type: string(t.Type), Attribute: t.Attribute, Operator: string(t.Operator), Value: t.Value}
	}
	return nil
}
