package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator 是规则里配置的比较运算符。
type Operator string

const (
	OpEq          Operator = "=="
	OpNeq         Operator = "!="
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpContains    Operator = "{}"
	OpNotContains Operator = "!{}"
	OpOneOf       Operator = "()"
	OpNotOneOf    Operator = "!()"
)

func (o Operator) isArrayOperator() bool {
	return o == OpOneOf || o == OpNotOneOf
}

func (o Operator) negated() bool {
	switch o {
	case OpNeq, OpGt, OpLt, OpNotContains, OpNotOneOf:
		return true
	}
	return false
}

// ValidateAttribute 用平台的比较语义判断 validated 是否满足 op/value。
// validated 可以是 nil、string、数值或 []string；value 通常来自 Leaf.ParsedValue。
func ValidateAttribute(validated any, op Operator, value any) bool {
	got := normalize(validated)
	want := normalize(value)

	var result bool
	switch op {
	case OpEq, OpNeq:
		if wantList, ok := want.([]string); ok {
			gotList, ok := got.([]string)
			if !ok {
				return false
			}
			result = intersects(wantList, gotList)
		} else if gotList, ok := got.([]string); ok {
			result = len(gotList) == 1 && looseEqual(gotList[0], scalar(want))
		} else {
			result = compareValues(scalar(got), scalar(want), true)
		}

	case OpLte, OpGt:
		s, ok := got.(string)
		if !ok {
			return false
		}
		result = compareOrdered(s, scalar(want)) <= 0

	case OpGte, OpLt:
		s, ok := got.(string)
		if !ok {
			return false
		}
		result = compareOrdered(s, scalar(want)) >= 0

	case OpContains, OpNotContains:
		wantList, wantIsList := want.([]string)
		gotList, gotIsList := got.([]string)
		gotScalar, gotIsScalar := got.(string)
		switch {
		case gotIsScalar && wantIsList:
			for _, item := range wantList {
				if strings.Contains(strings.ToLower(gotScalar), strings.ToLower(item)) {
					result = true
					break
				}
			}
		case wantIsList:
			if !gotIsList {
				return false
			}
			result = containsAll(gotList, wantList)
		case gotIsList:
			for _, g := range gotList {
				if looseEqual(g, scalar(want)) {
					result = true
					break
				}
			}
		default:
			result = compareValues(scalar(want), scalar(got), false)
		}

	case OpOneOf, OpNotOneOf:
		wantList := asList(want)
		if gotList, ok := got.([]string); ok {
			result = intersects(gotList, wantList)
		} else {
			for _, item := range wantList {
				if compareValues(scalar(got), item, true) {
					result = true
					break
				}
			}
		}

	default:
		return false
	}

	if op.negated() {
		result = !result
	}
	return result
}

// compareValues: strict 时大小写不敏感的相等 (两边都是数字时按数值比较)，
// 否则判断 subject 是否包含 pattern。
func compareValues(pattern, subject string, strict bool) bool {
	if strict {
		if a, ok := number(pattern); ok {
			if b, ok := number(subject); ok {
				return a == b
			}
		}
		return strings.EqualFold(pattern, subject)
	}
	return strings.Contains(strings.ToLower(subject), strings.ToLower(pattern))
}

func compareOrdered(a, b string) int {
	x, okA := number(a)
	y, okB := number(b)
	if okA && okB {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func looseEqual(a, b string) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return a == b
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func containsAll(haystack, needles []string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	}
	return fmt.Sprint(v)
}

func asList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case nil:
		return nil
	}
	return []string{scalar(v)}
}

// normalize 把数值、布尔、[]any 等转换成 string / []string，nil 保持 nil。
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, scalar(normalize(item)))
		}
		return out
	case []int64:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, strconv.FormatInt(item, 10))
		}
		return out
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func parseValue(raw any, list bool) any {
	v := normalize(raw)
	if !list {
		return v
	}
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return t
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return asList(v)
}
