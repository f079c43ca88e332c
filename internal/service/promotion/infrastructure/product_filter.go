package infrastructure

import (
	"strconv"
	"strings"

	"promoindex/internal/service/promotion/domain/condition"
)

// 商品主表上的属性，其余属性从 catalog_product_attribute 读取
var staticColumns = map[string]string{
	"sku":              "sku",
	"type_id":          "type_id",
	"attribute_set_id": "attribute_set_id",
	"price":            "price",
	"special_price":    "special_price",
	"weight":           "weight",
	"status":           "status",
}

// 数值列上的范围比较才下推。文本值 (包括缺失的 EAV 属性读出的空串) 在校验时按字符串比较。
var numericColumns = map[string]bool{
	"attribute_set_id": true,
	"price":            true,
	"special_price":    true,
	"weight":           true,
	"status":           true,
}

// filterClause 把商品过滤翻译成 WHERE 子句，owner 是 catalog_product 在外层查询里的名字。
//
// 翻译结果只能比条件校验更宽: 取反运算符和文本列上的范围比较不下推，
// 可配置商品的子商品满足条件时父商品同样保留。返回 false 表示该过滤不下推。
func filterClause(owner string, f condition.ProductFilter) (string, []any, bool) {
	self, args, ok := ownPredicate(owner, f)
	if !ok {
		return "", nil, false
	}
	child, childArgs, _ := ownPredicate("c", f)
	sql := "(" + self + " OR EXISTS (SELECT 1 FROM catalog_product_relation r" +
		" JOIN catalog_product c ON c.entity_id = r.child_id" +
		" WHERE r.parent_id = " + owner + ".entity_id AND " + child + "))"
	return sql, append(args, childArgs...), true
}

func ownPredicate(owner string, f condition.ProductFilter) (string, []any, bool) {
	if f.Kind == condition.FilterCategory {
		return categoryPredicate(owner, f)
	}
	if col, ok := staticColumns[f.Attribute]; ok {
		return valuePredicate(owner+"."+col, numericColumns[col], f)
	}
	pred, args, ok := valuePredicate("a.value", false, f)
	if !ok {
		return "", nil, false
	}
	// 多选属性以逗号分隔存储，留给条件校验判断
	sql := "EXISTS (SELECT 1 FROM catalog_product_attribute a WHERE a.product_id = " + owner +
		".entity_id AND a.attribute_code = ? AND (" + pred + " OR a.value LIKE ?))"
	return sql, append(append([]any{f.Attribute}, args...), "%,%"), true
}

func categoryPredicate(owner string, f condition.ProductFilter) (string, []any, bool) {
	if f.Operator != condition.FilterIn && f.Operator != condition.FilterEq {
		return "", nil, false
	}
	values := filterValues(f.Value)
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return "", nil, false
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil, false
	}
	sql := "EXISTS (SELECT 1 FROM catalog_category_product cc WHERE cc.product_id = " + owner +
		".entity_id AND cc.category_id IN ?)"
	return sql, []any{ids}, true
}

// valuePredicate 比较时忽略大小写，数值同时按数值比较。
// 值里有空串时不下推: 缺失的属性在校验时读作空串。
func valuePredicate(col string, numericCol bool, f condition.ProductFilter) (string, []any, bool) {
	values := filterValues(f.Value)
	if len(values) == 0 {
		return "", nil, false
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return "", nil, false
		}
	}
	lower := "LOWER(" + col + ")"
	cast := "CAST(" + col + " AS DECIMAL(20,6))"

	switch f.Operator {
	case condition.FilterEq, condition.FilterIn:
		if f.Source == condition.OpContains {
			return containsPredicate(lower, values)
		}
		lowered := make([]string, len(values))
		nums := make([]float64, 0, len(values))
		for i, v := range values {
			lowered[i] = strings.ToLower(v)
			if n, ok := numeric(v); ok {
				nums = append(nums, n)
			}
		}
		if len(nums) > 0 {
			return "(" + lower + " IN ? OR " + cast + " IN ?)", []any{lowered, nums}, true
		}
		return lower + " IN ?", []any{lowered}, true

	case condition.FilterGt, condition.FilterGteq, condition.FilterLt, condition.FilterLteq:
		if !numericCol {
			return "", nil, false
		}
		n, ok := numeric(values[0])
		if !ok {
			return "", nil, false
		}
		return cast + " " + sqlOperator[f.Operator] + " ?", []any{n}, true
	}
	return "", nil, false
}

// containsPredicate 对应 {}: 属性值包含任意一个子串
func containsPredicate(lower string, values []string) (string, []any, bool) {
	parts := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		parts[i] = lower + " LIKE ? ESCAPE '!'"
		args[i] = "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, true
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

var sqlOperator = map[condition.FilterOperator]string{
	condition.FilterGt:   ">",
	condition.FilterGteq: ">=",
	condition.FilterLt:   "<",
	condition.FilterLteq: "<=",
}

func filterValues(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	}
	return nil
}

func numeric(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}
