package domain

import "github.com/pkg/errors"

var (
	// ErrEmptyIDs 表示按 ID 重建时传入了空列表。
	ErrEmptyIDs = errors.New("could not rebuild index for empty entity array")
	// ErrUndefinedEntity 表示单行重建时实体 ID 未定义。
	ErrUndefinedEntity = errors.New("could not rebuild index for undefined entity")
	// ErrRuleNotFound 表示规则不存在。
	ErrRuleNotFound = errors.New("sales rule not found")
	// ErrUnknownAction 表示没有为规则的折扣方式注册计算器。
	ErrUnknownAction = errors.New("unknown discount action")
	// ErrInvalidCondition 表示规则保存的条件树无法解析。
	ErrInvalidCondition = errors.New("invalid rule condition")
	// ErrInvalidArgument 表示请求参数不合法。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownEvent 表示无法识别的实体变更消息。
	ErrUnknownEvent = errors.New("unknown entity event")
)
