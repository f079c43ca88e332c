package domain

import "time"

// EntityEventType 是会影响折扣索引的实体变更类型。
type EntityEventType string

const (
	EventProductSaved    EntityEventType = "product_saved"
	EventCategorySaved   EntityEventType = "category_saved"
	EventCategoryDeleted EntityEventType = "category_deleted"
	EventRuleSaved       EntityEventType = "rule_saved"
	EventWebsiteSaved    EntityEventType = "website_saved"
	EventWebsiteDeleted  EntityEventType = "website_deleted"
)

// EntityEvent 是宿主平台发布的实体变更消息。
type EntityEvent struct {
	EventID    string          `json:"eventId"`
	Type       EntityEventType `json:"type"`
	EntityID   int64           `json:"entityId,omitempty"`
	MassUpdate bool            `json:"massUpdate,omitempty"`
	// AffectedProductIDs 分类保存时是关联发生变化的商品；
	// 商品保存时是包含该商品的可配置父商品，父商品按子商品计价，需要一起重建。
	AffectedProductIDs []int64   `json:"affectedProductIds,omitempty"`
	OccurredAt         time.Time `json:"occurredAt"`
}
