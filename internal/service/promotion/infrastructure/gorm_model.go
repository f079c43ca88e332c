package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesRuleModel 对应 salesrule 表，条件树以 JSON 存储
type SalesRuleModel struct {
	RuleID               int64  `gorm:"column:rule_id;primaryKey;autoIncrement"`
	Name                 string `gorm:"size:255"`
	Description          string `gorm:"type:text"`
	IsActive             bool   `gorm:"not null;default:false;index"`
	FromDate             *time.Time
	ToDate               *time.Time
	ConditionsSerialized string              `gorm:"type:text"`
	ActionsSerialized    string              `gorm:"type:text"`
	SimpleAction         string              `gorm:"size:32"`
	DiscountAmount       decimal.Decimal     `gorm:"type:decimal(12,4);not null;default:0"`
	DiscountQty          decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	DiscountStep         int64               `gorm:"not null;default:0"`
	StopRulesProcessing  bool                `gorm:"not null"`
	SortOrder            int                 `gorm:"not null;default:0"`
}

func (SalesRuleModel) TableName() string {
	return "salesrule"
}

// SalesRuleWebsiteModel 是规则和网站的关联
type SalesRuleWebsiteModel struct {
	RuleID    int64 `gorm:"column:rule_id;primaryKey;autoIncrement:false"`
	WebsiteID int64 `gorm:"column:website_id;primaryKey;autoIncrement:false"`
}

func (SalesRuleWebsiteModel) TableName() string {
	return "salesrule_website"
}

// SalesRuleCouponModel 规则的优惠码，IsPrimary 的那个作为规则的主优惠码
type SalesRuleCouponModel struct {
	CouponID  int64  `gorm:"column:coupon_id;primaryKey;autoIncrement"`
	RuleID    int64  `gorm:"column:rule_id;index"`
	Code      string `gorm:"size:255;uniqueIndex"`
	IsPrimary bool
}

func (SalesRuleCouponModel) TableName() string {
	return "salesrule_coupon"
}

// ProductModel 对应 catalog_product 表，Status 1 启用 2 停用
type ProductModel struct {
	EntityID       int64               `gorm:"column:entity_id;primaryKey;autoIncrement"`
	SKU            string              `gorm:"column:sku;size:64;index"`
	TypeID         string              `gorm:"column:type_id;size:32"`
	Status         int                 `gorm:"not null;default:1;index"`
	IsInStock      bool                `gorm:"not null"`
	AttributeSetID int64               `gorm:"not null;default:0"`
	Price          decimal.Decimal     `gorm:"type:decimal(12,4);not null;default:0"`
	SpecialPrice   decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	Weight         decimal.Decimal     `gorm:"type:decimal(12,4);not null;default:0"`
}

func (ProductModel) TableName() string {
	return "catalog_product"
}

const (
	productStatusEnabled  = 1
	productStatusDisabled = 2
)

type ProductWebsiteModel struct {
	ProductID int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	WebsiteID int64 `gorm:"column:website_id;primaryKey;autoIncrement:false"`
}

func (ProductWebsiteModel) TableName() string {
	return "catalog_product_website"
}

// ProductWebsitePriceModel 是网站作用域的价格
type ProductWebsitePriceModel struct {
	ProductID    int64               `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	WebsiteID    int64               `gorm:"column:website_id;primaryKey;autoIncrement:false"`
	Price        decimal.Decimal     `gorm:"type:decimal(12,4);not null"`
	SpecialPrice decimal.NullDecimal `gorm:"type:decimal(12,4)"`
}

func (ProductWebsitePriceModel) TableName() string {
	return "catalog_product_website_price"
}

// ProductAttributeModel 是 EAV 属性值，多选属性以逗号分隔
type ProductAttributeModel struct {
	ProductID     int64  `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	AttributeCode string `gorm:"column:attribute_code;primaryKey;size:255"`
	Value         string `gorm:"type:text"`
}

func (ProductAttributeModel) TableName() string {
	return "catalog_product_attribute"
}

type CategoryProductModel struct {
	CategoryID int64 `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	ProductID  int64 `gorm:"column:product_id;primaryKey;autoIncrement:false;index"`
	Position   int
}

func (CategoryProductModel) TableName() string {
	return "catalog_category_product"
}

// ProductRelationModel 是可配置商品和子商品的关联
type ProductRelationModel struct {
	ParentID int64 `gorm:"column:parent_id;primaryKey;autoIncrement:false"`
	ChildID  int64 `gorm:"column:child_id;primaryKey;autoIncrement:false;index"`
	Position int
}

func (ProductRelationModel) TableName() string {
	return "catalog_product_relation"
}

// RuleProductModel 是折扣索引表的一行
type RuleProductModel struct {
	RuleProductID int64           `gorm:"column:rule_product_id;primaryKey;autoIncrement"`
	RuleID        int64           `gorm:"column:rule_id;not null;uniqueIndex:idx_rule_product_website,priority:1"`
	ProductID     int64           `gorm:"column:product_id;not null;uniqueIndex:idx_rule_product_website,priority:2;index:idx_product_id"`
	WebsiteID     int64           `gorm:"column:website_id;type:smallint;not null;uniqueIndex:idx_rule_product_website,priority:3;index:idx_website_id"`
	RulePrice     decimal.Decimal `gorm:"column:rule_price;type:decimal(12,4);not null;default:0"`
	ProductSKU    string          `gorm:"column:product_sku;size:64"`
	BuiltAt       int64           `gorm:"column:built_at;not null;default:0;index:idx_built_at"`
}

const ruleProductTable = "promo_salesrule_product"

func (RuleProductModel) TableName() string {
	return ruleProductTable
}

// IndexerStateModel 记录索引是否有效，Version 每次失效时加一
type IndexerStateModel struct {
	IndexerID string `gorm:"column:indexer_id;primaryKey;size:64"`
	Status    string `gorm:"size:16;not null"`
	Version   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (IndexerStateModel) TableName() string {
	return "promo_indexer_state"
}

// AllModels 返回需要迁移的全部表
func AllModels() []any {
	return []any{
		&SalesRuleModel{},
		&SalesRuleWebsiteModel{},
		&SalesRuleCouponModel{},
		&ProductModel{},
		&ProductWebsiteModel{},
		&ProductWebsitePriceModel{},
		&ProductAttributeModel{},
		&CategoryProductModel{},
		&ProductRelationModel{},
		&RuleProductModel{},
		&IndexerStateModel{},
	}
}
