package infrastructure

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"promoindex/internal/service/promotion/domain"
)

const defaultProductBatchSize = 500

// GormProductRepository 是 ProductSource 的 GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// ListEnabledProducts 按 entity_id 分批返回启用的商品，每批都带上网站、价格、分类、属性和子商品
func (r *GormProductRepository) ListEnabledProducts(ctx context.Context, q domain.ProductQuery, fn func([]*domain.Product) error) error {
	size := q.BatchSize
	if size <= 0 {
		size = defaultProductBatchSize
	}

	const owner = "catalog_product"
	tx := r.db.WithContext(ctx).Model(&ProductModel{}).Where(owner+".status = ?", productStatusEnabled)
	if len(q.IDs) > 0 {
		tx = tx.Where(owner+".entity_id IN ?", q.IDs)
	}
	for _, f := range q.Filters {
		if sql, args, ok := filterClause(owner, f); ok {
			tx = tx.Where(sql, args...)
		}
	}

	var models []ProductModel
	res := tx.FindInBatches(&models, size, func(_ *gorm.DB, _ int) error {
		products := make([]*domain.Product, len(models))
		for i := range models {
			products[i] = toDomainProduct(&models[i])
		}
		if err := r.hydrate(ctx, products, true); err != nil {
			return err
		}
		return fn(products)
	})
	return res.Error
}

// hydrate 填充关联数据，withChildren 时同时加载可配置商品的子商品
func (r *GormProductRepository) hydrate(ctx context.Context, products []*domain.Product, withChildren bool) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	byID := make(map[int64]*domain.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
	}
	db := r.db.WithContext(ctx)

	var websites []ProductWebsiteModel
	if err := db.Where("product_id IN ?", ids).Order("product_id, website_id").Find(&websites).Error; err != nil {
		return errors.Wrap(err, "query catalog_product_website")
	}
	for _, w := range websites {
		byID[w.ProductID].WebsiteIDs = append(byID[w.ProductID].WebsiteIDs, w.WebsiteID)
	}

	var prices []ProductWebsitePriceModel
	if err := db.Where("product_id IN ?", ids).Find(&prices).Error; err != nil {
		return errors.Wrap(err, "query catalog_product_website_price")
	}
	for _, wp := range prices {
		p := byID[wp.ProductID]
		if p.WebsitePrices == nil {
			p.WebsitePrices = make(map[int64]domain.WebsitePrice)
		}
		p.WebsitePrices[wp.WebsiteID] = domain.WebsitePrice{Price: wp.Price, SpecialPrice: wp.SpecialPrice}
	}

	var categories []CategoryProductModel
	if err := db.Where("product_id IN ?", ids).Order("product_id, category_id").Find(&categories).Error; err != nil {
		return errors.Wrap(err, "query catalog_category_product")
	}
	for _, c := range categories {
		byID[c.ProductID].CategoryIDs = append(byID[c.ProductID].CategoryIDs, c.CategoryID)
	}

	var attrs []ProductAttributeModel
	if err := db.Where("product_id IN ?", ids).Find(&attrs).Error; err != nil {
		return errors.Wrap(err, "query catalog_product_attribute")
	}
	for _, a := range attrs {
		p := byID[a.ProductID]
		if p.Attributes == nil {
			p.Attributes = make(map[string]string)
		}
		p.Attributes[a.AttributeCode] = a.Value
	}

	if !withChildren {
		return nil
	}
	return r.loadChildren(ctx, products, byID)
}

func (r *GormProductRepository) loadChildren(ctx context.Context, products []*domain.Product, byID map[int64]*domain.Product) error {
	var parentIDs []int64
	for _, p := range products {
		if p.TypeID == domain.ProductConfigurable {
			parentIDs = append(parentIDs, p.ID)
		}
	}
	if len(parentIDs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)

	var relations []ProductRelationModel
	if err := db.Where("parent_id IN ?", parentIDs).Order("parent_id, position, child_id").Find(&relations).Error; err != nil {
		return errors.Wrap(err, "query catalog_product_relation")
	}
	if len(relations) == 0 {
		return nil
	}
	childIDs := make([]int64, 0, len(relations))
	for _, rel := range relations {
		childIDs = append(childIDs, rel.ChildID)
	}
	slices.Sort(childIDs)
	childIDs = slices.Compact(childIDs)

	var models []ProductModel
	if err := db.Where("entity_id IN ?", childIDs).Find(&models).Error; err != nil {
		return errors.Wrap(err, "query child products")
	}
	children := make([]*domain.Product, len(models))
	childByID := make(map[int64]*domain.Product, len(models))
	for i := range models {
		children[i] = toDomainProduct(&models[i])
		childByID[children[i].ID] = children[i]
	}
	if err := r.hydrate(ctx, children, false); err != nil {
		return err
	}

	for _, rel := range relations {
		if child, ok := childByID[rel.ChildID]; ok {
			parent := byID[rel.ParentID]
			parent.Children = append(parent.Children, child)
		}
	}
	return nil
}
