package infrastructure

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "promo.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type seedProduct struct {
	model      ProductModel
	websites   []int64
	categories []int64
	attrs      map[string]string
	children   []int64
}

// seedCatalog 写入测试商品:
//
//	1 A-100  simple  100 (网站 2 价格 90)  网站 1,2  分类 3  color=red
//	2 B-50   simple  50                   网站 1    分类 4  color=blue material=cotton,wool
//	3 C-OFF  停用
//	4 CONF   configurable  子商品 5 (缺货) 和 6
//	5 CONF-R simple  30  color=red  缺货
//	6 CONF-G simple  40  color=green 分类 3
func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	products := []seedProduct{
		{
			model:      ProductModel{EntityID: 1, SKU: "A-100", TypeID: "simple", Status: productStatusEnabled, IsInStock: true, Price: dec("100")},
			websites:   []int64{1, 2},
			categories: []int64{3},
			attrs:      map[string]string{"color": "red"},
		},
		{
			model:      ProductModel{EntityID: 2, SKU: "B-50", TypeID: "simple", Status: productStatusEnabled, IsInStock: true, Price: dec("50")},
			websites:   []int64{1},
			categories: []int64{4},
			attrs:      map[string]string{"color": "blue", "material": "cotton,wool"},
		},
		{
			model:    ProductModel{EntityID: 3, SKU: "C-OFF", TypeID: "simple", Status: productStatusDisabled, IsInStock: true, Price: dec("10")},
			websites: []int64{1},
		},
		{
			model:    ProductModel{EntityID: 4, SKU: "CONF", TypeID: "configurable", Status: productStatusEnabled, IsInStock: true},
			websites: []int64{1},
			children: []int64{5, 6},
		},
		{
			model:    ProductModel{EntityID: 5, SKU: "CONF-R", TypeID: "simple", Status: productStatusEnabled, IsInStock: false, Price: dec("30")},
			websites: []int64{1},
			attrs:    map[string]string{"color": "red"},
		},
		{
			model:      ProductModel{EntityID: 6, SKU: "CONF-G", TypeID: "simple", Status: productStatusEnabled, IsInStock: true, Price: dec("40")},
			websites:   []int64{1},
			categories: []int64{3},
			attrs:      map[string]string{"color": "green"},
		},
	}
	for _, p := range products {
		p := p
		require.NoError(t, db.Create(&p.model).Error)
		for _, w := range p.websites {
			require.NoError(t, db.Create(&ProductWebsiteModel{ProductID: p.model.EntityID, WebsiteID: w}).Error)
		}
		for _, c := range p.categories {
			require.NoError(t, db.Create(&CategoryProductModel{CategoryID: c, ProductID: p.model.EntityID}).Error)
		}
		for code, v := range p.attrs {
			require.NoError(t, db.Create(&ProductAttributeModel{ProductID: p.model.EntityID, AttributeCode: code, Value: v}).Error)
		}
		for i, child := range p.children {
			require.NoError(t, db.Create(&ProductRelationModel{ParentID: p.model.EntityID, ChildID: child, Position: i}).Error)
		}
	}
	require.NoError(t, db.Create(&ProductWebsitePriceModel{ProductID: 1, WebsiteID: 2, Price: dec("90")}).Error)
}
