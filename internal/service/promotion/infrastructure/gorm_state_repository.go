package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promoindex/internal/service/promotion/domain"
)

// SalesRuleIndexerID 是折扣索引在 promo_indexer_state 中的主键
const SalesRuleIndexerID = "salesrule_product"

// GormIndexStateRepository 是 IndexState 的 GORM 实现
type GormIndexStateRepository struct {
	db        *gorm.DB
	indexerID string
}

func NewGormIndexStateRepository(db *gorm.DB) *GormIndexStateRepository {
	return &GormIndexStateRepository{db: db, indexerID: SalesRuleIndexerID}
}

// Invalidate 标记为失效并递增版本号，没有记录时插入版本 1
func (r *GormIndexStateRepository) Invalidate(ctx context.Context) error {
	m := IndexerStateModel{
		IndexerID: r.indexerID,
		Status:    string(domain.IndexInvalid),
		Version:   1,
		UpdatedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "indexer_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":     string(domain.IndexInvalid),
			"version":    gorm.Expr("promo_indexer_state.version + 1"),
			"updated_at": m.UpdatedAt,
		}),
	}).Create(&m).Error
	return errors.Wrap(err, "invalidate index state")
}

// Snapshot 没有记录时视为失效，新部署的索引需要一次全量重建
func (r *GormIndexStateRepository) Snapshot(ctx context.Context) (domain.IndexStateSnapshot, error) {
	var m IndexerStateModel
	err := r.db.WithContext(ctx).Where("indexer_id = ?", r.indexerID).Limit(1).Find(&m).Error
	if err != nil {
		return domain.IndexStateSnapshot{}, errors.Wrap(err, "load index state")
	}
	if m.IndexerID == "" {
		return domain.IndexStateSnapshot{Status: domain.IndexInvalid}, nil
	}
	return domain.IndexStateSnapshot{Status: domain.IndexStatus(m.Status), Version: m.Version}, nil
}

// MarkValid 只在版本号未变化时生效
func (r *GormIndexStateRepository) MarkValid(ctx context.Context, version int64) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&IndexerStateModel{}).
		Where("indexer_id = ? AND version = ?", r.indexerID, version).
		Updates(map[string]any{"status": string(domain.IndexValid), "updated_at": now})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark index valid")
	}
	if res.RowsAffected > 0 || version != 0 {
		return res.RowsAffected > 0, nil
	}

	// 从未失效过的索引第一次重建完成
	res = r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&IndexerStateModel{
		IndexerID: r.indexerID,
		Status:    string(domain.IndexValid),
		UpdatedAt: now,
	})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark index valid")
	}
	return res.RowsAffected > 0, nil
}
