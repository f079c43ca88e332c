package infrastructure

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/domain"
)

const (
	upsertChunkSize  = 500
	retryBaseBackoff = 50 * time.Millisecond

	mysqlErrDeadlock     = 1213
	mysqlErrLockWaitTime = 1205
)

// GormIndexStore 是 IndexStore 的 GORM 实现，写入按唯一键 upsert
type GormIndexStore struct {
	db      *gorm.DB
	retries int
}

// NewGormIndexStore retries 是死锁或锁等待超时时的重试次数
func NewGormIndexStore(db *gorm.DB, retries int) *GormIndexStore {
	if retries < 0 {
		retries = 0
	}
	return &GormIndexStore{db: db, retries: retries}
}

func (s *GormIndexStore) Upsert(ctx context.Context, rows []domain.IndexRow, builtAt int64) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]RuleProductModel, len(rows))
	for i, row := range rows {
		models[i] = toRuleProductModel(row, builtAt)
	}
	return s.withRetry(ctx, "upsert", func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}, {Name: "product_id"}, {Name: "website_id"}},
			DoUpdates: s.stampGuardedUpdates(builtAt),
		}).CreateInBatches(&models, upsertChunkSize).Error
	})
}

// stampGuardedUpdates 已有行的 built_at 更新时保留整行，时间戳只进不退。
// MySQL 按顺序求值 SET，built_at 必须放在最后。
func (s *GormIndexStore) stampGuardedUpdates(builtAt int64) []clause.Assignment {
	cols := []string{"rule_price", "product_sku", "built_at"}
	out := make([]clause.Assignment, len(cols))
	for i, col := range cols {
		out[i] = clause.Assignment{
			Column: clause.Column{Name: col},
			Value: gorm.Expr("CASE WHEN "+ruleProductTable+".built_at > ? THEN "+ruleProductTable+"."+col+
				" ELSE "+s.incoming(col)+" END", builtAt),
		}
	}
	return out
}

// incoming 引用冲突时待插入的值
func (s *GormIndexStore) incoming(col string) string {
	if s.db.Dialector.Name() == "mysql" {
		return "VALUES(" + col + ")"
	}
	return "excluded." + col
}

// Sweep 删除 scope 内 built_at 早于 before 的行
func (s *GormIndexStore) Sweep(ctx context.Context, scope domain.IndexScope, before int64) (int64, error) {
	var affected int64
	err := s.withRetry(ctx, "sweep", func() error {
		tx := s.db.WithContext(ctx).Where("built_at < ?", before)
		if len(scope.RuleIDs) > 0 {
			tx = tx.Where("rule_id IN ?", scope.RuleIDs)
		}
		if len(scope.ProductIDs) > 0 {
			tx = tx.Where("product_id IN ?", scope.ProductIDs)
		}
		res := tx.Delete(&RuleProductModel{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (s *GormIndexStore) Find(ctx context.Context, f domain.IndexFilter) ([]domain.IndexRow, error) {
	tx := s.db.WithContext(ctx).Where("website_id = ?", f.WebsiteID)
	if f.RuleID > 0 {
		tx = tx.Where("rule_id = ?", f.RuleID)
	}
	if f.ProductID > 0 {
		tx = tx.Where("product_id = ?", f.ProductID)
	}
	var models []RuleProductModel
	if err := tx.Order("rule_id, product_id, website_id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query promo_salesrule_product")
	}
	rows := make([]domain.IndexRow, len(models))
	for i := range models {
		rows[i] = toDomainIndexRow(&models[i])
	}
	return rows, nil
}

// withRetry 只重试死锁和锁等待超时，其他错误直接返回
func (s *GormIndexStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= s.retries || !isRetryable(err) {
			return errors.Wrapf(err, "index store %s", op)
		}
		backoff := retryBaseBackoff << attempt
		logger.Ctx(ctx).Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("retrying index write")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "index store %s", op)
		}
	}
}

func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTime
	}
	return false
}
