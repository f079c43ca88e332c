package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"promoindex/internal/pkg/logger"
)

// OpenMySQL 打开连接池并 ping 一次
func OpenMySQL(ctx context.Context, dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, errors.Wrap(err, "ping mysql")
	}
	logger.Ctx(ctx).Info().Msg("connected to mysql")
	return db, nil
}

// Migrate 创建或更新所有表
func Migrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(AllModels()...), "auto migrate")
}
