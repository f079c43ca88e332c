// cmd/promotion-indexer/main.go
package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"promoindex/internal/pkg/bootstrap"
	"promoindex/internal/pkg/logger"
	"promoindex/internal/pkg/mq"
	"promoindex/internal/pkg/redis"
	"promoindex/internal/service/promotion/application"
	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/discount"
	"promoindex/internal/service/promotion/infrastructure"
	"promoindex/internal/service/promotion/interfaces"
	"promoindex/internal/zookeeper"
)

const serviceName = "promotion-indexer"

// main 是组装根：创建并组装所有依赖，然后启动服务
func main() {
	ctx := context.Background()
	cfg, err := bootstrap.Init()
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("load config")
	}
	tracer := otel.Tracer(serviceName)

	// 1. 存储
	db, err := infrastructure.OpenMySQL(ctx, cfg.Infra.MySQL.DSN(), cfg.Infra.MySQL.MaxOpenConns, cfg.Infra.MySQL.MaxIdleConns)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("connect mysql")
	}
	if err := infrastructure.Migrate(db); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("migrate schema")
	}
	var closers []func() error
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB.Close)
	}

	ruleRepo := infrastructure.NewGormRuleRepository(db)
	productRepo := infrastructure.NewGormProductRepository(db)
	store := infrastructure.NewGormIndexStore(db, cfg.Indexer.FlushRetries)
	state := infrastructure.NewGormIndexStateRepository(db)
	metrics := infrastructure.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	// 2. 可选组件：Redis 查询缓存和 ZooKeeper 分布式锁
	opts := []application.IndexBuilderOption{
		application.WithMetrics(metrics),
		application.WithSimulator(discount.NewSimulator(discount.WithPrecision(cfg.Indexer.CurrencyPrecision))),
	}
	var cache domain.ReadCache = application.NopCache{}
	if rc := cfg.Infra.Redis; rc.Addrs != "" {
		rdb, err := redis.NewClient(rc.Addrs, rc.Password, rc.DB)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("connect redis")
		}
		closers = append(closers, rdb.Close)
		cache = infrastructure.NewRedisQueryCache(rdb, cfg.Indexer.QueryCacheTTL)
		opts = append(opts, application.WithReadCache(cache))
	}
	if zc := cfg.Infra.Zookeeper; len(zc.Servers) > 0 {
		conn, err := zookeeper.Connect(ctx, zc.Servers, zc.SessionTimeout)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("connect zookeeper")
		}
		closers = append(closers, func() error { conn.Close(); return nil })
		opts = append(opts, application.WithLocker(infrastructure.NewZKLocker(conn, zc.LockRoot)))
	}

	// 3. 应用服务
	builder := application.NewIndexBuilder(ruleRepo, productRepo, store, state, tracer, application.IndexerConfig{
		BatchSize:          cfg.Indexer.BatchSize,
		IndexZeroDiscounts: cfg.Indexer.IndexZeroDiscounts,
	}, opts...)
	triggers := application.NewTriggerHandler(builder, state, metrics, tracer)
	queries := application.NewSalesRuleQueryService(ruleRepo, store, cache, metrics, tracer)
	scheduler := application.NewStaleIndexScheduler(builder, cfg.Indexer.StalePollInterval)

	// 4. 驱动适配器：HTTP、实体变更消费者、失效索引调度
	handler := interfaces.NewSalesRuleHandler(queries, builder, triggers, state, cfg.Indexer.DefaultWebsiteID)
	runners := []bootstrap.Runner{scheduler.Run}
	if kc := cfg.Infra.Kafka; len(kc.Brokers) > 0 {
		dlt := mq.NewKafkaWriter(kc.Brokers, kc.DLTTopic)
		closers = append(closers, dlt.Close)
		reader := mq.NewKafkaReader(kc.Brokers, kc.EventsTopic, kc.GroupID)
		consumer := interfaces.NewEntityEventConsumer(reader, triggers, mq.NewFailureHandler(dlt), tracer)
		runners = append(runners, consumer.Run)
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
		Cleanup: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i](); err != nil {
					logger.Ctx(ctx).Warn().Err(err).Msg("close resource")
				}
			}
		},
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
}
