// cmd/promotion-reindex 手动重建规则商品折扣索引。
//
// 用法:
//
//	promotion-reindex -mode full
//	promotion-reindex -mode rules -ids 3,5
//	promotion-reindex -mode products -ids 101 -server http://promotion-indexer:8085
//
// 指定 -server 时调用运行中服务的管理接口，否则直接连数据库重建。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"promoindex/internal/pkg/bootstrap"
	"promoindex/internal/pkg/httpclient"
	"promoindex/internal/pkg/logger"
	"promoindex/internal/pkg/redis"
	"promoindex/internal/pkg/tracing"
	"promoindex/internal/service/promotion/application"
	"promoindex/internal/service/promotion/domain/discount"
	"promoindex/internal/service/promotion/infrastructure"
	"promoindex/internal/zookeeper"
)

const serviceName = "promotion-reindex"

func main() {
	mode := flag.String("mode", application.OpFull, "full, rules or products")
	idList := flag.String("ids", "", "comma separated rule or product ids")
	server := flag.String("server", "", "base url of a running indexer; empty rebuilds locally")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall timeout")
	flag.Parse()

	ids, err := parseIDs(*idList)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *mode != application.OpFull && len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "-ids is required for mode %s\n", *mode)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg, err := bootstrap.Init()
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("load config")
	}
	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("init tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var report *application.RebuildReport
	if *server != "" {
		report, err = remote(ctx, *server, *mode, ids)
	} else {
		report, err = local(ctx, cfg, *mode, ids)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("mode", *mode).Msg("reindex failed")
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func remote(ctx context.Context, server, mode string, ids []int64) (*application.RebuildReport, error) {
	client := httpclient.NewClient(otel.Tracer(serviceName))
	url := strings.TrimRight(server, "/") + "/admin/reindex/" + mode
	var in any
	if mode != application.OpFull {
		in = application.ReindexRequest{IDs: ids}
	}
	var report application.RebuildReport
	if err := client.PostJSON(ctx, url, in, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func local(ctx context.Context, cfg *bootstrap.Config, mode string, ids []int64) (*application.RebuildReport, error) {
	db, err := infrastructure.OpenMySQL(ctx, cfg.Infra.MySQL.DSN(), cfg.Infra.MySQL.MaxOpenConns, cfg.Infra.MySQL.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := infrastructure.Migrate(db); err != nil {
		return nil, err
	}

	opts := []application.IndexBuilderOption{
		application.WithSimulator(discount.NewSimulator(discount.WithPrecision(cfg.Indexer.CurrencyPrecision))),
	}
	// 重建完成后让运行中服务的查询缓存失效
	if rc := cfg.Infra.Redis; rc.Addrs != "" {
		rdb, err := redis.NewClient(rc.Addrs, rc.Password, rc.DB)
		if err != nil {
			return nil, err
		}
		defer rdb.Close()
		opts = append(opts, application.WithReadCache(infrastructure.NewRedisQueryCache(rdb, cfg.Indexer.QueryCacheTTL)))
	}
	// 与运行中的服务共用同一把全量重建锁
	if zc := cfg.Infra.Zookeeper; len(zc.Servers) > 0 {
		conn, err := zookeeper.Connect(ctx, zc.Servers, zc.SessionTimeout)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		opts = append(opts, application.WithLocker(infrastructure.NewZKLocker(conn, zc.LockRoot)))
	}

	builder := application.NewIndexBuilder(
		infrastructure.NewGormRuleRepository(db),
		infrastructure.NewGormProductRepository(db),
		infrastructure.NewGormIndexStore(db, cfg.Indexer.FlushRetries),
		infrastructure.NewGormIndexStateRepository(db),
		otel.Tracer(serviceName),
		application.IndexerConfig{BatchSize: cfg.Indexer.BatchSize, IndexZeroDiscounts: cfg.Indexer.IndexZeroDiscounts},
		opts...,
	)

	switch mode {
	case application.OpFull:
		return builder.RebuildFull(ctx)
	case application.OpRules:
		return builder.RebuildForRules(ctx, ids)
	case application.OpProducts:
		return builder.RebuildForProducts(ctx, ids)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}
