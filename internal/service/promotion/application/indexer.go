package application

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
	"promoindex/internal/service/promotion/domain/discount"
)

const (
	OpFull     = "full"
	OpRules    = "rules"
	OpProducts = "products"

	// DefaultBatchSize 是一次写入索引的行数上限。
	DefaultBatchSize = 1000

	fullRebuildLock = "promo-salesrule-index-full"
)

// Rebuilder 是索引重建的三个入口，触发器和调度器只依赖这个接口。
type Rebuilder interface {
	RebuildFull(ctx context.Context) (*RebuildReport, error)
	RebuildForRules(ctx context.Context, ruleIDs []int64) (*RebuildReport, error)
	RebuildForProducts(ctx context.Context, productIDs []int64) (*RebuildReport, error)
}

// IndexerConfig 是索引构建的可调参数。
type IndexerConfig struct {
	BatchSize int
	// IndexZeroDiscounts 为 true 时，计算结果为 0 的折扣也写入索引。
	IndexZeroDiscounts bool
}

// RebuildReport 汇总一次重建。
type RebuildReport struct {
	RunID              string        `json:"run_id"`
	Operation          string        `json:"operation"`
	Rules              int           `json:"rules"`
	Candidates         int           `json:"candidates"`
	Simulations        int           `json:"simulations"`
	RowsWritten        int           `json:"rows_written"`
	RowsSwept          int64         `json:"rows_swept"`
	ZeroDiscounts      int           `json:"zero_discounts"`
	Failures           int           `json:"failures"`
	PrefilterFallbacks int           `json:"prefilter_fallbacks"`
	Duration           time.Duration `json:"duration"`
}

// IndexBuilder 计算 (规则, 商品, 网站) 的折扣并维护索引表。
//
// 写入是按唯一键的 upsert，每次运行给写入的行打上运行开始时间戳，
// 全部批次写完后再清除作用域内时间戳更早的行，读方不会看到中途缺失的行。
type IndexBuilder struct {
	rules     domain.RuleSource
	products  domain.ProductSource
	store     domain.IndexStore
	state     domain.IndexState
	locker    domain.Locker
	cache     domain.ReadCache
	simulator *discount.Simulator
	metrics   Metrics
	tracer    trace.Tracer
	cfg       IndexerConfig
	now       func() time.Time
}

// IndexBuilderOption 配置 IndexBuilder 的可选依赖。
type IndexBuilderOption func(*IndexBuilder)

func WithLocker(l domain.Locker) IndexBuilderOption {
	return func(b *IndexBuilder) { b.locker = l }
}

func WithReadCache(c domain.ReadCache) IndexBuilderOption {
	return func(b *IndexBuilder) { b.cache = c }
}

func WithMetrics(m Metrics) IndexBuilderOption {
	return func(b *IndexBuilder) { b.metrics = m }
}

func WithSimulator(s *discount.Simulator) IndexBuilderOption {
	return func(b *IndexBuilder) { b.simulator = s }
}

func WithClock(now func() time.Time) IndexBuilderOption {
	return func(b *IndexBuilder) { b.now = now }
}

// NewIndexBuilder 创建索引构建器。未配置的锁、缓存和指标使用进程内实现。
func NewIndexBuilder(
	rules domain.RuleSource,
	products domain.ProductSource,
	store domain.IndexStore,
	state domain.IndexState,
	tracer trace.Tracer,
	cfg IndexerConfig,
	opts ...IndexBuilderOption,
) *IndexBuilder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	b := &IndexBuilder{
		rules:     rules,
		products:  products,
		store:     store,
		state:     state,
		locker:    NewLocalLocker(),
		cache:     NopCache{},
		simulator: discount.NewSimulator(),
		metrics:   NopMetrics{},
		tracer:    tracer,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RebuildFull 用所有启用的规则和所有启用的商品重建整张索引，不做预筛选。
// 同一时间只有一个全量重建在运行。
func (b *IndexBuilder) RebuildFull(ctx context.Context) (*RebuildReport, error) {
	report, _, err := b.rebuildFull(ctx, false)
	return report, err
}

// RebuildIfStale 在索引被标记为失效时执行全量重建，rebuilt 表示是否真的重建了。
func (b *IndexBuilder) RebuildIfStale(ctx context.Context) (report *RebuildReport, rebuilt bool, err error) {
	return b.rebuildFull(ctx, true)
}

func (b *IndexBuilder) rebuildFull(ctx context.Context, onlyIfStale bool) (*RebuildReport, bool, error) {
	unlock, err := b.locker.Lock(ctx, fullRebuildLock)
	if err != nil {
		return nil, false, fmt.Errorf("acquire full rebuild lock: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release full rebuild lock")
		}
	}()

	snap, err := b.state.Snapshot(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read index state: %w", err)
	}
	if onlyIfStale && snap.Status == domain.IndexValid {
		return nil, false, nil
	}

	rules, err := b.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list active rules: %w", err)
	}
	report, err := b.run(ctx, OpFull, rules, domain.IndexScope{}, func(*domain.Rule, *RebuildReport) domain.ProductQuery {
		return domain.ProductQuery{BatchSize: b.cfg.BatchSize}
	})
	if err != nil {
		return report, true, err
	}

	ok, err := b.state.MarkValid(ctx, snap.Version)
	if err != nil {
		return report, true, fmt.Errorf("mark index valid: %w", err)
	}
	if !ok {
		// 重建期间又有失效事件，保持失效，等下一轮调度
		logger.Ctx(ctx).Warn().Str("run_id", report.RunID).Int64("version", snap.Version).
			Msg("index invalidated during full rebuild, leaving it stale")
	}
	return report, true, nil
}

// RebuildForRules 重建指定规则的索引行。未启用或不存在的规则的旧行会被清除。
func (b *IndexBuilder) RebuildForRules(ctx context.Context, ruleIDs []int64) (*RebuildReport, error) {
	ids := normalizeIDs(ruleIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("rebuild for rules: %w", domain.ErrEmptyIDs)
	}
	rules, err := b.rules.ListRulesByIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("list rules %v: %w", ids, err)
	}
	return b.run(ctx, OpRules, rules, domain.IndexScope{RuleIDs: ids}, func(r *domain.Rule, report *RebuildReport) domain.ProductQuery {
		return domain.ProductQuery{Filters: b.prefilter(ctx, r, report), BatchSize: b.cfg.BatchSize}
	})
}

// RebuildForProducts 用所有启用的规则重建指定商品的索引行。
func (b *IndexBuilder) RebuildForProducts(ctx context.Context, productIDs []int64) (*RebuildReport, error) {
	ids := normalizeIDs(productIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("rebuild for products: %w", domain.ErrEmptyIDs)
	}
	rules, err := b.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return b.run(ctx, OpProducts, rules, domain.IndexScope{ProductIDs: ids}, func(r *domain.Rule, report *RebuildReport) domain.ProductQuery {
		return domain.ProductQuery{IDs: ids, Filters: b.prefilter(ctx, r, report), BatchSize: b.cfg.BatchSize}
	})
}

// prefilter 把规则条件里的商品条件转换成候选商品过滤，无法转换时匹配所有商品。
func (b *IndexBuilder) prefilter(ctx context.Context, r *domain.Rule, report *RebuildReport) []condition.ProductFilter {
	filters, ok := condition.ExtractProductFilters(r.Conditions)
	if !ok {
		report.PrefilterFallbacks++
		b.metrics.PrefilterFallback()
		logger.Ctx(ctx).Debug().Int64("rule_id", r.ID).Msg("rule has an unmapped operator, matching all products")
		return nil
	}
	return filters
}

func (b *IndexBuilder) run(
	ctx context.Context,
	op string,
	rules []*domain.Rule,
	scope domain.IndexScope,
	query func(*domain.Rule, *RebuildReport) domain.ProductQuery,
) (report *RebuildReport, err error) {
	startedAt := b.now()
	report = &RebuildReport{RunID: uuid.NewString(), Operation: op, Rules: len(rules)}

	ctx, span := b.tracer.Start(ctx, "indexer.Rebuild",
		trace.WithAttributes(
			attribute.String("indexer.operation", op),
			attribute.String("indexer.run_id", report.RunID),
			attribute.Int("indexer.rules", len(rules)),
		))
	log := logger.Ctx(ctx).With().Str("run_id", report.RunID).Str("operation", op).Logger()
	defer func() {
		report.Duration = b.now().Sub(startedAt)
		b.metrics.RebuildFinished(op, err, report.Duration)
		span.SetAttributes(
			attribute.Int("indexer.rows_written", report.RowsWritten),
			attribute.Int64("indexer.rows_swept", report.RowsSwept),
			attribute.Int("indexer.failures", report.Failures),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error().Err(err).Int("rows_written", report.RowsWritten).Msg("index rebuild failed")
		} else {
			log.Info().
				Int("rules", report.Rules).
				Int("candidates", report.Candidates).
				Int("rows_written", report.RowsWritten).
				Int64("rows_swept", report.RowsSwept).
				Int("failures", report.Failures).
				Dur("duration", report.Duration).
				Msg("index rebuild finished")
		}
		span.End()
	}()
	log.Info().Int("rules", len(rules)).Ints64("rule_ids", scope.RuleIDs).Ints64("product_ids", scope.ProductIDs).
		Msg("index rebuild started")

	builtAt := startedAt.UnixNano()
	pending := make([]domain.IndexRow, 0, b.cfg.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := b.store.Upsert(ctx, pending, builtAt); err != nil {
			return fmt.Errorf("flush %d index rows: %w", len(pending), err)
		}
		report.RowsWritten += len(pending)
		b.metrics.RowsWritten(op, len(pending))
		pending = pending[:0]
		return nil
	}

	for _, rule := range rules {
		rule := rule
		q := query(rule, report)
		err := b.products.ListEnabledProducts(ctx, q, func(batch []*domain.Product) error {
			for _, p := range batch {
				report.Candidates++
				for _, websiteID := range p.WebsiteIDs {
					row, ok := b.simulate(ctx, p, rule, websiteID, report)
					if !ok {
						continue
					}
					pending = append(pending, row)
					if len(pending) >= b.cfg.BatchSize {
						if err := flush(); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
		if err != nil {
			return report, fmt.Errorf("index rule %d: %w", rule.ID, err)
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	swept, err := b.store.Sweep(ctx, scope, builtAt)
	if err != nil {
		return report, fmt.Errorf("sweep stale index rows: %w", err)
	}
	report.RowsSwept = swept

	if err := b.cache.Bump(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to bump query cache epoch")
	}
	return report, nil
}

// simulate 计算一行索引。模拟失败 (包括 panic) 只记录日志并跳过该商品。
func (b *IndexBuilder) simulate(ctx context.Context, p *domain.Product, r *domain.Rule, websiteID int64, report *RebuildReport) (row domain.IndexRow, ok bool) {
	report.Simulations++
	defer func() {
		if rec := recover(); rec != nil {
			report.Failures++
			b.metrics.Simulated(OutcomeFailed)
			logger.Ctx(ctx).Error().Int64("rule_id", r.ID).Int64("product_id", p.ID).Int64("website_id", websiteID).
				Interface("panic", rec).Msg("discount simulation panicked")
			ok = false
		}
	}()

	amount, applies, err := b.simulator.ComputeDiscount(p, r, websiteID)
	switch {
	case err != nil:
		report.Failures++
		b.metrics.Simulated(OutcomeFailed)
		logger.Ctx(ctx).Error().Err(err).Int64("rule_id", r.ID).Int64("product_id", p.ID).Int64("website_id", websiteID).
			Msg("discount simulation failed")
		return row, false
	case !applies:
		b.metrics.Simulated(OutcomeAbsent)
		return row, false
	case amount.IsZero() && !b.cfg.IndexZeroDiscounts:
		report.ZeroDiscounts++
		b.metrics.Simulated(OutcomeZero)
		return row, false
	}
	b.metrics.Simulated(OutcomeApplied)
	return domain.IndexRow{
		RuleID:     r.ID,
		ProductID:  p.ID,
		WebsiteID:  websiteID,
		RulePrice:  amount.Round(4),
		ProductSKU: p.SKU,
	}, true
}

func normalizeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
