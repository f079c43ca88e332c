package application

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/domain"
)

// SalesRuleQueryService 是规则折扣索引的只读查询用例
type SalesRuleQueryService struct {
	rules   domain.RuleSource
	store   domain.IndexStore
	cache   domain.ReadCache
	metrics Metrics
	tracer  trace.Tracer
	group   singleflight.Group
}

// NewSalesRuleQueryService 创建查询服务，cache 为 nil 时不缓存
func NewSalesRuleQueryService(rules domain.RuleSource, store domain.IndexStore, cache domain.ReadCache, metrics Metrics, tracer trace.Tracer) *SalesRuleQueryService {
	if cache == nil {
		cache = NopCache{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &SalesRuleQueryService{
		rules:   rules,
		store:   store,
		cache:   cache,
		metrics: metrics,
		tracer:  tracer,
	}
}

// GetRules 返回规则及其在当前网站下的索引折扣。
//
// 没有指定规则时返回所有启用的规则；指定规则时不看启用状态。
// ProductID 只过滤加载的折扣行，不过滤返回的规则，没有折扣行的规则返回空列表。
func (s *SalesRuleQueryService) GetRules(ctx context.Context, q RuleQuery) ([]*RuleWithDiscounts, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetRules")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("rule.id", q.RuleID),
		attribute.Int64("product.id", q.ProductID),
		attribute.Int64("website.id", q.WebsiteID),
	)

	if q.WebsiteID <= 0 || q.RuleID < 0 || q.ProductID < 0 {
		return nil, fmt.Errorf("query %+v: %w", q, domain.ErrInvalidArgument)
	}

	key, cacheable := s.cacheKey(ctx, q)
	if cacheable {
		if data, ok, err := s.cache.Get(ctx, key); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("query cache read failed")
		} else if ok {
			var out []*RuleWithDiscounts
			if err := json.Unmarshal(data, &out); err == nil {
				s.metrics.CacheLookup(true)
				span.AddEvent("served from cache")
				return out, nil
			}
		}
		s.metrics.CacheLookup(false)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.load(ctx, q)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := v.([]*RuleWithDiscounts)

	if cacheable {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, data); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("query cache write failed")
			}
		}
	}
	return out, nil
}

// cacheKey 把缓存 epoch 放进键里，索引重建后旧键不再命中。
func (s *SalesRuleQueryService) cacheKey(ctx context.Context, q RuleQuery) (string, bool) {
	base := fmt.Sprintf("w%d:r%d:p%d", q.WebsiteID, q.RuleID, q.ProductID)
	epoch, err := s.cache.Epoch(ctx)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("query cache epoch unavailable, bypassing cache")
		return base, false
	}
	return fmt.Sprintf("salesrules:%d:%s", epoch, base), true
}

func (s *SalesRuleQueryService) load(ctx context.Context, q RuleQuery) ([]*RuleWithDiscounts, error) {
	var (
		rules []*domain.Rule
		err   error
	)
	if q.RuleID > 0 {
		rules, err = s.rules.ListRulesByIDs(ctx, []int64{q.RuleID}, false)
		if err == nil && len(rules) == 0 {
			err = fmt.Errorf("rule %d: %w", q.RuleID, domain.ErrRuleNotFound)
		}
	} else {
		rules, err = s.rules.ListActiveRules(ctx)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.store.Find(ctx, domain.IndexFilter{RuleID: q.RuleID, ProductID: q.ProductID, WebsiteID: q.WebsiteID})
	if err != nil {
		return nil, fmt.Errorf("load index rows: %w", err)
	}
	byRule := make(map[int64][]ProductDiscount)
	for _, row := range rows {
		byRule[row.RuleID] = append(byRule[row.RuleID], toProductDiscount(row))
	}

	out := make([]*RuleWithDiscounts, 0, len(rules))
	for _, r := range rules {
		discounts := byRule[r.ID]
		if discounts == nil {
			discounts = []ProductDiscount{}
		}
		out = append(out, &RuleWithDiscounts{RuleMetadata: toRuleMetadata(r), ProductDiscounts: discounts})
	}
	return out, nil
}

// NopCache 不缓存任何内容。
type NopCache struct{}

func (NopCache) Epoch(context.Context) (int64, error)              { return 0, nil }
func (NopCache) Bump(context.Context) error                        { return nil }
func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte) error         { return nil }
