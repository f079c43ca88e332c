package application

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/domain"
)

// TriggerHandler 把实体变更转换为索引维护动作。
//
// 商品和规则的变更影响范围小，同步做增量重建；
// 分类删除和网站变更影响所有规则，只把索引标记为失效，由调度器做全量重建。
type TriggerHandler struct {
	rebuilder Rebuilder
	state     domain.IndexState
	metrics   Metrics
	tracer    trace.Tracer
}

func NewTriggerHandler(rebuilder Rebuilder, state domain.IndexState, metrics Metrics, tracer trace.Tracer) *TriggerHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &TriggerHandler{
		rebuilder: rebuilder,
		state:     state,
		metrics:   metrics,
		tracer:    tracer,
	}
}

// Handle 按事件类型分发。
func (h *TriggerHandler) Handle(ctx context.Context, event *domain.EntityEvent) (err error) {
	if event == nil {
		return fmt.Errorf("nil event: %w", domain.ErrUnknownEvent)
	}
	ctx, span := h.tracer.Start(ctx, "trigger."+string(event.Type), trace.WithAttributes(
		attribute.String("event.id", event.EventID),
		attribute.Int64("event.entity_id", event.EntityID),
	))
	defer func() {
		h.metrics.TriggerHandled(string(event.Type), err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	switch event.Type {
	case domain.EventProductSaved:
		return h.OnProductSaved(ctx, event.EntityID, event.AffectedProductIDs, event.MassUpdate)
	case domain.EventCategorySaved:
		return h.OnCategorySaved(ctx, event.AffectedProductIDs)
	case domain.EventCategoryDeleted:
		return h.OnCategoryDeleted(ctx)
	case domain.EventRuleSaved:
		return h.OnRuleSaved(ctx, event.EntityID)
	case domain.EventWebsiteSaved:
		return h.OnWebsiteSaved(ctx)
	case domain.EventWebsiteDeleted:
		return h.OnWebsiteDeleted(ctx)
	}
	return fmt.Errorf("event type %q: %w", event.Type, domain.ErrUnknownEvent)
}

// OnProductSaved 重建商品自身和 parentIDs 里的可配置父商品。批量更新时不处理，由批量任务负责。
func (h *TriggerHandler) OnProductSaved(ctx context.Context, productID int64, parentIDs []int64, massUpdate bool) error {
	if productID <= 0 {
		return fmt.Errorf("product saved: %w", domain.ErrUndefinedEntity)
	}
	if massUpdate {
		logger.Ctx(ctx).Debug().Int64("product_id", productID).Msg("mass update, skipping product reindex")
		return nil
	}
	ids := []int64{productID}
	for _, id := range parentIDs {
		if id > 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	_, err := h.rebuilder.RebuildForProducts(ctx, ids)
	return err
}

// OnCategorySaved 只重建分类商品关联发生变化的商品。
func (h *TriggerHandler) OnCategorySaved(ctx context.Context, affectedProductIDs []int64) error {
	if len(affectedProductIDs) == 0 {
		return nil
	}
	_, err := h.rebuilder.RebuildForProducts(ctx, affectedProductIDs)
	return err
}

func (h *TriggerHandler) OnCategoryDeleted(ctx context.Context) error {
	return h.invalidate(ctx, "category deleted")
}

func (h *TriggerHandler) OnRuleSaved(ctx context.Context, ruleID int64) error {
	if ruleID <= 0 {
		return fmt.Errorf("rule saved: %w", domain.ErrUndefinedEntity)
	}
	_, err := h.rebuilder.RebuildForRules(ctx, []int64{ruleID})
	return err
}

func (h *TriggerHandler) OnWebsiteSaved(ctx context.Context) error {
	return h.invalidate(ctx, "website saved")
}

func (h *TriggerHandler) OnWebsiteDeleted(ctx context.Context) error {
	return h.invalidate(ctx, "website deleted")
}

func (h *TriggerHandler) invalidate(ctx context.Context, reason string) error {
	if err := h.state.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate index (%s): %w", reason, err)
	}
	logger.Ctx(ctx).Info().Str("reason", reason).Msg("sales rule index marked invalid")
	return nil
}
