package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/service/promotion/application"
	"promoindex/internal/service/promotion/domain"
)

// WebsiteHeader 指定查询的网站，优先于 website_id 参数
const WebsiteHeader = "X-Website-Id"

// RuleQuerier 是读路径用例
type RuleQuerier interface {
	GetRules(ctx context.Context, q application.RuleQuery) ([]*application.RuleWithDiscounts, error)
}

// EventHandler 处理一条实体变更
type EventHandler interface {
	Handle(ctx context.Context, event *domain.EntityEvent) error
}

// StateReader 读取索引的当前状态
type StateReader interface {
	Snapshot(ctx context.Context) (domain.IndexStateSnapshot, error)
}

// SalesRuleHandler 封装了折扣索引服务的 HTTP 处理器
type SalesRuleHandler struct {
	queries          RuleQuerier
	rebuilder        application.Rebuilder
	events           EventHandler
	state            StateReader
	defaultWebsiteID int64
}

func NewSalesRuleHandler(queries RuleQuerier, rebuilder application.Rebuilder, events EventHandler, state StateReader, defaultWebsiteID int64) *SalesRuleHandler {
	return &SalesRuleHandler{
		queries:          queries,
		rebuilder:        rebuilder,
		events:           events,
		state:            state,
		defaultWebsiteID: defaultWebsiteID,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SalesRuleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /V1/promotion/salesrules", h.handleGetSalesRules)
	mux.HandleFunc("POST /admin/reindex/full", h.handleReindexFull)
	mux.HandleFunc("POST /admin/reindex/rules", h.handleReindexRules)
	mux.HandleFunc("POST /admin/reindex/products", h.handleReindexProducts)
	mux.HandleFunc("POST /admin/events", h.handleEvent)
	mux.HandleFunc("GET /admin/index/state", h.handleIndexState)
}

func (h *SalesRuleHandler) handleGetSalesRules(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	q, err := h.parseRuleQuery(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rules, err := h.queries.GetRules(ctx, q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *SalesRuleHandler) parseRuleQuery(r *http.Request) (application.RuleQuery, error) {
	params := r.URL.Query()
	q := application.RuleQuery{WebsiteID: h.defaultWebsiteID}

	var err error
	if q.RuleID, err = optionalID(params.Get("rule_id")); err != nil {
		return q, errors.Wrap(err, "rule_id")
	}
	if q.ProductID, err = optionalID(params.Get("product_id")); err != nil {
		return q, errors.Wrap(err, "product_id")
	}
	website := r.Header.Get(WebsiteHeader)
	if website == "" {
		website = params.Get("website_id")
	}
	if website != "" {
		if q.WebsiteID, err = optionalID(website); err != nil {
			return q, errors.Wrap(err, "website_id")
		}
	}
	return q, nil
}

func optionalID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.Wrapf(domain.ErrInvalidArgument, "%q is not a valid id", s)
	}
	return id, nil
}

func (h *SalesRuleHandler) handleReindexFull(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	report, err := h.rebuilder.RebuildFull(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SalesRuleHandler) handleReindexRules(w http.ResponseWriter, r *http.Request) {
	h.reindexByIDs(w, r, h.rebuilder.RebuildForRules)
}

func (h *SalesRuleHandler) handleReindexProducts(w http.ResponseWriter, r *http.Request) {
	h.reindexByIDs(w, r, h.rebuilder.RebuildForProducts)
}

func (h *SalesRuleHandler) reindexByIDs(w http.ResponseWriter, r *http.Request, rebuild func(context.Context, []int64) (*application.RebuildReport, error)) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, errors.Wrap(domain.ErrInvalidArgument, "invalid request body"))
		return
	}
	report, err := rebuild(ctx, req.IDs)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleEvent 接收与 Kafka 消息相同格式的实体变更，同步处理
func (h *SalesRuleHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var event domain.EntityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(ctx, w, errors.Wrap(domain.ErrInvalidArgument, "invalid request body"))
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.events.Handle(ctx, &event); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": event.EventID, "status": "handled"})
}

func (h *SalesRuleHandler) handleIndexState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.state.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": snap.Status, "version": snap.Version})
}

// statusCode 根据错误类型返回 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyIDs),
		errors.Is(err, domain.ErrUndefinedEntity),
		errors.Is(err, domain.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRuleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"message": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
