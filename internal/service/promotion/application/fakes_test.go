package application

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"promoindex/internal/service/promotion/domain"
	"promoindex/internal/service/promotion/domain/condition"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

type memRules struct {
	rules []*domain.Rule
	calls int
}

func (m *memRules) ListActiveRules(context.Context) ([]*domain.Rule, error) {
	m.calls++
	var out []*domain.Rule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) ListRulesByIDs(_ context.Context, ids []int64, activeOnly bool) ([]*domain.Rule, error) {
	m.calls++
	var out []*domain.Rule
	for _, r := range m.rules {
		if slices.Contains(ids, r.ID) && (r.IsActive || !activeOnly) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memProducts 只按 ID 过滤，属性过滤交给模拟器兜底，queries 记录收到的查询。
type memProducts struct {
	products []*domain.Product
	queries  []domain.ProductQuery
	calls    int
	onList   func()
}

func (m *memProducts) ListEnabledProducts(_ context.Context, q domain.ProductQuery, fn func([]*domain.Product) error) error {
	m.calls++
	m.queries = append(m.queries, q)
	if m.onList != nil {
		m.onList()
	}
	var batch []*domain.Product
	for _, p := range m.products {
		if !p.Enabled || (len(q.IDs) > 0 && !slices.Contains(q.IDs, p.ID)) {
			continue
		}
		batch = append(batch, p)
		if q.BatchSize > 0 && len(batch) == q.BatchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

type storedRow struct {
	row     domain.IndexRow
	builtAt int64
}

type memStore struct {
	mu        sync.Mutex
	rows      map[domain.IndexKey]storedRow
	upserts   int
	sweeps    int
	calls     int
	upsertErr error
	// beforeSweep 在下一次 Sweep 前执行一次，用来插入另一轮重建
	beforeSweep func()
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[domain.IndexKey]storedRow)}
}

func (m *memStore) Upsert(_ context.Context, rows []domain.IndexRow, builtAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	for _, r := range rows {
		if old, ok := m.rows[r.Key()]; ok && old.builtAt > builtAt {
			continue
		}
		m.rows[r.Key()] = storedRow{row: r, builtAt: builtAt}
	}
	return nil
}

func (m *memStore) Sweep(_ context.Context, scope domain.IndexScope, before int64) (int64, error) {
	if hook := m.beforeSweep; hook != nil {
		m.beforeSweep = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.sweeps++
	var n int64
	for k, r := range m.rows {
		if r.builtAt >= before {
			continue
		}
		if len(scope.RuleIDs) > 0 && !slices.Contains(scope.RuleIDs, k.RuleID) {
			continue
		}
		if len(scope.ProductIDs) > 0 && !slices.Contains(scope.ProductIDs, k.ProductID) {
			continue
		}
		delete(m.rows, k)
		n++
	}
	return n, nil
}

func (m *memStore) Find(_ context.Context, f domain.IndexFilter) ([]domain.IndexRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []domain.IndexRow
	for _, r := range m.rows {
		if r.row.WebsiteID != f.WebsiteID ||
			(f.RuleID > 0 && r.row.RuleID != f.RuleID) ||
			(f.ProductID > 0 && r.row.ProductID != f.ProductID) {
			continue
		}
		out = append(out, r.row)
	}
	slices.SortFunc(out, func(a, b domain.IndexRow) int {
		if a.RuleID != b.RuleID {
			return int(a.RuleID - b.RuleID)
		}
		if a.ProductID != b.ProductID {
			return int(a.ProductID - b.ProductID)
		}
		return int(a.WebsiteID - b.WebsiteID)
	})
	return out, nil
}

// snapshot 返回 key -> rule_price 的副本，便于比较两次重建的结果。
func (m *memStore) snapshot() map[domain.IndexKey]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.IndexKey]string, len(m.rows))
	for k, r := range m.rows {
		out[k] = r.row.RulePrice.String()
	}
	return out
}

type memState struct {
	mu      sync.Mutex
	status  domain.IndexStatus
	version int64
}

func (m *memState) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = domain.IndexInvalid
	m.version++
	return nil
}

func (m *memState) Snapshot(context.Context) (domain.IndexStateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.IndexStateSnapshot{Status: m.status, Version: m.version}, nil
}

func (m *memState) MarkValid(_ context.Context, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != version {
		return false, nil
	}
	m.status = domain.IndexValid
	return true, nil
}

type memCache struct {
	epoch int64
	data  map[string][]byte
	gets  int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Epoch(context.Context) (int64, error) { return m.epoch, nil }

func (m *memCache) Bump(context.Context) error {
	m.epoch++
	return nil
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.gets++
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id int64, sku, price string, websites ...int64) *domain.Product {
	if len(websites) == 0 {
		websites = []int64{1}
	}
	return &domain.Product{
		ID:         id,
		SKU:        sku,
		TypeID:     domain.ProductSimple,
		Enabled:    true,
		InStock:    true,
		Price:      dec(price),
		WebsiteIDs: websites,
	}
}

func rule(id int64, action domain.SimpleAction, amount string, conditions ...condition.Node) *domain.Rule {
	return &domain.Rule{
		ID:             id,
		Name:           "rule",
		IsActive:       true,
		WebsiteIDs:     []int64{1, 2},
		Conditions:     condition.NewAll(conditions...),
		Actions:        condition.NewAll(),
		SimpleAction:   action,
		DiscountAmount: dec(amount),
	}
}

func foundProduct(leaves ...condition.Node) *condition.Combine {
	return &condition.Combine{
		Kind:       condition.KindFound,
		Aggregator: condition.AggregatorAll,
		Value:      true,
		Children:   leaves,
	}
}
