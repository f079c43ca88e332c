package application

import "time"

// 单次折扣模拟的结果分类。
const (
	OutcomeApplied = "applied"
	OutcomeAbsent  = "absent"
	OutcomeZero    = "zero"
	OutcomeFailed  = "failed"
)

// Metrics 记录索引与查询的运行指标。
type Metrics interface {
	RebuildFinished(op string, err error, d time.Duration)
	RowsWritten(op string, n int)
	Simulated(outcome string)
	PrefilterFallback()
	TriggerHandled(event string, err error)
	CacheLookup(hit bool)
}

// NopMetrics 丢弃所有指标。
type NopMetrics struct{}

func (NopMetrics) RebuildFinished(string, error, time.Duration) {}
func (NopMetrics) RowsWritten(string, int)                      {}
func (NopMetrics) Simulated(string)                             {}
func (NopMetrics) PrefilterFallback()                           {}
func (NopMetrics) TriggerHandled(string, error)                 {}
func (NopMetrics) CacheLookup(bool)                             {}
