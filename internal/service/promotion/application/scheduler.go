package application

import (
	"context"
	"time"

	"promoindex/internal/pkg/logger"
)

// StaleRebuilder 在索引失效时执行全量重建。
type StaleRebuilder interface {
	RebuildIfStale(ctx context.Context) (*RebuildReport, bool, error)
}

// StaleIndexScheduler 定期检查索引状态，失效时触发全量重建。
type StaleIndexScheduler struct {
	rebuilder StaleRebuilder
	interval  time.Duration
}

func NewStaleIndexScheduler(rebuilder StaleRebuilder, interval time.Duration) *StaleIndexScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleIndexScheduler{rebuilder: rebuilder, interval: interval}
}

// Run 阻塞直到 ctx 结束。单轮失败只记录日志，下一轮继续。
func (s *StaleIndexScheduler) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("stale index scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("stale index scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("scheduled full rebuild failed")
			}
		}
	}
}

// RunOnce 执行一轮检查，返回是否做了全量重建。
func (s *StaleIndexScheduler) RunOnce(ctx context.Context) (bool, error) {
	report, rebuilt, err := s.rebuilder.RebuildIfStale(ctx)
	if err != nil {
		return rebuilt, err
	}
	if rebuilt {
		logger.Ctx(ctx).Info().Str("run_id", report.RunID).Msg("stale index rebuilt")
	}
	return rebuilt, nil
}
