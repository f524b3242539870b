// Файл scheduler.go — периодический запуск прогонов по интервалу из конфига.
package extraction

import (
	"context"
	"time"

	"telegram-linkgrabber/internal/infra/logger"
)

// Scheduler запускает Engine.Run по фиксированному интервалу.
// Нулевой интервал отключает планировщик.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
}

// NewScheduler создаёт планировщик поверх движка.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, interval: interval}
}

// Run блокирует до отмены контекста, запуская прогон на каждом тике.
// Первый прогон происходит через интервал, не сразу: при старте процесс
// обычно ещё подключает аккаунты.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		logger.Debug("extraction: scheduler disabled")
		return
	}
	logger.Infof("extraction: scheduler started, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("extraction: scheduler stopped")
			return
		case <-ticker.C:
			s.engine.Run(ctx)
		}
	}
}
