// Package runtime — вспомогательные утилиты пауз между обращениями к Telegram.
// Случайные задержки снижают шанс флуд-контроля при переборе диалогов и истории
// и уважают отмену контекста.
package runtime

import (
	"context"
	"math/rand/v2"
	"time"

	"telegram-linkgrabber/internal/infra/logger"
)

const (
	// defaultWaitMinMs — минимальная длительность ожидания по умолчанию (мс).
	defaultWaitMinMs = 1111
	// defaultWaitMaxMs — максимальная длительность ожидания по умолчанию (мс).
	defaultWaitMaxMs = 3333
)

// WaitRandomTimeMs блокирует текущую горутину на случайный интервал из [minMs, maxMs).
// Таймер немедленно отменяется при ctx.Done(). Поведение на краях:
//   - если minMs==maxMs — ждём ровно это значение;
//   - если обе границы равны нулю — используются дефолтные окна;
//   - если minMs<=0 или maxMs<minMs — логируем ошибку и выходим без ожидания.
func WaitRandomTimeMs(ctx context.Context, minMs, maxMs int) {
	switch {
	case minMs == 0 && maxMs == 0:
		minMs = defaultWaitMinMs
		maxMs = defaultWaitMaxMs
	case minMs <= 0:
		logger.Error("WaitRandomTimeMs: wait time <= 0")
		return
	case maxMs < minMs:
		logger.Error("WaitRandomTimeMs: max < min")
		return
	}

	// Равномерный выбор из полуинтервала [minMs, maxMs).
	delta := minMs
	if maxMs > minMs {
		delta = rand.IntN(maxMs-minMs) + minMs // #nosec G404
	}
	delay := time.Duration(delta) * time.Millisecond

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return
	case <-timer.C:
		return
	}
}

// WaitRandomTime — обёртка с дефолтными окнами ожидания.
func WaitRandomTime(ctx context.Context) {
	WaitRandomTimeMs(ctx, 0, 0)
}
