// Package extraction — движок сбора ссылок по подключённым аккаунтам.
// Аккаунты обрабатываются пулом воркеров, диалоги внутри аккаунта — строго
// последовательно: клиентский хэндл аккаунта не переносит параллельных
// вызовов. Сбой одного аккаунта не прерывает обход остальных.
package extraction

import (
	"context"
	"sync"
	"time"

	"telegram-linkgrabber/internal/domain/accounts"
	"telegram-linkgrabber/internal/domain/links"
	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/runtime"
	"telegram-linkgrabber/internal/telegram"
)

// Account — операции аккаунта, которыми пользуется движок.
// *accounts.Session реализует интерфейс как есть.
type Account interface {
	Phone() string
	Dialogs(ctx context.Context, limit int) ([]telegram.Dialog, error)
	History(ctx context.Context, peer telegram.Dialog, limit, offsetID int) ([]telegram.Message, error)
	TouchLastCheck(at time.Time)
}

// Source отдаёт аккаунты, готовые к сканированию.
type Source interface {
	Connected(ctx context.Context) []Account
}

// RegistrySource адаптирует реестр аккаунтов под Source с живой проверкой
// авторизации: мёртвые сессии в скан не попадают.
type RegistrySource struct {
	Registry *accounts.Registry
}

func (s RegistrySource) Connected(ctx context.Context) []Account {
	sessions := s.Registry.ListConnected(ctx, true)
	out := make([]Account, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess)
	}
	return out
}

// Options — границы одного прогона.
type Options struct {
	DialogLimit  int // сколько диалогов брать на аккаунт
	MessageLimit int // сколько сообщений читать из каждого диалога
	Workers      int // параллельных аккаунтов
	PaceMinMs    int // пауза между диалогами, нижняя граница (0 — умолчание)
	PaceMaxMs    int // пауза между диалогами, верхняя граница (0 — умолчание)
}

// RunError — сбой одного аккаунта внутри прогона.
type RunError struct {
	Phone string `json:"phone"`
	Err   error  `json:"-"`
}

// Message возвращает текст сбоя для сериализации наружу.
func (e RunError) Message() string { return e.Err.Error() }

// Summary — итог прогона. NewLinks считает впервые увиденные ссылки,
// TotalLinks — все извлечённые, включая уже известные.
type Summary struct {
	AccountsProcessed int
	TotalAccounts     int
	NewLinks          int
	TotalLinks        int
	Errors            []RunError
	Duration          time.Duration
}

// Engine обходит аккаунты и складывает находки в хранилище ссылок.
type Engine struct {
	source Source
	store  *links.Store
	opts   Options

	// runMu не даёт запускать два прогона одновременно.
	runMu sync.Mutex
}

// New создаёт движок. Нулевые границы заменяются умолчаниями.
func New(source Source, store *links.Store, opts Options) *Engine {
	if opts.DialogLimit <= 0 {
		opts.DialogLimit = 200
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	return &Engine{source: source, store: store, opts: opts}
}

// Run выполняет один прогон по всем подключённым аккаунтам. Прогон не
// возвращает ошибку целиком: сбои отдельных аккаунтов собираются в
// Summary.Errors. Отмена контекста останавливает обход между диалогами;
// сделанные к этому моменту находки остаются сохранёнными.
func (e *Engine) Run(ctx context.Context) *Summary {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	started := time.Now()
	accountsToScan := e.source.Connected(ctx)
	summary := &Summary{TotalAccounts: len(accountsToScan)}
	if len(accountsToScan) == 0 {
		logger.Info("extraction: no connected accounts, nothing to scan")
		summary.Duration = time.Since(started)
		return summary
	}

	logger.Infof("extraction: scanning %d account(s) with %d worker(s)", len(accountsToScan), e.opts.Workers)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan Account)
	)
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for acc := range queue {
				newLinks, totalLinks, err := e.scanAccount(ctx, acc)
				mu.Lock()
				summary.NewLinks += newLinks
				summary.TotalLinks += totalLinks
				if err != nil {
					summary.Errors = append(summary.Errors, RunError{Phone: acc.Phone(), Err: err})
				} else {
					summary.AccountsProcessed++
				}
				mu.Unlock()
			}
		}()
	}

	// Очередь всегда скармливается целиком: отмену каждый воркер замечает
	// сам на границе диалогов, поэтому отправка не заблокируется навсегда.
	for _, acc := range accountsToScan {
		queue <- acc
	}
	close(queue)
	wg.Wait()

	summary.Duration = time.Since(started)
	logger.Infof("extraction: done in %s: %d/%d account(s), %d new / %d total link(s), %d error(s)",
		summary.Duration.Round(time.Millisecond), summary.AccountsProcessed, summary.TotalAccounts,
		summary.NewLinks, summary.TotalLinks, len(summary.Errors))
	return summary
}

// scanAccount последовательно обходит диалоги одного аккаунта.
// Возвращает частичные счётчики вместе с ошибкой: находки до сбоя или
// отмены уже сохранены и из итога не выбрасываются.
func (e *Engine) scanAccount(ctx context.Context, acc Account) (newLinks, totalLinks int, err error) {
	dialogs, err := acc.Dialogs(ctx, e.opts.DialogLimit)
	if err != nil {
		return 0, 0, err
	}

	for i, dialog := range dialogs {
		// Точка отмены — строго между диалогами, не посреди чтения.
		if ctx.Err() != nil {
			return newLinks, totalLinks, ctx.Err()
		}
		if i > 0 {
			runtime.WaitRandomTimeMs(ctx, e.opts.PaceMinMs, e.opts.PaceMaxMs)
		}

		messages, histErr := acc.History(ctx, dialog, e.opts.MessageLimit, 0)
		if histErr != nil {
			// FloodWait и отзыв сессии бессмысленно пережидать внутри
			// прогона: фиксируем сбой аккаунта и идём к следующему.
			return newLinks, totalLinks, histErr
		}

		label := sourceLabel(dialog)
		for _, msg := range messages {
			for _, link := range links.Extract(msg.Text) {
				totalLinks++
				wasNew, addErr := e.store.Add(link, label, msg.Text, msg.Date)
				if addErr != nil {
					return newLinks, totalLinks, addErr
				}
				if wasNew {
					newLinks++
				}
			}
		}
	}

	acc.TouchLastCheck(time.Now())
	logger.Debugf("extraction: account %s: %d dialog(s), %d new / %d total link(s)",
		acc.Phone(), len(dialogs), newLinks, totalLinks)
	return newLinks, totalLinks, nil
}

// sourceLabel выбирает метку источника: публичное имя, иначе заголовок.
func sourceLabel(dialog telegram.Dialog) string {
	if dialog.Username != "" {
		return links.NormalizeChannel(dialog.Username)
	}
	return dialog.Title
}
