// Package gotdclient — реализация протокольной границы поверх gotd.
// Один Client соответствует одному номеру и одному MTProto-соединению.
// Соединение поднимается лениво: client.Run живёт в фоновой горутине, а
// операции выполняются только после сигнала готовности. Повторное поднятие
// после обрыва выполняется прозрачно при следующей операции.
//
// FLOOD_WAIT здесь сознательно не перехватывается (никакого floodwait.Waiter):
// таксономия ошибок требует отдавать задержку вызывающему, а не молча ждать.
package gotdclient

import (
	"context"
	"time"

	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/phone"
	tgiface "telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// connectTimeout ограничивает ожидание первого рукопожатия при ленивом поднятии.
const connectTimeout = 30 * time.Second

// Options — параметры создания клиентов. APIID/APIHash общие для всех аккаунтов.
type Options struct {
	APIID       int
	APIHash     string
	SessionsDir string
	ThrottleRPS int
	OpTimeout   time.Duration
	TestDC      bool
}

// Factory создаёт per-phone клиентов с общими настройками.
type Factory struct {
	opts Options
}

// NewFactory возвращает фабрику протокольных клиентов.
func NewFactory(opts Options) *Factory {
	if opts.ThrottleRPS <= 0 {
		opts.ThrottleRPS = 1
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	return &Factory{opts: opts}
}

// New создаёт клиента для номера в канонической форме. Соединение не поднимается
// до первой операции.
func (f *Factory) New(phoneDigits string) (tgiface.Client, error) {
	if phoneDigits == "" {
		return nil, errors.New("empty phone")
	}
	return &Client{
		opts:  f.opts,
		phone: phoneDigits,
	}, nil
}

// RemoveSession удаляет файл сессии номера из каталога фабрики.
func (f *Factory) RemoveSession(phoneDigits string) error {
	return RemoveSession(f.opts.SessionsDir, phoneDigits)
}

var _ tgiface.Factory = (*Factory)(nil)

// Client держит MTProto-соединение одного аккаунта.
// Вызовы не конкурируют: аккаунт-сессия сериализует операции, поэтому состояние
// раннера защищать мьютексом не нужно — но горутина Run синхронизируется с
// операциями через каналы ready/done.
type Client struct {
	opts  Options
	phone string

	tgc       *telegram.Client
	runCancel context.CancelFunc
	ready     chan struct{}
	done      chan struct{}
	runErr    error // читается только после закрытия done
}

var _ tgiface.Client = (*Client)(nil)

// build собирает gotd-клиента с файловой сессией и rate-limit middleware.
func (c *Client) build() *telegram.Client {
	options := telegram.Options{
		SessionStorage: &fileStorage{path: SessionPath(c.opts.SessionsDir, c.phone)},
		Middlewares: []telegram.Middleware{
			ratelimit.New(
				rate.Limit(c.opts.ThrottleRPS),
				c.opts.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "Desktop",
			SystemVersion: "linux",
			AppVersion:    "1.0.0",
		},
	}
	if c.opts.TestDC {
		options.DCList = dcs.Test()
	}
	return telegram.NewClient(c.opts.APIID, c.opts.APIHash, options)
}

// ensureRunning лениво поднимает фоновый Run и дожидается готовности соединения.
// Если предыдущий Run завершился (обрыв, Close), клиент пересоздаётся.
func (c *Client) ensureRunning(ctx context.Context) error {
	if c.tgc != nil {
		select {
		case <-c.done:
			// Предыдущий Run умер; поднимем заново.
			logger.Debug("gotdclient: previous run finished, restarting",
				zap.String("phone", c.phone), zap.Error(c.runErr))
			c.tgc = nil
		default:
			return nil
		}
	}

	cl := c.build()
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})

	c.tgc = cl
	c.runCancel = cancel
	c.ready = ready
	c.done = done

	go func() {
		err := cl.Run(runCtx, func(innerCtx context.Context) error {
			close(ready)
			<-innerCtx.Done()
			return innerCtx.Err()
		})
		// Штатная остановка через cancel — не ошибка.
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("gotdclient: run finished", zap.String("phone", c.phone), zap.Error(err))
		}
		c.runErr = err
		close(done)
	}()

	select {
	case <-ready:
		return nil
	case <-done:
		c.tgc = nil
		if c.runErr == nil {
			return errors.New("telegram client stopped before becoming ready")
		}
		return c.runErr
	case <-time.After(connectTimeout):
		cancel()
		c.tgc = nil
		return errors.New("telegram connect timeout")
	case <-ctx.Done():
		cancel()
		c.tgc = nil
		return ctx.Err()
	}
}

// do выполняет одну операцию под таймаутом поверх живого соединения.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context, api *tg.Client) error) error {
	if err := c.ensureRunning(ctx); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	return fn(opCtx, c.tgc.API())
}

// Close гасит фоновый Run. Файл сессии остаётся на диске.
func (c *Client) Close() error {
	if c.tgc == nil {
		return nil
	}
	c.runCancel()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		logger.Warn("gotdclient: close timeout", zap.String("phone", c.phone))
	}
	c.tgc = nil
	return nil
}

// e164 — номер в виде, который ожидает Telegram API.
func (c *Client) e164() string {
	return phone.E164(c.phone)
}
