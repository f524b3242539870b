// Package app — верхний уровень сборки и инициализации сборщика ссылок.
// Здесь связываются конфигурация, фабрика протокольных клиентов, реестр
// аккаунтов, хранилище ссылок, движок сбора и адаптеры (CLI, web). Отсюда
// стартуют фоновые сервисы и обеспечивается корректный shutdown.
package app

import (
	"context"
	"sync"
	"time"

	"telegram-linkgrabber/internal/adapters/cli"
	"telegram-linkgrabber/internal/domain/accounts"
	"telegram-linkgrabber/internal/domain/commands"
	"telegram-linkgrabber/internal/domain/extraction"
	"telegram-linkgrabber/internal/domain/links"
	"telegram-linkgrabber/internal/infra/config"
	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/telegram/gotdclient"
	"telegram-linkgrabber/internal/web"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// shutdownTimeout — сколько ждём корректной остановки веб-сервера.
const shutdownTimeout = 5 * time.Second

// App агрегирует зависимости сборщика и управляет их связью.
// Отвечает за:
//   - фабрику per-account MTProto-клиентов и реестр аккаунтов,
//   - хранилище ссылок с классификатором категорий,
//   - движок сбора и его планировщик,
//   - адаптеры управления (CLI-консоль, web JSON API),
//   - graceful shutdown всего перечисленного.
type App struct {
	mainCtx    context.Context    // контекст жизненного цикла приложения
	mainCancel context.CancelFunc // инициирует отмену mainCtx

	registry  *accounts.Registry
	store     *links.Store
	engine    *extraction.Engine
	scheduler *extraction.Scheduler
	executor  commands.Executor
	cliSvc    *cli.Service
	webSrv    *web.Server
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация
// выполняется в Init().
func NewApp() *App {
	return &App{}
}

// Init собирает все подсистемы. mainCancel используется адаптерами как
// «глобальная» остановка приложения (команда exit, Ctrl-C).
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc) error {
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel
	env := config.Env()

	factory := gotdclient.NewFactory(gotdclient.Options{
		APIID:       env.APIID,
		APIHash:     env.APIHash,
		SessionsDir: env.SessionsDir,
		ThrottleRPS: env.ThrottleRPS,
		OpTimeout:   config.OpTimeout(),
		TestDC:      env.TestDC,
	})

	registry, err := accounts.NewRegistry(env.AccountsFile, factory)
	if err != nil {
		return errors.Wrap(err, "init account registry")
	}
	a.registry = registry

	categories, err := links.LoadCategories(env.CategoriesFile)
	if err != nil {
		return errors.Wrap(err, "load categories")
	}
	store, err := links.Open(env.LinksDB, links.NewClassifier(categories))
	if err != nil {
		return errors.Wrap(err, "open link store")
	}
	a.store = store

	a.engine = extraction.New(
		extraction.RegistrySource{Registry: registry},
		store,
		extraction.Options{
			DialogLimit:  env.ScanDialogLimit,
			MessageLimit: env.ScanMessageLimit,
			Workers:      env.ScanWorkers,
		},
	)
	a.scheduler = extraction.NewScheduler(a.engine, time.Duration(env.ScanIntervalMin)*time.Minute)

	a.executor = commands.NewExecutor(registry, a.engine, store)
	a.cliSvc = cli.NewService(a.executor, mainCancel)

	if env.WebServerEnable {
		a.webSrv = web.NewServer(a.executor, env.WebServerAddress, env.WebAuthToken)
	}
	return nil
}

// Run запускает фоновые сервисы и блокируется до остановки приложения,
// после чего закрывает подсистемы в обратном порядке.
func (a *App) Run() error {
	logger.Info("Link grabber starting",
		zap.Int("accounts", len(a.registry.List())))

	var wg sync.WaitGroup

	// Планировщик фоновых прогонов (no-op при нулевом интервале).
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(a.mainCtx)
	}()

	// Веб-сервер: его падение валит приложение целиком.
	webErr := make(chan error, 1)
	if a.webSrv != nil {
		go func() {
			if err := a.webSrv.Start(); err != nil {
				webErr <- err
				a.mainCancel()
			}
		}()
	}

	a.cliSvc.Start(a.mainCtx)

	<-a.mainCtx.Done()
	logger.Info("Shutting down...")

	if a.webSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.webSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("web server shutdown: %v", err)
		}
		cancel()
	}
	a.cliSvc.Stop()
	wg.Wait()

	a.registry.Close()
	if err := a.store.Close(); err != nil {
		logger.Warnf("link store close: %v", err)
	}

	select {
	case err := <-webErr:
		return errors.Wrap(err, "web server")
	default:
		return nil
	}
}
