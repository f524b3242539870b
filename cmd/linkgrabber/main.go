package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"telegram-linkgrabber/internal/app"
	"telegram-linkgrabber/internal/infra/config"
	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/pr"
)

func main() {
	if err := pr.Init(); err != nil {
		logger.Fatal("failed to assigning stdout and stderr", zap.Error(err))
	}

	// envPath определяет расположение .env с секретами и общими настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	// config.Load загружает конфигурацию из .env и других источников.
	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	env := config.Env()

	// Часовая зона приложения вычисляется при загрузке конфига. Влияет глобально на time.Local.
	time.Local = config.AppLocation //nolint:reassign // намеренно задаём часовую зону процесса

	// logger.Init задаёт уровень, InitFile подключает файловый sink с ротацией,
	// а SetWriters перенаправляет выводы в подсистему pr (чтобы видеть логи в CLI UI).
	logger.Init(env.LogLevel)
	if env.LogFile != "" {
		logger.InitFile(logger.FileConfig{
			Path:       env.LogFile,
			Level:      env.LogFileLevel,
			MaxSizeMB:  env.LogFileMaxSize,
			MaxBackups: env.LogFileMaxBackups,
			MaxAgeDays: env.LogFileMaxAge,
			Compress:   env.LogFileCompress,
		})
	}
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	// Контекст с обработкой системных сигналов (Ctrl+C/SIGTERM). Важно: stop() нужно вызвать, чтобы снять подписку.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Собираем приложение и передаём ему контекст жизненного цикла и stop как внешнюю CancelFunc.
	a := app.NewApp()
	if iniErr := a.Init(ctx, stop); iniErr != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(iniErr))
	}

	// Запускаем основной цикл; блокируется до shutdown. Ошибки — фатальны, инициируем остановку и выходим.
	if runErr := a.Run(); runErr != nil {
		stop()
		logger.Fatal("app run failed", zap.Error(runErr))
	}
	// Освобождаем обработчик сигналов и закрываем ресурсы bootstrap-уровня.
	stop()
	logger.Info("Graceful shutdown complete")
}
