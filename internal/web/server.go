// Package web — JSON API для управления сборщиком: те же операции, что и в
// CLI, через commands.Executor. Доступ защищён токеном и cookie-сессиями.
package web

import (
	"context"
	"net/http"
	"time"

	"telegram-linkgrabber/internal/domain/commands"
	"telegram-linkgrabber/internal/infra/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 60 * time.Second // прогон сбора может занять десятки секунд
	idleTimeout  = 60 * time.Second

	cleanExpiredSessionsInterval = 3 * time.Minute
)

// Server представляет веб-сервер.
type Server struct {
	srv      *http.Server
	auth     *AuthManager
	executor commands.Executor
	cancel   context.CancelFunc
}

// NewServer создает веб-сервер. Пустой token включает автогенерацию:
// действующее значение печатается в лог при старте.
func NewServer(executor commands.Executor, addr, token string) *Server {
	s := &Server{
		auth:     NewAuthManager(time.Hour, token),
		executor: executor,
	}

	mux := http.NewServeMux()

	// Публичные эндпоинты (без авторизации).
	mux.HandleFunc("/health", s.handleHealth)

	// Защищенные эндпоинты (требуют авторизации).
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", s.handleStatus)
	protected.HandleFunc("GET /api/accounts", s.handleListAccounts)
	protected.HandleFunc("POST /api/accounts", s.handleAddAccount)
	protected.HandleFunc("POST /api/accounts/code", s.handleSubmitCode)
	protected.HandleFunc("POST /api/accounts/password", s.handleSubmitPassword)
	protected.HandleFunc("POST /api/accounts/remove", s.handleRemoveAccount)
	protected.HandleFunc("POST /api/scan", s.handleScan)
	protected.HandleFunc("GET /api/links", s.handleLinks)
	protected.HandleFunc("POST /api/links/clearnew", s.handleClearNew)
	protected.HandleFunc("GET /api/links/export.csv", s.handleExportCSV)
	protected.HandleFunc("POST /api/sources/category", s.handleSetSourceCategory)

	mux.Handle("/", s.authMiddleware(protected))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Start запускает веб-сервер и блокирует до его остановки.
func (s *Server) Start() error {
	logger.Info("Starting web server",
		zap.String("address", s.srv.Addr),
		zap.String("token", s.auth.Token()))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.cleanupLoop(ctx)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

// Shutdown корректно останавливает веб-сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	if s.cancel != nil {
		s.cancel()
	}
	return s.srv.Shutdown(ctx)
}

// cleanupLoop периодически очищает истекшие сессии.
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanExpiredSessionsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.auth.CleanupExpired()
		}
	}
}
