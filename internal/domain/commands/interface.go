// Package commands предоставляет общий интерфейс для выполнения команд
// управления сборщиком. Команды используются как CLI-адаптером, так и
// веб-интерфейсом; каждая возвращает структурированный результат, а не
// бросает ошибку через границу.
package commands

import (
	"context"
	"time"
)

// Executor - интерфейс для выполнения команд управления сборщиком.
type Executor interface {
	// AddAccount регистрирует номер и сразу начинает процедуру входа.
	AddAccount(ctx context.Context, phone string) *Result

	// SubmitCode передаёт код подтверждения для номера.
	SubmitCode(ctx context.Context, phone, code string) *Result

	// SubmitPassword передаёт облачный пароль 2FA для номера.
	SubmitPassword(ctx context.Context, phone, password string) *Result

	// RemoveAccount разлогинивает и удаляет аккаунт вместе с файлом сессии.
	RemoveAccount(ctx context.Context, phone string) *Result

	// ListAccounts возвращает снимки всех аккаунтов.
	ListAccounts(ctx context.Context) *Result

	// RunExtraction запускает прогон сбора ссылок по подключённым аккаунтам.
	RunExtraction(ctx context.Context) *Result

	// Links возвращает сохранённые ссылки; category и onlyNew фильтруют выдачу.
	Links(ctx context.Context, category string, onlyNew bool) *Result

	// ClearNewLinks сбрасывает отметки «новая» со всех ссылок.
	ClearNewLinks(ctx context.Context) *Result

	// ExportLinks выгружает все ссылки в CSV-файл по указанному пути.
	ExportLinks(ctx context.Context, path string) *Result

	// SetSourceCategory назначает источнику категорию по умолчанию.
	SetSourceCategory(ctx context.Context, source, category string) *Result

	// SendMessage отправляет текст адресату от имени подключённого аккаунта.
	SendMessage(ctx context.Context, phone, username, text string) *Result

	// JoinInvite вступает в чат по инвайт-ссылке от имени аккаунта.
	JoinInvite(ctx context.Context, phone, invite string) *Result

	// Status возвращает сводку: аккаунты по состояниям, размер хранилища.
	Status(ctx context.Context) *Result
}

// Result - структурированный итог команды. Status машиночитаем: "ok" либо
// вид ошибки доменной таксономии; Message — человекочитаемое пояснение.
type Result struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// LoginPayload - данные незавершённого или завершённого входа.
type LoginPayload struct {
	State        string `json:"state"`
	DeliveryType string `json:"delivery_type,omitempty"` // канал доставки кода
	TimeoutSec   int    `json:"timeout_sec,omitempty"`   // когда можно повторить отправку
	Hint         string `json:"hint,omitempty"`          // подсказка пароля 2FA
	HasRecovery  bool   `json:"has_recovery,omitempty"`
}

// FloodPayload - задержка флуд-контроля.
type FloodPayload struct {
	WaitSeconds int `json:"wait_seconds"`
}

// AccountInfo - снимок одного аккаунта для выдачи наружу.
type AccountInfo struct {
	Phone         string    `json:"phone"`
	Label         string    `json:"label"`
	State         string    `json:"state"`
	Username      string    `json:"username,omitempty"`
	LastCheckTime time.Time `json:"last_check_time,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

// ScanPayload - итог прогона сбора ссылок.
type ScanPayload struct {
	AccountsProcessed int         `json:"accounts_processed"`
	TotalAccounts     int         `json:"total_accounts"`
	NewLinks          int         `json:"new_links"`
	TotalLinks        int         `json:"total_links"`
	DurationMs        int64       `json:"duration_ms"`
	Errors            []ScanError `json:"errors,omitempty"`
}

// ScanError - сбой одного аккаунта внутри прогона.
type ScanError struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// LinkInfo - одна сохранённая ссылка.
type LinkInfo struct {
	URL          string    `json:"url"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source,omitempty"`
	Category     string    `json:"category"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// StatusPayload - сводка по реестру и хранилищу.
type StatusPayload struct {
	Accounts   map[string]int `json:"accounts"` // состояние → количество
	TotalLinks int            `json:"total_links"`
	NewLinks   int            `json:"new_links"`
}
