package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"telegram-linkgrabber/internal/domain/accounts"
	"telegram-linkgrabber/internal/domain/extraction"
	"telegram-linkgrabber/internal/domain/links"
	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/storage"

	"github.com/go-faster/errors"
)

// CommandExecutor - реализация интерфейса Executor поверх реестра аккаунтов,
// движка сбора и хранилища ссылок.
type CommandExecutor struct {
	registry    *accounts.Registry
	engine      *extraction.Engine
	store       *links.Store
	scanRunning int64 // флаг выполняющегося прогона
}

// NewExecutor создает новый экземпляр CommandExecutor.
func NewExecutor(registry *accounts.Registry, engine *extraction.Engine, store *links.Store) *CommandExecutor {
	return &CommandExecutor{
		registry: registry,
		engine:   engine,
		store:    store,
	}
}

// ok собирает успешный результат.
func ok(message string, payload any) *Result {
	return &Result{Success: true, Status: "ok", Message: message, Payload: payload}
}

// failure переводит доменную ошибку в результат с машиночитаемым статусом.
func failure(err error) *Result {
	var domain *accounts.Error
	if errors.As(err, &domain) {
		res := &Result{Success: false, Status: string(domain.Kind), Message: domain.Message}
		switch domain.Kind {
		case accounts.KindFloodWait:
			res.Payload = FloodPayload{WaitSeconds: int(domain.Wait.Seconds())}
		case accounts.KindPasswordRequired, accounts.KindInvalidPassword:
			if domain.Hint != "" || domain.HasRecovery {
				res.Payload = LoginPayload{
					State:       string(accounts.StatePasswordRequested),
					Hint:        domain.Hint,
					HasRecovery: domain.HasRecovery,
				}
			}
		}
		return res
	}
	return &Result{Success: false, Status: "error", Message: err.Error()}
}

// loginResult собирает результат успешного шага входа.
func loginResult(res *accounts.LoginResult, hint string, hasRecovery bool) *Result {
	payload := LoginPayload{
		State:        string(res.State),
		DeliveryType: res.DeliveryType,
		TimeoutSec:   int(res.Timeout.Seconds()),
		Hint:         hint,
		HasRecovery:  hasRecovery,
	}
	var message string
	switch res.State {
	case accounts.StateConnected:
		message = "account is connected"
	case accounts.StateCodeRequested:
		message = "confirmation code sent"
	case accounts.StatePasswordRequested:
		message = "2FA password required"
	default:
		message = string(res.State)
	}
	return ok(message, payload)
}

// AddAccount регистрирует номер и сразу начинает вход. Если номер уже в
// реестре, но не подключён, повторный вызов просто перезапускает вход.
func (e *CommandExecutor) AddAccount(ctx context.Context, phone string) *Result {
	if _, err := e.registry.Register(phone); err != nil && !accounts.IsKind(err, accounts.KindAlreadyExists) {
		return failure(err)
	}
	sess, err := e.registry.Get(phone)
	if err != nil {
		return failure(err)
	}
	res, err := sess.StartLogin(ctx)
	if err != nil {
		return failure(err)
	}
	return loginResult(res, "", false)
}

// SubmitCode передаёт код подтверждения для номера.
func (e *CommandExecutor) SubmitCode(ctx context.Context, phone, code string) *Result {
	sess, err := e.registry.Get(phone)
	if err != nil {
		return failure(err)
	}
	res, err := sess.SubmitCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return failure(err)
	}
	if res.State == accounts.StatePasswordRequested {
		hint, hasRecovery := sess.PasswordHint()
		return loginResult(res, hint, hasRecovery)
	}
	return loginResult(res, "", false)
}

// SubmitPassword передаёт облачный пароль 2FA для номера.
func (e *CommandExecutor) SubmitPassword(ctx context.Context, phone, password string) *Result {
	sess, err := e.registry.Get(phone)
	if err != nil {
		return failure(err)
	}
	res, err := sess.SubmitPassword(ctx, password)
	if err != nil {
		return failure(err)
	}
	return loginResult(res, "", false)
}

// RemoveAccount разлогинивает и удаляет аккаунт вместе с файлом сессии.
func (e *CommandExecutor) RemoveAccount(ctx context.Context, phone string) *Result {
	if err := e.registry.Remove(ctx, phone); err != nil {
		return failure(err)
	}
	return ok("account removed", nil)
}

// ListAccounts возвращает снимки всех аккаунтов.
func (e *CommandExecutor) ListAccounts(ctx context.Context) *Result {
	snapshots := e.registry.List()
	infos := make([]AccountInfo, 0, len(snapshots))
	for i := range snapshots {
		acc := snapshots[i]
		infos = append(infos, AccountInfo{
			Phone:         acc.Phone,
			Label:         acc.Label(),
			State:         string(acc.State),
			Username:      acc.Username,
			LastCheckTime: acc.LastCheckTime,
			LastError:     acc.LastError,
		})
	}
	return ok(fmt.Sprintf("%d account(s)", len(infos)), infos)
}

// RunExtraction запускает прогон сбора ссылок. Повторный запуск во время
// идущего прогона отклоняется, а не ставится в очередь.
func (e *CommandExecutor) RunExtraction(ctx context.Context) *Result {
	if !atomic.CompareAndSwapInt64(&e.scanRunning, 0, 1) {
		return &Result{Success: false, Status: "busy", Message: "extraction run is already in progress"}
	}
	defer atomic.StoreInt64(&e.scanRunning, 0)

	summary := e.engine.Run(ctx)
	payload := ScanPayload{
		AccountsProcessed: summary.AccountsProcessed,
		TotalAccounts:     summary.TotalAccounts,
		NewLinks:          summary.NewLinks,
		TotalLinks:        summary.TotalLinks,
		DurationMs:        summary.Duration.Milliseconds(),
	}
	for _, runErr := range summary.Errors {
		payload.Errors = append(payload.Errors, ScanError{Phone: runErr.Phone, Message: runErr.Message()})
	}
	message := fmt.Sprintf("scanned %d/%d account(s): %d new, %d total link(s)",
		summary.AccountsProcessed, summary.TotalAccounts, summary.NewLinks, summary.TotalLinks)
	return ok(message, payload)
}

// Links возвращает сохранённые ссылки; category и onlyNew фильтруют выдачу.
func (e *CommandExecutor) Links(ctx context.Context, category string, onlyNew bool) *Result {
	var (
		records []links.Record
		err     error
	)
	switch {
	case onlyNew:
		records, err = e.store.New()
	case category != "":
		records, err = e.store.ByCategory(category)
	default:
		records, err = e.store.All()
	}
	if err != nil {
		return failure(err)
	}

	infos := make([]LinkInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, LinkInfo{
			URL:          r.URL,
			Kind:         r.Kind,
			Source:       r.SourceLabel,
			Category:     r.Category,
			DiscoveredAt: r.DiscoveredAt,
		})
	}
	return ok(fmt.Sprintf("%d link(s)", len(infos)), infos)
}

// ClearNewLinks сбрасывает отметки «новая» со всех ссылок.
func (e *CommandExecutor) ClearNewLinks(ctx context.Context) *Result {
	if err := e.store.ClearNew(); err != nil {
		return failure(err)
	}
	return ok("new-link markers cleared", nil)
}

// ExportLinks выгружает все ссылки в CSV-файл по указанному пути.
func (e *CommandExecutor) ExportLinks(ctx context.Context, path string) *Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Result{Success: false, Status: "error", Message: "export path is empty"}
	}
	if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
		return failure(err)
	}

	file, err := os.Create(path) // #nosec G304 -- путь задаёт оператор
	if err != nil {
		return failure(errors.Wrap(err, "create export file"))
	}
	if err := e.store.ExportCSV(file); err != nil {
		_ = file.Close()
		return failure(err)
	}
	if err := file.Close(); err != nil {
		return failure(errors.Wrap(err, "close export file"))
	}
	logger.Infof("commands: links exported to %s", path)
	return ok(fmt.Sprintf("links exported to %s", path), nil)
}

// SetSourceCategory назначает источнику категорию по умолчанию.
func (e *CommandExecutor) SetSourceCategory(ctx context.Context, source, category string) *Result {
	category = strings.TrimSpace(category)
	if category == "" {
		return &Result{Success: false, Status: "error", Message: "category is empty"}
	}
	if err := e.store.SetSourceCategory(source, category); err != nil {
		return failure(err)
	}
	return ok(fmt.Sprintf("source %s assigned to category %s", links.NormalizeChannel(source), category), nil)
}

// SendMessage отправляет текст адресату от имени подключённого аккаунта.
func (e *CommandExecutor) SendMessage(ctx context.Context, phone, username, text string) *Result {
	sess, err := e.registry.Get(phone)
	if err != nil {
		return failure(err)
	}
	peer, err := sess.ResolveUsername(ctx, links.NormalizeChannel(username))
	if err != nil {
		return failure(err)
	}
	if err := sess.Send(ctx, *peer, text); err != nil {
		return failure(err)
	}
	return ok(fmt.Sprintf("message sent to @%s", links.NormalizeChannel(username)), nil)
}

// JoinInvite вступает в чат по инвайт-ссылке от имени аккаунта.
// Принимает обе формы: joinchat/<hash> и +<hash>, а также голый хэш.
func (e *CommandExecutor) JoinInvite(ctx context.Context, phone, invite string) *Result {
	sess, err := e.registry.Get(phone)
	if err != nil {
		return failure(err)
	}
	hash := inviteHash(invite)
	if hash == "" {
		return &Result{Success: false, Status: "error", Message: "invite link is empty"}
	}
	if err := sess.JoinInvite(ctx, hash); err != nil {
		return failure(err)
	}
	return ok("joined chat by invite", nil)
}

// Status возвращает сводку: аккаунты по состояниям, размер хранилища.
func (e *CommandExecutor) Status(ctx context.Context) *Result {
	payload := StatusPayload{Accounts: make(map[string]int)}
	for _, acc := range e.registry.List() {
		payload.Accounts[string(acc.State)]++
	}

	total, err := e.store.Count()
	if err != nil {
		return failure(err)
	}
	payload.TotalLinks = total

	fresh, err := e.store.New()
	if err != nil {
		return failure(err)
	}
	payload.NewLinks = len(fresh)

	return ok("status collected", payload)
}

// inviteHash извлекает хэш из инвайт-ссылки любой принимаемой формы.
func inviteHash(invite string) string {
	invite = strings.TrimSpace(invite)
	for _, prefix := range []string{"https://", "http://", "t.me/", "telegram.me/"} {
		invite = strings.TrimPrefix(invite, prefix)
	}
	invite = strings.TrimPrefix(invite, "joinchat/")
	invite = strings.TrimPrefix(invite, "+")
	return invite
}

var _ Executor = (*CommandExecutor)(nil)
