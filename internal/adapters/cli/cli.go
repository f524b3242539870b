// Package cli — интерактивная командная консоль для управления сборщиком.
// Сервис стартует фоном, читает команды из readline и транслирует их в
// commands.Executor — та же командная поверхность, что у веб-интерфейса.
// Поддерживается корректная интеграция в lifecycle: Start/Stop идемпотентны.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"telegram-linkgrabber/internal/domain/commands"
	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/pr"

	"golang.org/x/term"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "add <phone>", description: "Register an account and request a login code"},
	{name: "code <phone> <code>", description: "Submit the confirmation code"},
	{name: "password <phone>", description: "Submit the 2FA cloud password (no echo)"},
	{name: "remove <phone>", description: "Log out and remove an account with its session file"},
	{name: "accounts", description: "List registered accounts and their states"},
	{name: "scan", description: "Run link extraction over connected accounts"},
	{name: "links [category|new]", description: "Print stored links, optionally filtered"},
	{name: "clearnew", description: "Clear the new-link markers"},
	{name: "export <path>", description: "Export all links to a CSV file"},
	{name: "setcat <source> <category>", description: "Assign a default category to a source"},
	{name: "send <phone> <user> <text>", description: "Send a message from a connected account"},
	{name: "join <phone> <invite>", description: "Join a chat by invite link"},
	{name: "status", description: "Show accounts summary and link counters"},
	{name: "exit", description: "Stop CLI and terminate the service"},
}

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
// Имеет собственный cancel, запускает цикл чтения команд в отдельной горутине
// и синхронно закрывается через Stop().
type Service struct {
	exec      commands.Executor  // командная поверхность, общая с веб-слоем
	stopApp   context.CancelFunc // внешняя отмена приложения (exit, Ctrl-C на пустой строке)
	cancel    context.CancelFunc // локальная отмена run-цикла CLI
	wg        sync.WaitGroup     // ожидание завершения фоновой горутины run
	onceStart sync.Once          // идемпотентный запуск
	onceStop  sync.Once          // идемпотентная остановка
}

// NewService создаёт CLI-сервис поверх исполнителя команд.
func NewService(exec commands.Executor, stopApp context.CancelFunc) *Service {
	return &Service{exec: exec, stopApp: stopApp}
}

// Start запускает основной цикл CLI в отдельной горутине. Повторные вызовы
// безопасно игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	})
}

// Stop завершает CLI: прерывает readline, отменяет локальный контекст и
// дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// run — основной цикл обработчика CLI: печатает подсказки, устанавливает
// обработчики клавиш и построчно читает команды.
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		rl := pr.Rl()
		if rl == nil {
			logger.Debug("CLI: readline is not available")
			return
		}
		line, err := rl.Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(ctx, cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения;
//   - Ctrl-C на непустой строке — очистка текущей строки.
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	for _, d := range commandDescriptors {
		pr.Printf("  %-28s %s\n", d.name, d.description)
	}
}

// joinCommandNames собирает короткий список имён команд для приветствия.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		name, _, _ := strings.Cut(d.name, " ")
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// handleCommand разбирает введённую команду и выполняет соответствующее
// действие. Возвращает true, если команда инициирует завершение CLI.
func (s *Service) handleCommand(ctx context.Context, cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help":
		printCommandHelp()
	case "add":
		if !requireArgs(args, 1, "add <phone>") {
			break
		}
		s.render(s.exec.AddAccount(ctx, args[0]))
	case "code":
		if !requireArgs(args, 2, "code <phone> <code>") {
			break
		}
		s.render(s.exec.SubmitCode(ctx, args[0], args[1]))
	case "password":
		if !requireArgs(args, 1, "password <phone>") {
			break
		}
		s.handlePassword(ctx, args[0])
	case "remove":
		if !requireArgs(args, 1, "remove <phone>") {
			break
		}
		s.render(s.exec.RemoveAccount(ctx, args[0]))
	case "accounts":
		s.render(s.exec.ListAccounts(ctx))
	case "scan":
		pr.Println("Scanning connected accounts...")
		s.render(s.exec.RunExtraction(ctx))
	case "links":
		category, onlyNew := "", false
		if len(args) > 0 {
			if args[0] == "new" {
				onlyNew = true
			} else {
				category = args[0]
			}
		}
		s.render(s.exec.Links(ctx, category, onlyNew))
	case "clearnew":
		s.render(s.exec.ClearNewLinks(ctx))
	case "export":
		if !requireArgs(args, 1, "export <path>") {
			break
		}
		s.render(s.exec.ExportLinks(ctx, args[0]))
	case "setcat":
		if !requireArgs(args, 2, "setcat <source> <category>") {
			break
		}
		s.render(s.exec.SetSourceCategory(ctx, args[0], args[1]))
	case "send":
		if len(args) < 3 {
			pr.ErrPrintln("usage: send <phone> <user> <text>")
			break
		}
		s.render(s.exec.SendMessage(ctx, args[0], args[1], strings.Join(args[2:], " ")))
	case "join":
		if !requireArgs(args, 2, "join <phone> <invite>") {
			break
		}
		s.render(s.exec.JoinInvite(ctx, args[0], args[1]))
	case "status":
		s.render(s.exec.Status(ctx))
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	default:
		pr.Println("unknown command:", cmd)
	}
	return false
}

// handlePassword читает пароль без эха и передаёт его исполнителю.
func (s *Service) handlePassword(ctx context.Context, phone string) {
	password, err := readSecret("2FA password: ")
	if err != nil {
		pr.ErrPrintln("password input error:", err)
		return
	}
	s.render(s.exec.SubmitPassword(ctx, phone, password))
}

// readSecret читает строку без эха: через readline, затем через терминал,
// в крайнем случае — открытым текстом (не-интерактивный stdin).
func readSecret(prompt string) (string, error) {
	if rl := pr.Rl(); rl != nil {
		raw, err := rl.ReadPassword(prompt)
		return string(raw), err
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(raw), err
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	return strings.TrimSpace(line), err
}

// requireArgs проверяет арность команды, печатая usage при несовпадении.
func requireArgs(args []string, want int, usage string) bool {
	if len(args) != want {
		pr.ErrPrintln("usage: " + usage)
		return false
	}
	return true
}

// render печатает результат команды: сообщение и полезную нагрузку.
func (s *Service) render(res *commands.Result) {
	if res == nil {
		return
	}
	if !res.Success {
		pr.ErrPrintf("error (%s): %s\n", res.Status, res.Message)
		if flood, ok := res.Payload.(commands.FloodPayload); ok {
			pr.ErrPrintf("  retry after %d second(s)\n", flood.WaitSeconds)
		}
		if login, ok := res.Payload.(commands.LoginPayload); ok && login.Hint != "" {
			pr.ErrPrintf("  password hint: %s\n", login.Hint)
		}
		return
	}

	pr.Println(res.Message)
	switch payload := res.Payload.(type) {
	case nil:
	case []commands.AccountInfo:
		for _, acc := range payload {
			line := fmt.Sprintf("  +%-15s %-20s %s", acc.Phone, acc.State, acc.Label)
			if !acc.LastCheckTime.IsZero() {
				line += "  last scan " + acc.LastCheckTime.Local().Format("2006-01-02 15:04")
			}
			if acc.LastError != "" {
				line += "  (" + acc.LastError + ")"
			}
			pr.Println(line)
		}
	case []commands.LinkInfo:
		for _, link := range payload {
			pr.Printf("  %-10s %-12s %s\n", link.Category, link.Kind, link.URL)
		}
	case commands.LoginPayload:
		if payload.DeliveryType != "" {
			pr.Printf("  code delivery: %s\n", payload.DeliveryType)
		}
		if payload.Hint != "" {
			pr.Printf("  password hint: %s\n", payload.Hint)
		}
	default:
		pr.PP(payload)
	}
}
