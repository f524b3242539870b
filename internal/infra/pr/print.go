// Package pr — унифицированный вывод для интерактивной консоли оператора.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его
// буферы и даёт удобные функции печати. Мьютекс защищает только смену целевых
// writer'ов; записи сериализуются на стороне самих writer'ов (rl.Stdout безопасен).
package pr

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
)

var (
	// rl — активный инстанс readline. Появляется после Init(); до этого nil.
	rl *readline.Instance
	// out — текущий поток стандартного вывода. После Init() указывает на rl.Stdout().
	out io.Writer = os.Stdout
	// errOut — поток вывода ошибок. После Init() — rl.Stderr().
	errOut io.Writer = os.Stderr
	// mu защищает замену ссылок на writer'ы и cancelableIn.
	mu sync.Mutex

	// cancelableIn — дескриптор stdin, закрытие которого прерывает чтение (io.EOF в readline).
	cancelableIn interface{ Close() error }
)

// Init настраивает readline и перенаправляет потоки вывода на его stdout/stderr.
// Cancelable stdin позволяет прервать ожидание ввода при shutdown. Повторный вызов не предусмотрен.
func Init() error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}
	rl = newRl

	mu.Lock()
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF и возвращается.
// Идемпотентна: повторное закрытие проигнорируется реализацией.
func InterruptReadline() {
	if cancelableIn != nil {
		_ = cancelableIn.Close()
	}
}

// SetPrompt задаёт строку приглашения. No-op до Init().
func SetPrompt(prompt string) {
	if rl != nil {
		rl.SetPrompt(prompt)
	}
}

// Rl возвращает текущий инстанс readline (nil, если Init() не вызывался).
func Rl() *readline.Instance {
	return rl
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// Print печатает значения в Stdout без перевода строки.
func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

// Println печатает значения в Stdout и добавляет перевод строки. Работает и до Init().
func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

// Printf форматирует строку и печатает её в Stdout.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

// ErrPrintln печатает значения в Stderr и добавляет перевод строки.
func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

// ErrPrintf форматирует строку и печатает её в Stderr.
func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-печатает значение в Stdout. Для отладочных команд консоли; аллоцирует.
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}
