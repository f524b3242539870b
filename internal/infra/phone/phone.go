// Package phone — каноническая форма телефонных номеров.
// Внутренний формат во всём приложении один: только цифры, без «+», пробелов
// и разделителей. Нормализация применяется на каждой границе (CLI, web, реестр),
// чтобы один и тот же аккаунт нельзя было завести дважды в разных написаниях.
package phone

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrEmpty возвращается, когда после нормализации не осталось ни одной цифры.
var ErrEmpty = errors.New("phone number contains no digits")

// minDigits — нижняя граница длины номера в международном формате.
const minDigits = 7

// Normalize приводит номер к канонической форме: выбрасывает всё, кроме цифр.
// Идемпотентна: Normalize(Normalize(p)) == Normalize(p).
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Parse нормализует номер и проверяет минимальную правдоподобность.
// Формат страны не валидируется: окончательное слово за Telegram (PHONE_NUMBER_INVALID).
func Parse(raw string) (string, error) {
	p := Normalize(raw)
	if p == "" {
		return "", ErrEmpty
	}
	if len(p) < minDigits {
		return "", errors.Errorf("phone number too short: %q", raw)
	}
	return p, nil
}

// E164 возвращает номер в виде, который ожидает Telegram API: с ведущим «+».
// Хранится номер всегда без плюса; плюс добавляется только на выходе к протоколу.
func E164(normalized string) string {
	if normalized == "" {
		return ""
	}
	return "+" + normalized
}
