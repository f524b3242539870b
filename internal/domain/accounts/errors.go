// Файл errors.go — доменная таксономия ошибок аккаунтов и классификатор
// протокольных ошибок. Сырые строки MTProto (PHONE_CODE_INVALID, FLOOD_WAIT_42
// и т.п.) не должны утекать выше этого слоя иначе как внутри RemoteError.
package accounts

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tgerr"
)

// Kind — машинно-читаемый вид ошибки. Значения уходят в CLI/web как status.
type Kind string

const (
	KindInvalidPhone    Kind = "invalid_phone"
	KindAlreadyExists   Kind = "already_exists"
	KindNotFound        Kind = "not_found"
	KindInvalidCode     Kind = "invalid_code"
	KindCodeExpired     Kind = "code_expired"
	// KindPasswordRequired — сигнал «аккаунт под 2FA, нужен облачный пароль».
	// Не путать с KindInvalidPassword: здесь пароль ещё не вводился.
	KindPasswordRequired Kind = "password_required"
	KindInvalidPassword  Kind = "invalid_password"
	KindSignupRequired  Kind = "signup_required"
	KindFloodWait       Kind = "flood_wait"
	KindNotConnected    Kind = "not_connected"
	KindRemote          Kind = "remote_error"
	KindStorage         Kind = "storage_error"
)

// Error — ошибка доменного слоя с видом и полезной нагрузкой для вызывающего.
// Wait заполнен только для KindFloodWait, Hint/HasRecovery — для ветки 2FA.
type Error struct {
	Kind        Kind
	Message     string
	Wait        time.Duration
	Hint        string
	HasRecovery bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError создаёт доменную ошибку без причины.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// wrapError создаёт доменную ошибку с причиной.
func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// floodWaitError создаёт KindFloodWait с обязательной задержкой.
func floodWaitError(wait time.Duration, err error) *Error {
	return &Error{
		Kind:    KindFloodWait,
		Message: fmt.Sprintf("flood control, retry after %s", wait),
		Wait:    wait,
		Err:     err,
	}
}

// KindOf возвращает вид доменной ошибки или KindRemote для чужих ошибок.
func KindOf(err error) Kind {
	var domain *Error
	if errors.As(err, &domain) {
		return domain.Kind
	}
	return KindRemote
}

// IsKind сообщает, относится ли ошибка к заданному виду.
func IsKind(err error, kind Kind) bool {
	var domain *Error
	return errors.As(err, &domain) && domain.Kind == kind
}

// floodWaitRe вылавливает задержку из сырого текста FLOOD_WAIT_N,
// если ошибка пришла не в форме tgerr.Error.
var floodWaitRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// Classify переводит ошибку протокольной границы в доменную таксономию.
// Уже классифицированные ошибки возвращаются как есть. Всё нераспознанное
// оборачивается в RemoteError, сохраняя причину для логов.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var domain *Error
	if errors.As(err, &domain) {
		return domain
	}

	// Сигналы 2FA/регистрации протокольная граница отдаёт типизированно.
	var pwd *telegram.PasswordNeededError
	if errors.As(err, &pwd) {
		return &Error{
			Kind:        KindPasswordRequired,
			Message:     "2FA password required",
			Hint:        pwd.Hint,
			HasRecovery: pwd.HasRecovery,
			Err:         err,
		}
	}
	if errors.Is(err, telegram.ErrSignUpRequired) {
		return wrapError(KindSignupRequired, "phone number is not registered", err)
	}

	// Флуд-контроль: сначала типизированная форма gotd, затем текстовая.
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return floodWaitError(wait, err)
	}
	msg := err.Error()
	if m := floodWaitRe.FindStringSubmatch(msg); m != nil {
		seconds, _ := strconv.Atoi(m[1])
		return floodWaitError(time.Duration(seconds)*time.Second, err)
	}

	switch {
	case strings.Contains(msg, "PHONE_NUMBER_INVALID"),
		strings.Contains(msg, "PHONE_NUMBER_BANNED"):
		return wrapError(KindInvalidPhone, "phone number rejected", err)
	case strings.Contains(msg, "PHONE_CODE_EXPIRED"):
		return wrapError(KindCodeExpired, "confirmation code expired", err)
	case strings.Contains(msg, "PHONE_CODE_INVALID"),
		strings.Contains(msg, "PHONE_CODE_EMPTY"):
		return wrapError(KindInvalidCode, "confirmation code rejected", err)
	case strings.Contains(msg, "PASSWORD_HASH_INVALID"):
		return wrapError(KindInvalidPassword, "2FA password rejected", err)
	case strings.Contains(msg, "PHONE_NUMBER_UNOCCUPIED"):
		return wrapError(KindSignupRequired, "phone number is not registered", err)
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindRemote, "operation timed out", err)
	default:
		return wrapError(KindRemote, "remote error", err)
	}
}

// revokedMarkers — сырые коды, означающие, что сессия аннулирована удалённо.
var revokedMarkers = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
}

// isRevoked сообщает, что удалённая сторона больше не признаёт сессию
// (например, logout с другого устройства).
func isRevoked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range revokedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
