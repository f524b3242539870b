// Файл account.go — запись аккаунта и её JSON-представление в accounts.json.
package accounts

import (
	"strings"
	"time"
)

// State — состояние жизненного цикла аккаунта.
type State string

const (
	// StateDisconnected — нет живой авторизации; исходное состояние.
	StateDisconnected State = "disconnected"
	// StateCodeRequested — код отправлен, ждём подтверждения.
	StateCodeRequested State = "code_requested"
	// StatePasswordRequested — код принят, аккаунт защищён 2FA.
	StatePasswordRequested State = "password_requested"
	// StateSignupRequired — номер не зарегистрирован в Telegram.
	StateSignupRequired State = "signup_required"
	// StateConnected — авторизация подтверждена, операции доступны.
	StateConnected State = "connected"
	// StateError — невосстановимый сбой; выход только через новый логин.
	StateError State = "error"
)

// PendingAuth — промежуточные данные незавершённого логина. Хэш кода живёт
// только между sendCode и signIn, подсказка пароля — между signIn и 2FA.
type PendingAuth struct {
	CodeHash     string `json:"code_hash,omitempty"`
	DeliveryType string `json:"delivery_type,omitempty"`
	Hint         string `json:"hint,omitempty"`
	HasRecovery  bool   `json:"has_recovery,omitempty"`
}

// Account — персистентная запись аккаунта. Phone хранится в каноничном виде
// (только цифры) и служит ключом в реестре.
type Account struct {
	Phone         string       `json:"phone"`
	State         State        `json:"state"`
	UserID        int64        `json:"user_id,omitempty"`
	Username      string       `json:"username,omitempty"`
	FirstName     string       `json:"first_name,omitempty"`
	LastName      string       `json:"last_name,omitempty"`
	LastCheckTime time.Time    `json:"last_check_time,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Pending       *PendingAuth `json:"pending_auth,omitempty"`
}

// Label возвращает человекочитаемое имя аккаунта для CLI и логов.
func (a *Account) Label() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	switch {
	case name != "":
		return name
	case a.Username != "":
		return "@" + a.Username
	default:
		return "+" + a.Phone
	}
}

// Clone возвращает независимую копию записи для снимков наружу.
func (a *Account) Clone() Account {
	copied := *a
	if a.Pending != nil {
		pending := *a.Pending
		copied.Pending = &pending
	}
	return copied
}
