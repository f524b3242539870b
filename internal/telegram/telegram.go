// Package telegram описывает узкую протокольную границу, за которой живёт
// MTProto-клиент. Весь доменный код зависит только от интерфейса Client и его
// DTO; конкретная реализация (gotd) подключается в точке сборки приложения.
// Ошибки протокола возвращаются «как есть» — классификацию в доменную
// таксономию выполняет вышестоящий слой (internal/domain/accounts).
package telegram

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// SentCode — результат отправки кода подтверждения на номер.
type SentCode struct {
	CodeHash     string        // opaque-хэш, обязан вернуться вместе с кодом
	DeliveryType string        // канал доставки: app, sms, call, ...
	Timeout      time.Duration // через сколько можно запросить повторную отправку; 0 — неизвестно
}

// Profile — данные владельца авторизованной сессии.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Виды собеседников в Dialogs. Значения сериализуются в JSON реестра, не менять.
const (
	PeerUser    = "user"
	PeerChat    = "chat"
	PeerChannel = "channel"
)

// Dialog — один диалог (чат, группа или канал) из списка аккаунта.
// ID и AccessHash достаточны, чтобы адресовать историю и отправку сообщений.
type Dialog struct {
	Kind       string
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	Broadcast  bool // широковещательный канал (не группа)
}

// Message — одно сообщение истории. Нас интересует только текст и позиция.
type Message struct {
	ID   int
	Date time.Time
	Text string
}

// PasswordNeededError сигнализирует, что после кода требуется облачный пароль (2FA).
// Hint и HasRecovery поднимаются наверх, чтобы оператору было что показать.
type PasswordNeededError struct {
	Hint        string
	HasRecovery bool
}

func (e *PasswordNeededError) Error() string {
	return "2FA password required"
}

// ErrSignUpRequired возвращается, когда номер не зарегистрирован в Telegram.
// Автоматическая регистрация сознательно не поддерживается.
var ErrSignUpRequired = errors.New("phone number is not registered, sign up required")

// ErrAlreadyAuthorized возвращается из SendCode, если восстановленная сессия
// уже авторизована и код не требуется (ветка «немедленный успех»).
var ErrAlreadyAuthorized = errors.New("session is already authorized")

// Client — операции протокольной границы, доступные одному аккаунту.
// Реализация не обязана быть потокобезопасной: аккаунт-сессия сериализует
// вызовы сама (single-flight на аккаунт).
type Client interface {
	// SendCode начинает логин: Telegram отправляет код подтверждения на номер.
	SendCode(ctx context.Context, phone string) (*SentCode, error)
	// SignIn завершает логин кодом. Возможные ошибки: *PasswordNeededError,
	// ErrSignUpRequired, протокольные ошибки (неверный/просроченный код).
	SignIn(ctx context.Context, phone, code, codeHash string) (*Profile, error)
	// CheckPassword завершает логин облачным паролем (2FA).
	CheckPassword(ctx context.Context, password string) (*Profile, error)
	// Authorized выполняет живую проверку авторизации на стороне Telegram.
	Authorized(ctx context.Context) (bool, error)
	// Self возвращает профиль владельца сессии.
	Self(ctx context.Context) (*Profile, error)
	// LogOut аннулирует сессию на стороне Telegram.
	LogOut(ctx context.Context) error

	// Dialogs возвращает до limit диалогов аккаунта.
	Dialogs(ctx context.Context, limit int) ([]Dialog, error)
	// History читает до limit сообщений истории peer, начиная с offsetID (0 — с конца).
	History(ctx context.Context, peer Dialog, limit, offsetID int) ([]Message, error)
	// SendMessage отправляет текст в указанный диалог.
	SendMessage(ctx context.Context, peer Dialog, text string) error
	// ResolveUsername находит канал/пользователя по публичному имени.
	ResolveUsername(ctx context.Context, username string) (*Dialog, error)
	// JoinInvite вступает в чат по инвайт-хэшу (joinchat/<hash> или +<hash>).
	JoinInvite(ctx context.Context, hash string) error

	// Close разрывает соединение и освобождает ресурсы клиента.
	// Файл сессии при этом не трогается.
	Close() error
}

// Factory создаёт протокольного клиента для одного номера и управляет
// файлами сессий. Номер передаётся в канонической форме (только цифры).
type Factory interface {
	New(phone string) (Client, error)
	// RemoveSession удаляет файл сессии номера с диска.
	// Отсутствующий файл ошибкой не считается.
	RemoveSession(phone string) error
}
