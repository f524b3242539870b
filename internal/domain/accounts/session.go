// Файл session.go — конечный автомат жизненного цикла одного аккаунта.
// Session сериализует все операции над аккаунтом (single-flight на номер):
// пока идёт логин или скан, параллельный вызов того же аккаунта ждёт мьютекс.
package accounts

import (
	"context"
	"time"

	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
)

// LoginResult — итог startLogin для вызывающего слоя.
type LoginResult struct {
	State        State
	DeliveryType string        // канал доставки кода, если код отправлен
	Timeout      time.Duration // когда можно запросить повторную отправку
}

// Session — аккаунт вместе с его протокольным клиентом. Все переходы
// состояния проходят через Session и фиксируются в реестре через persist.
type Session struct {
	acc    *Account
	client telegram.Client

	// persist атомарно сохраняет весь документ реестра.
	persist func() error
	// removeBlob удаляет файл сессии аккаунта с диска.
	removeBlob func() error

	// lock/unlock сериализуют операции аккаунта; мьютексом владеет реестр.
	lock   func()
	unlock func()
}

// Phone возвращает канонический номер аккаунта.
func (s *Session) Phone() string { return s.acc.Phone }

// StartLogin запускает процедуру входа. Если восстановленная сессия уже
// авторизована, логин завершается сразу без кода. Допустим из любого
// состояния, кроме Connected и PasswordRequested: повторный вызов из
// CodeRequested означает повторную отправку кода.
func (s *Session) StartLogin(ctx context.Context) (*LoginResult, error) {
	s.lock()
	defer s.unlock()

	switch s.acc.State {
	case StateConnected:
		return nil, NewError(KindAlreadyExists, "account is already connected")
	case StatePasswordRequested:
		return nil, NewError(KindNotConnected, "2FA password is pending, submit it or log out")
	}

	sent, err := s.client.SendCode(ctx, s.acc.Phone)
	if errors.Is(err, telegram.ErrAlreadyAuthorized) {
		// Ветка немедленного успеха: файл сессии пережил перезапуск.
		if err := s.completeLogin(ctx); err != nil {
			return nil, err
		}
		return &LoginResult{State: StateConnected}, nil
	}
	if err != nil {
		classified := Classify(err)
		s.noteFailure(classified)
		return nil, classified
	}

	prevState, prevPending := s.acc.State, s.acc.Pending
	s.acc.State = StateCodeRequested
	s.acc.LastError = ""
	s.acc.Pending = &PendingAuth{
		CodeHash:     sent.CodeHash,
		DeliveryType: sent.DeliveryType,
	}
	if err := s.persist(); err != nil {
		// Сбой диска откатывает переход: запись на диске и ответ вызывающему
		// не должны разойтись.
		s.acc.State, s.acc.Pending = prevState, prevPending
		return nil, wrapError(KindStorage, "failed to persist accounts", err)
	}
	return &LoginResult{
		State:        StateCodeRequested,
		DeliveryType: sent.DeliveryType,
		Timeout:      sent.Timeout,
	}, nil
}

// SubmitCode передаёт код подтверждения. Допустим только из CodeRequested.
// Неверный код оставляет аккаунт в CodeRequested для повторной попытки.
func (s *Session) SubmitCode(ctx context.Context, code string) (*LoginResult, error) {
	s.lock()
	defer s.unlock()

	if s.acc.State != StateCodeRequested || s.acc.Pending == nil {
		return nil, NewError(KindNotConnected, "no confirmation code was requested")
	}

	profile, err := s.client.SignIn(ctx, s.acc.Phone, code, s.acc.Pending.CodeHash)
	if err != nil {
		classified := Classify(err)
		var domain *Error
		if errors.As(classified, &domain) {
			switch domain.Kind {
			case KindPasswordRequired:
				// Код принят, но аккаунт под 2FA: переходим к паролю.
				prevState, prevPending := s.acc.State, *s.acc.Pending
				s.acc.State = StatePasswordRequested
				s.acc.Pending.CodeHash = ""
				s.acc.Pending.Hint = domain.Hint
				s.acc.Pending.HasRecovery = domain.HasRecovery
				if err := s.persist(); err != nil {
					s.acc.State, *s.acc.Pending = prevState, prevPending
					return nil, wrapError(KindStorage, "failed to persist accounts", err)
				}
				return &LoginResult{State: StatePasswordRequested}, nil
			case KindSignupRequired:
				s.acc.State = StateSignupRequired
				s.acc.Pending = nil
				s.persistBestEffort()
				return nil, classified
			case KindInvalidCode, KindCodeExpired, KindFloodWait:
				// Состояние не меняется: оператор может повторить ввод.
				return nil, classified
			}
		}
		s.noteFailure(classified)
		return nil, classified
	}

	if err := s.applyProfile(profile); err != nil {
		return nil, err
	}
	return &LoginResult{State: StateConnected}, nil
}

// SubmitPassword передаёт облачный пароль 2FA. Допустим только из
// PasswordRequested; неверный пароль оставляет состояние на месте.
func (s *Session) SubmitPassword(ctx context.Context, password string) (*LoginResult, error) {
	s.lock()
	defer s.unlock()

	if s.acc.State != StatePasswordRequested {
		return nil, NewError(KindNotConnected, "no 2FA password was requested")
	}

	profile, err := s.client.CheckPassword(ctx, password)
	if err != nil {
		classified := Classify(err)
		switch KindOf(classified) {
		case KindInvalidPassword, KindFloodWait:
			return nil, classified
		}
		s.noteFailure(classified)
		return nil, classified
	}

	if err := s.applyProfile(profile); err != nil {
		return nil, err
	}
	return &LoginResult{State: StateConnected}, nil
}

// PasswordHint возвращает подсказку пароля 2FA, если она есть.
func (s *Session) PasswordHint() (hint string, hasRecovery bool) {
	s.lock()
	defer s.unlock()
	if s.acc.Pending == nil {
		return "", false
	}
	return s.acc.Pending.Hint, s.acc.Pending.HasRecovery
}

// IsConnected выполняет живую проверку авторизации. Если реальность
// разошлась с сохранённым состоянием (logout с другого устройства, удалённый
// файл сессии), состояние корректируется и сохраняется.
func (s *Session) IsConnected(ctx context.Context) bool {
	s.lock()
	defer s.unlock()
	return s.isConnectedLocked(ctx)
}

func (s *Session) isConnectedLocked(ctx context.Context) bool {
	ok, err := s.client.Authorized(ctx)
	if err != nil {
		// Транзитные сетевые сбои не повод ронять состояние на диске.
		if isRevoked(err) {
			s.markDisconnected()
		}
		logger.Debugf("account %s: authorization check failed: %v", s.acc.Phone, err)
		return false
	}

	switch {
	case ok && s.acc.State != StateConnected:
		s.acc.State = StateConnected
		s.acc.LastError = ""
		s.acc.Pending = nil
		s.persistBestEffort()
	case !ok && s.acc.State == StateConnected:
		s.markDisconnected()
	}
	return ok
}

// Logout завершает сессию. Удалённый logout — best effort: локальное
// состояние сбрасывается в Disconnected в любом случае. При deleteSession
// файл сессии стирается с диска, и аккаунт придётся логинить заново.
func (s *Session) Logout(ctx context.Context, deleteSession bool) error {
	s.lock()
	defer s.unlock()
	return s.logoutLocked(ctx, deleteSession)
}

func (s *Session) logoutLocked(ctx context.Context, deleteSession bool) error {
	if s.acc.State == StateConnected {
		if err := s.client.LogOut(ctx); err != nil {
			logger.Warnf("account %s: remote logout failed: %v", s.acc.Phone, err)
		}
	}
	if err := s.client.Close(); err != nil {
		logger.Debugf("account %s: client close: %v", s.acc.Phone, err)
	}

	s.acc.State = StateDisconnected
	s.acc.Pending = nil
	s.acc.LastError = ""

	if deleteSession {
		if err := s.removeBlob(); err != nil {
			s.persistBestEffort()
			return wrapError(KindStorage, "failed to remove session file", err)
		}
	}
	if err := s.persist(); err != nil {
		return wrapError(KindStorage, "failed to persist accounts", err)
	}
	return nil
}

// Dialogs возвращает диалоги аккаунта. Требует состояния Connected.
func (s *Session) Dialogs(ctx context.Context, limit int) ([]telegram.Dialog, error) {
	s.lock()
	defer s.unlock()

	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	dialogs, err := s.client.Dialogs(ctx, limit)
	if err != nil {
		return nil, s.classifyConnected(err)
	}
	return dialogs, nil
}

// History читает историю диалога. Требует состояния Connected.
func (s *Session) History(ctx context.Context, peer telegram.Dialog, limit, offsetID int) ([]telegram.Message, error) {
	s.lock()
	defer s.unlock()

	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	messages, err := s.client.History(ctx, peer, limit, offsetID)
	if err != nil {
		return nil, s.classifyConnected(err)
	}
	return messages, nil
}

// Send отправляет текстовое сообщение в диалог. Требует состояния Connected.
func (s *Session) Send(ctx context.Context, peer telegram.Dialog, text string) error {
	s.lock()
	defer s.unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, peer, text); err != nil {
		return s.classifyConnected(err)
	}
	return nil
}

// ResolveUsername находит диалог по публичному имени. Требует Connected.
func (s *Session) ResolveUsername(ctx context.Context, username string) (*telegram.Dialog, error) {
	s.lock()
	defer s.unlock()

	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	dialog, err := s.client.ResolveUsername(ctx, username)
	if err != nil {
		return nil, s.classifyConnected(err)
	}
	return dialog, nil
}

// JoinInvite вступает в чат по инвайт-хэшу. Требует Connected.
func (s *Session) JoinInvite(ctx context.Context, hash string) error {
	s.lock()
	defer s.unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if err := s.client.JoinInvite(ctx, hash); err != nil {
		return s.classifyConnected(err)
	}
	return nil
}

// TouchLastCheck отмечает время последнего сканирования аккаунта.
func (s *Session) TouchLastCheck(at time.Time) {
	s.lock()
	defer s.unlock()
	s.acc.LastCheckTime = at
	s.persistBestEffort()
}

// requireConnected возвращает NotConnected, если операции недоступны.
func (s *Session) requireConnected() error {
	if s.acc.State != StateConnected {
		return NewError(KindNotConnected, "account is not connected")
	}
	return nil
}

// classifyConnected классифицирует ошибку операции подключённого аккаунта.
// Отзыв сессии переводит аккаунт в Disconnected, флуд-контроль состояния
// не меняет: после паузы операции продолжат работать.
func (s *Session) classifyConnected(err error) error {
	if isRevoked(err) {
		s.markDisconnected()
	}
	return Classify(err)
}

// completeLogin достаёт профиль уже авторизованной сессии и фиксирует Connected.
func (s *Session) completeLogin(ctx context.Context) error {
	profile, err := s.client.Self(ctx)
	if err != nil {
		classified := Classify(err)
		s.noteFailure(classified)
		return classified
	}
	return s.applyProfile(profile)
}

// applyProfile фиксирует успешную авторизацию: профиль, Connected, запись на диск.
func (s *Session) applyProfile(profile *telegram.Profile) error {
	s.acc.State = StateConnected
	s.acc.LastError = ""
	s.acc.Pending = nil
	if profile != nil {
		s.acc.UserID = profile.ID
		s.acc.Username = profile.Username
		s.acc.FirstName = profile.FirstName
		s.acc.LastName = profile.LastName
	}
	if err := s.persist(); err != nil {
		// Авторизация на стороне Telegram уже состоялась: состояние в памяти
		// оставляем Connected, но сбой диска поднимаем наверх.
		return wrapError(KindStorage, "failed to persist accounts", err)
	}
	logger.Infof("account %s: connected as %s", s.acc.Phone, s.acc.Label())
	return nil
}

// noteFailure фиксирует исход неуспешной операции. FloodWait и ожидаемые
// ошибки ввода не считаются сбоем и состояния не меняют; RemoteError
// переводит аккаунт в Error.
func (s *Session) noteFailure(classified error) {
	var domain *Error
	if !errors.As(classified, &domain) {
		return
	}
	switch domain.Kind {
	case KindFloodWait, KindInvalidPhone, KindInvalidCode, KindCodeExpired, KindInvalidPassword:
		return
	case KindRemote:
		s.acc.State = StateError
		s.acc.LastError = domain.Message
		s.acc.Pending = nil
		s.persistBestEffort()
	}
}

// markDisconnected сбрасывает аккаунт в Disconnected и сохраняет реестр.
func (s *Session) markDisconnected() {
	s.acc.State = StateDisconnected
	s.acc.Pending = nil
	s.persistBestEffort()
}

// persistBestEffort сохраняет реестр, логируя сбой вместо возврата ошибки.
// Используется там, где основная операция уже определила свой исход.
func (s *Session) persistBestEffort() {
	if err := s.persist(); err != nil {
		logger.Errorf("account %s: persist failed: %v", s.acc.Phone, err)
	}
}
