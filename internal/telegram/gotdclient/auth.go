// Файл auth.go — операции логина поверх gotd: отправка кода, завершение кодом,
// облачный пароль, живая проверка авторизации и logout. Протокольные ошибки
// (PHONE_CODE_INVALID, FLOOD_WAIT и т.п.) возвращаются как есть: их разбирает
// доменная таксономия выше по стеку.

package gotdclient

import (
	"context"
	"time"

	tgiface "telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// SendCode начинает логин: запрашивает у Telegram отправку кода подтверждения.
func (c *Client) SendCode(ctx context.Context, _ string) (*tgiface.SentCode, error) {
	var out *tgiface.SentCode
	err := c.do(ctx, func(opCtx context.Context, _ *tg.Client) error {
		sent, err := c.tgc.Auth().SendCode(opCtx, c.e164(), auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		switch code := sent.(type) {
		case *tg.AuthSentCode:
			out = &tgiface.SentCode{
				CodeHash:     code.PhoneCodeHash,
				DeliveryType: deliveryType(code.Type),
			}
			if timeout, ok := code.GetTimeout(); ok {
				out.Timeout = secondsToDuration(timeout)
			}
			return nil
		case *tg.AuthSentCodeSuccess:
			// Telegram авторизовал без кода (future auth token).
			return tgiface.ErrAlreadyAuthorized
		default:
			return errors.Errorf("unexpected sent code response: %T", sent)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SignIn завершает логин кодом подтверждения.
func (c *Client) SignIn(ctx context.Context, _ string, code, codeHash string) (*tgiface.Profile, error) {
	var out *tgiface.Profile
	err := c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		authz, err := c.tgc.Auth().SignIn(opCtx, c.e164(), code, codeHash)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordAuthNeeded) {
				return c.passwordNeeded(opCtx, api)
			}
			var signUp *auth.SignUpRequired
			if errors.As(err, &signUp) {
				return tgiface.ErrSignUpRequired
			}
			return err
		}
		out = profileFromUser(authz.User)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// passwordNeeded дополняет сигнал 2FA подсказкой и флагом восстановления.
// Неудача AccountGetPassword не прячет сам факт требования пароля.
func (c *Client) passwordNeeded(ctx context.Context, api *tg.Client) error {
	needed := &tgiface.PasswordNeededError{}
	if pwd, err := api.AccountGetPassword(ctx); err == nil {
		needed.Hint = pwd.Hint
		needed.HasRecovery = pwd.HasRecovery
	}
	return needed
}

// CheckPassword завершает логин облачным паролем (2FA).
func (c *Client) CheckPassword(ctx context.Context, password string) (*tgiface.Profile, error) {
	var out *tgiface.Profile
	err := c.do(ctx, func(opCtx context.Context, _ *tg.Client) error {
		authz, err := c.tgc.Auth().Password(opCtx, password)
		if err != nil {
			return err
		}
		out = profileFromUser(authz.User)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Authorized выполняет живую проверку статуса авторизации на стороне Telegram.
func (c *Client) Authorized(ctx context.Context) (bool, error) {
	var out bool
	err := c.do(ctx, func(opCtx context.Context, _ *tg.Client) error {
		status, err := c.tgc.Auth().Status(opCtx)
		if err != nil {
			return err
		}
		out = status.Authorized
		return nil
	})
	return out, err
}

// Self возвращает профиль владельца сессии.
func (c *Client) Self(ctx context.Context) (*tgiface.Profile, error) {
	var out *tgiface.Profile
	err := c.do(ctx, func(opCtx context.Context, _ *tg.Client) error {
		self, err := c.tgc.Self(opCtx)
		if err != nil {
			return err
		}
		out = userProfile(self)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LogOut аннулирует сессию на стороне Telegram.
func (c *Client) LogOut(ctx context.Context) error {
	return c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		_, err := api.AuthLogOut(opCtx)
		return err
	})
}

// profileFromUser извлекает профиль из ответа авторизации.
func profileFromUser(user tg.UserClass) *tgiface.Profile {
	u, ok := user.(*tg.User)
	if !ok {
		return &tgiface.Profile{}
	}
	return userProfile(u)
}

// userProfile переводит tg.User в DTO границы.
func userProfile(u *tg.User) *tgiface.Profile {
	p := &tgiface.Profile{ID: u.ID}
	p.Username, _ = u.GetUsername()
	p.FirstName, _ = u.GetFirstName()
	p.LastName, _ = u.GetLastName()
	p.Phone, _ = u.GetPhone()
	return p
}

// secondsToDuration переводит секунды протокола в time.Duration.
func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// deliveryType переводит тип доставки кода в строку для оператора.
func deliveryType(t tg.AuthSentCodeTypeClass) string {
	switch t.(type) {
	case *tg.AuthSentCodeTypeApp:
		return "app"
	case *tg.AuthSentCodeTypeSMS:
		return "sms"
	case *tg.AuthSentCodeTypeCall:
		return "call"
	case *tg.AuthSentCodeTypeFlashCall:
		return "flash_call"
	case *tg.AuthSentCodeTypeMissedCall:
		return "missed_call"
	case *tg.AuthSentCodeTypeEmailCode:
		return "email"
	default:
		return "unknown"
	}
}
