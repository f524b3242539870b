package accounts

import (
	"testing"
	"time"

	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"уже доменная", NewError(KindNotFound, "x"), KindNotFound},
		{"невалидный номер", errors.New("rpc error code 400: PHONE_NUMBER_INVALID"), KindInvalidPhone},
		{"забаненный номер", errors.New("PHONE_NUMBER_BANNED"), KindInvalidPhone},
		{"неверный код", errors.New("rpc error code 400: PHONE_CODE_INVALID"), KindInvalidCode},
		{"просроченный код", errors.New("PHONE_CODE_EXPIRED"), KindCodeExpired},
		{"неверный пароль", errors.New("PASSWORD_HASH_INVALID"), KindInvalidPassword},
		{"номер не зарегистрирован", errors.New("PHONE_NUMBER_UNOCCUPIED"), KindSignupRequired},
		{"sign up sentinel", telegram.ErrSignUpRequired, KindSignupRequired},
		{"2FA", &telegram.PasswordNeededError{Hint: "pet name"}, KindPasswordRequired},
		{"флуд-контроль текстом", errors.New("rpc error code 420: FLOOD_WAIT_42"), KindFloodWait},
		{"прочее", errors.New("CONNECTION_SYSTEM_EMPTY"), KindRemote},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("Classify(nil) = %v, ожидали nil", got)
				}
				return
			}
			if kind := KindOf(got); kind != tc.want {
				t.Fatalf("Classify(%v): kind = %s, ожидали %s", tc.err, kind, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Classify(%v) потерял причину", tc.err)
			}
		})
	}
}

func TestClassifyFloodWaitDuration(t *testing.T) {
	t.Parallel()

	classified := Classify(errors.New("FLOOD_WAIT_42"))
	var domain *Error
	if !errors.As(classified, &domain) {
		t.Fatalf("ожидали *Error, получили %T", classified)
	}
	if domain.Wait != 42*time.Second {
		t.Fatalf("Wait = %s, ожидали 42s", domain.Wait)
	}
}

func TestClassifyPasswordHint(t *testing.T) {
	t.Parallel()

	classified := Classify(&telegram.PasswordNeededError{Hint: "pet name", HasRecovery: true})
	var domain *Error
	if !errors.As(classified, &domain) {
		t.Fatalf("ожидали *Error, получили %T", classified)
	}
	if domain.Hint != "pet name" || !domain.HasRecovery {
		t.Fatalf("подсказка не прокинулась: %+v", domain)
	}
}

func TestIsRevoked(t *testing.T) {
	t.Parallel()

	if !isRevoked(errors.New("rpc error code 401: AUTH_KEY_UNREGISTERED")) {
		t.Fatal("AUTH_KEY_UNREGISTERED должен считаться отзывом сессии")
	}
	if isRevoked(errors.New("FLOOD_WAIT_5")) {
		t.Fatal("флуд-контроль не отзыв сессии")
	}
}
