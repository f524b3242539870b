package accounts_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"telegram-linkgrabber/internal/domain/accounts"
	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
)

// fakeClient — скриптуемая заглушка протокольного клиента.
type fakeClient struct {
	mu sync.Mutex

	authorized    bool
	authorizedErr error
	sendCodeFn    func() (*telegram.SentCode, error)
	signInFn      func(code, codeHash string) (*telegram.Profile, error)
	passwordFn    func(password string) (*telegram.Profile, error)
	profile       telegram.Profile
	dialogs       []telegram.Dialog
	history       []telegram.Message

	loggedOut bool
	closed    bool
}

func (f *fakeClient) SendCode(ctx context.Context, phone string) (*telegram.SentCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authorized {
		return nil, telegram.ErrAlreadyAuthorized
	}
	if f.sendCodeFn != nil {
		return f.sendCodeFn()
	}
	return &telegram.SentCode{CodeHash: "hash-1", DeliveryType: "app"}, nil
}

func (f *fakeClient) SignIn(ctx context.Context, phone, code, codeHash string) (*telegram.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInFn != nil {
		return f.signInFn(code, codeHash)
	}
	f.authorized = true
	profile := f.profile
	return &profile, nil
}

func (f *fakeClient) CheckPassword(ctx context.Context, password string) (*telegram.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.passwordFn != nil {
		return f.passwordFn(password)
	}
	f.authorized = true
	profile := f.profile
	return &profile, nil
}

func (f *fakeClient) Authorized(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, f.authorizedErr
}

func (f *fakeClient) Self(ctx context.Context) (*telegram.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile := f.profile
	return &profile, nil
}

func (f *fakeClient) LogOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.authorized = false
	return nil
}

func (f *fakeClient) Dialogs(ctx context.Context, limit int) ([]telegram.Dialog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && limit < len(f.dialogs) {
		return f.dialogs[:limit], nil
	}
	return f.dialogs, nil
}

func (f *fakeClient) History(ctx context.Context, peer telegram.Dialog, limit, offsetID int) ([]telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, peer telegram.Dialog, text string) error {
	return nil
}

func (f *fakeClient) ResolveUsername(ctx context.Context, username string) (*telegram.Dialog, error) {
	return &telegram.Dialog{Kind: telegram.PeerChannel, ID: 1, Username: username}, nil
}

func (f *fakeClient) JoinInvite(ctx context.Context, hash string) error { return nil }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeFactory раздаёт преднастроенные заглушки по номеру.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	removed []string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{clients: make(map[string]*fakeClient)}
}

func (f *fakeFactory) client(phone string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[phone]; ok {
		return c
	}
	c := &fakeClient{}
	f.clients[phone] = c
	return c
}

func (f *fakeFactory) New(phone string) (telegram.Client, error) {
	return f.client(phone), nil
}

func (f *fakeFactory) RemoveSession(phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, phone)
	return nil
}

func newTestRegistry(t *testing.T, factory *fakeFactory) *accounts.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	reg, err := accounts.NewRegistry(path, factory)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

const testPhone = "79990000001"

func TestLoginFlowWithCode(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	factory.client(testPhone).profile = telegram.Profile{ID: 101, Username: "alice", FirstName: "Alice"}

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register("+7 999 000-00-01"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sess, err := reg.Get(testPhone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	res, err := sess.StartLogin(context.Background())
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	if res.State != accounts.StateCodeRequested || res.DeliveryType != "app" {
		t.Fatalf("StartLogin = %+v, ожидали CodeRequested/app", res)
	}

	res, err = sess.SubmitCode(context.Background(), "12345")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if res.State != accounts.StateConnected {
		t.Fatalf("state = %s, ожидали connected", res.State)
	}

	accs := reg.List()
	if len(accs) != 1 || accs[0].State != accounts.StateConnected || accs[0].Username != "alice" {
		t.Fatalf("снимок после логина: %+v", accs)
	}
	if accs[0].Pending != nil {
		t.Fatal("pending_auth должен быть очищен после логина")
	}
}

func TestSubmitCodeWhileDisconnected(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, newFakeFactory())
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)

	_, err := sess.SubmitCode(context.Background(), "12345")
	if !accounts.IsKind(err, accounts.KindNotConnected) {
		t.Fatalf("err = %v, ожидали NotConnected", err)
	}
}

func TestWrongCodeKeepsStateForRetry(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	client := factory.client(testPhone)
	attempts := 0
	client.signInFn = func(code, codeHash string) (*telegram.Profile, error) {
		attempts++
		if code != "54321" {
			return nil, errors.New("rpc error code 400: PHONE_CODE_INVALID")
		}
		return &telegram.Profile{ID: 7}, nil
	}

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)
	if _, err := sess.StartLogin(context.Background()); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	_, err := sess.SubmitCode(context.Background(), "11111")
	if !accounts.IsKind(err, accounts.KindInvalidCode) {
		t.Fatalf("err = %v, ожидали InvalidCode", err)
	}
	if reg.List()[0].State != accounts.StateCodeRequested {
		t.Fatalf("state = %s, ожидали code_requested после неверного кода", reg.List()[0].State)
	}

	// Повторная попытка с верным кодом проходит без нового sendCode.
	res, err := sess.SubmitCode(context.Background(), "54321")
	if err != nil {
		t.Fatalf("SubmitCode (повтор): %v", err)
	}
	if res.State != accounts.StateConnected || attempts != 2 {
		t.Fatalf("повтор не сработал: state=%s attempts=%d", res.State, attempts)
	}
}

func TestTwoFactorFlow(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	client := factory.client(testPhone)
	client.signInFn = func(code, codeHash string) (*telegram.Profile, error) {
		return nil, &telegram.PasswordNeededError{Hint: "pet name", HasRecovery: true}
	}
	client.passwordFn = func(password string) (*telegram.Profile, error) {
		if password != "s3cret" {
			return nil, errors.New("rpc error code 400: PASSWORD_HASH_INVALID")
		}
		return &telegram.Profile{ID: 9, FirstName: "Bob"}, nil
	}

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)
	if _, err := sess.StartLogin(context.Background()); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	res, err := sess.SubmitCode(context.Background(), "12345")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if res.State != accounts.StatePasswordRequested {
		t.Fatalf("state = %s, ожидали password_requested", res.State)
	}
	hint, hasRecovery := sess.PasswordHint()
	if hint != "pet name" || !hasRecovery {
		t.Fatalf("подсказка не сохранилась: %q %v", hint, hasRecovery)
	}

	_, err = sess.SubmitPassword(context.Background(), "wrong")
	if !accounts.IsKind(err, accounts.KindInvalidPassword) {
		t.Fatalf("err = %v, ожидали InvalidPassword", err)
	}
	if reg.List()[0].State != accounts.StatePasswordRequested {
		t.Fatal("неверный пароль не должен менять состояние")
	}

	res, err = sess.SubmitPassword(context.Background(), "s3cret")
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if res.State != accounts.StateConnected {
		t.Fatalf("state = %s, ожидали connected", res.State)
	}
}

func TestFloodWaitPreservesState(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	factory.client(testPhone).sendCodeFn = func() (*telegram.SentCode, error) {
		return nil, errors.New("rpc error code 420: FLOOD_WAIT_42")
	}

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)

	_, err := sess.StartLogin(context.Background())
	var domain *accounts.Error
	if !errors.As(err, &domain) || domain.Kind != accounts.KindFloodWait {
		t.Fatalf("err = %v, ожидали FloodWait", err)
	}
	if domain.Wait.Seconds() != 42 {
		t.Fatalf("Wait = %s, ожидали 42s", domain.Wait)
	}
	// Флуд-контроль не является сбоем: состояние остаётся прежним.
	if got := reg.List()[0].State; got != accounts.StateDisconnected {
		t.Fatalf("state = %s, ожидали disconnected", got)
	}
}

func TestStartLoginAlreadyAuthorized(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	client := factory.client(testPhone)
	client.authorized = true
	client.profile = telegram.Profile{ID: 55, Username: "carol"}

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)

	res, err := sess.StartLogin(context.Background())
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	if res.State != accounts.StateConnected {
		t.Fatalf("state = %s, ожидали немедленный connected", res.State)
	}
	if reg.List()[0].Username != "carol" {
		t.Fatal("профиль не подтянулся из живой сессии")
	}
}

func TestIsConnectedCorrectsDriftedState(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	client := factory.client(testPhone)
	client.authorized = true

	reg := newTestRegistry(t, factory)
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)
	if _, err := sess.StartLogin(context.Background()); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	// Сессию отозвали с другого устройства.
	client.mu.Lock()
	client.authorized = false
	client.mu.Unlock()

	if sess.IsConnected(context.Background()) {
		t.Fatal("IsConnected должен увидеть мёртвую сессию")
	}
	if got := reg.List()[0].State; got != accounts.StateDisconnected {
		t.Fatalf("state = %s, ожидали коррекцию в disconnected", got)
	}

	_, err := sess.Dialogs(context.Background(), 10)
	if !accounts.IsKind(err, accounts.KindNotConnected) {
		t.Fatalf("err = %v, ожидали NotConnected", err)
	}
}

func TestRegisterRemoveRegisterAgain(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	reg := newTestRegistry(t, factory)

	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Register("+" + testPhone); !accounts.IsKind(err, accounts.KindAlreadyExists) {
		t.Fatalf("err = %v, ожидали AlreadyExists", err)
	}

	if err := reg.Remove(context.Background(), testPhone); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(factory.removed) != 1 || factory.removed[0] != testPhone {
		t.Fatalf("файл сессии не удалён: %v", factory.removed)
	}
	if err := reg.Remove(context.Background(), testPhone); !accounts.IsKind(err, accounts.KindNotFound) {
		t.Fatalf("err = %v, ожидали NotFound", err)
	}

	// Номер снова свободен и регистрируется с чистого листа.
	acc, err := reg.Register(testPhone)
	if err != nil {
		t.Fatalf("повторный Register: %v", err)
	}
	if acc.State != accounts.StateDisconnected {
		t.Fatalf("state = %s, ожидали disconnected", acc.State)
	}
}

func TestRegistryPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "accounts.json")
	factory := newFakeFactory()
	factory.client(testPhone).authorized = true
	factory.client(testPhone).profile = telegram.Profile{ID: 5, FirstName: "Dave"}

	reg, err := accounts.NewRegistry(path, factory)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Register(testPhone); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, _ := reg.Get(testPhone)
	if _, err := sess.StartLogin(context.Background()); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	reg.Close()

	reloaded, err := accounts.NewRegistry(path, factory)
	if err != nil {
		t.Fatalf("NewRegistry (повтор): %v", err)
	}
	accs := reloaded.List()
	if len(accs) != 1 {
		t.Fatalf("после перезагрузки %d аккаунтов, ожидали 1", len(accs))
	}
	if accs[0].State != accounts.StateConnected || accs[0].FirstName != "Dave" {
		t.Fatalf("запись не пережила перезагрузку: %+v", accs[0])
	}
}

func TestListConnectedVerifyLive(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory()
	factory.client("79990000001").authorized = true
	factory.client("79990000002").authorized = true

	reg := newTestRegistry(t, factory)
	for _, p := range []string{"79990000001", "79990000002"} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p, err)
		}
		sess, _ := reg.Get(p)
		if _, err := sess.StartLogin(context.Background()); err != nil {
			t.Fatalf("StartLogin(%s): %v", p, err)
		}
	}

	// Вторая сессия умирает между проверками.
	dead := factory.client("79990000002")
	dead.mu.Lock()
	dead.authorized = false
	dead.mu.Unlock()

	live := reg.ListConnected(context.Background(), true)
	if len(live) != 1 || live[0].Phone() != "79990000001" {
		t.Fatalf("ListConnected(live) = %d сессий, ожидали одну живую", len(live))
	}

	// Без живой проверки берётся сохранённое состояние.
	cached := reg.ListConnected(context.Background(), false)
	if len(cached) != 1 {
		t.Fatalf("ListConnected(cached) = %d, ожидали 1 после коррекции", len(cached))
	}
}
