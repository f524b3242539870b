package extraction_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"telegram-linkgrabber/internal/domain/extraction"
	"telegram-linkgrabber/internal/domain/links"
	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
)

// fakeAccount — скриптуемый аккаунт для движка.
type fakeAccount struct {
	mu sync.Mutex

	phone      string
	dialogs    []telegram.Dialog
	history    map[int64][]telegram.Message
	historyErr error

	lastCheck time.Time
}

func (f *fakeAccount) Phone() string { return f.phone }

func (f *fakeAccount) Dialogs(ctx context.Context, limit int) ([]telegram.Dialog, error) {
	return f.dialogs, nil
}

func (f *fakeAccount) History(ctx context.Context, peer telegram.Dialog, limit, offsetID int) ([]telegram.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[peer.ID], nil
}

func (f *fakeAccount) TouchLastCheck(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCheck = at
}

type fakeSource struct {
	accounts []extraction.Account
}

func (f fakeSource) Connected(ctx context.Context) []extraction.Account { return f.accounts }

func newTestStore(t *testing.T) *links.Store {
	t.Helper()
	store, err := links.Open(filepath.Join(t.TempDir(), "links.bbolt"), links.NewClassifier(links.DefaultCategories()))
	if err != nil {
		t.Fatalf("links.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testOptions() extraction.Options {
	return extraction.Options{DialogLimit: 10, MessageLimit: 10, Workers: 2, PaceMinMs: 1, PaceMaxMs: 2}
}

func TestRunExtractsAndDeduplicates(t *testing.T) {
	t.Parallel()

	channel := telegram.Dialog{Kind: telegram.PeerChannel, ID: 1, Title: "Новости", Username: "somenews"}
	acc := &fakeAccount{
		phone:   "79990000001",
		dialogs: []telegram.Dialog{channel},
		history: map[int64][]telegram.Message{
			1: {
				{ID: 1, Date: time.Now(), Text: "join us at https://t.me/+AbCd1234 and check https://example.com/news"},
				{ID: 2, Date: time.Now(), Text: "повтор https://example.com/news"},
			},
		},
	}
	store := newTestStore(t)
	engine := extraction.New(fakeSource{accounts: []extraction.Account{acc}}, store, testOptions())

	summary := engine.Run(context.Background())
	if summary.AccountsProcessed != 1 || summary.TotalAccounts != 1 {
		t.Fatalf("processed %d/%d, ожидали 1/1", summary.AccountsProcessed, summary.TotalAccounts)
	}
	if summary.NewLinks != 2 || summary.TotalLinks != 3 {
		t.Fatalf("new=%d total=%d, ожидали 2/3", summary.NewLinks, summary.TotalLinks)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("ошибки: %+v", summary.Errors)
	}
	if acc.lastCheck.IsZero() {
		t.Fatal("lastCheckTime не обновлён после успешного скана")
	}

	records, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	kinds := make(map[string]string, len(records))
	for _, r := range records {
		kinds[r.URL] = r.Kind
	}
	if kinds["https://t.me/+AbCd1234"] != links.KindInvite {
		t.Fatalf("инвайт не распознан: %+v", kinds)
	}
	if kinds["https://example.com/news"] != links.KindWebsite {
		t.Fatalf("сайт не распознан: %+v", kinds)
	}
}

func TestRunToleratesFloodWaitOnOneAccount(t *testing.T) {
	t.Parallel()

	dialog := telegram.Dialog{Kind: telegram.PeerChannel, ID: 1, Username: "somechannel"}
	message := telegram.Message{ID: 1, Date: time.Now(), Text: "https://example.com/%d"}

	mkAccount := func(phone, url string) *fakeAccount {
		msg := message
		msg.Text = url
		return &fakeAccount{
			phone:   phone,
			dialogs: []telegram.Dialog{dialog},
			history: map[int64][]telegram.Message{1: {msg}},
		}
	}
	first := mkAccount("79990000001", "https://example.com/1")
	second := mkAccount("79990000002", "https://example.com/2")
	second.historyErr = errors.New("rpc error code 420: FLOOD_WAIT_42")
	third := mkAccount("79990000003", "https://example.com/3")

	store := newTestStore(t)
	engine := extraction.New(fakeSource{accounts: []extraction.Account{first, second, third}}, store, testOptions())

	summary := engine.Run(context.Background())
	if summary.AccountsProcessed != 2 || summary.TotalAccounts != 3 {
		t.Fatalf("processed %d/%d, ожидали 2/3", summary.AccountsProcessed, summary.TotalAccounts)
	}
	if summary.NewLinks != 2 {
		t.Fatalf("new=%d, ожидали находки первого и третьего аккаунтов", summary.NewLinks)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Phone != "79990000002" {
		t.Fatalf("ошибки прогона: %+v", summary.Errors)
	}
	// Аккаунт со сбоем не считается проверенным.
	if !second.lastCheck.IsZero() {
		t.Fatal("lastCheckTime не должен обновляться при сбое скана")
	}
}

func TestRunCancellationKeepsPersistedFindings(t *testing.T) {
	t.Parallel()

	dialogs := []telegram.Dialog{
		{Kind: telegram.PeerChannel, ID: 1, Username: "one"},
		{Kind: telegram.PeerChannel, ID: 2, Username: "two"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	acc := &fakeAccount{
		phone:   "79990000001",
		dialogs: dialogs,
		history: map[int64][]telegram.Message{
			1: {{ID: 1, Date: time.Now(), Text: "https://example.com/first"}},
			2: {{ID: 2, Date: time.Now(), Text: "https://example.com/second"}},
		},
	}

	store := newTestStore(t)
	engine := extraction.New(fakeSource{accounts: []extraction.Account{acc}}, store, testOptions())

	// Отмена до прогона: движок останавливается на границе первого диалога,
	// ничего не прочитав, и фиксирует отмену как ошибку аккаунта.
	cancel()
	summary := engine.Run(ctx)
	if summary.AccountsProcessed != 0 {
		t.Fatalf("processed = %d, ожидали 0 после отмены", summary.AccountsProcessed)
	}
	if len(summary.Errors) != 1 || !errors.Is(summary.Errors[0].Err, context.Canceled) {
		t.Fatalf("ошибки прогона: %+v", summary.Errors)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("после отмены до чтения в хранилище %d записей", count)
	}
}

func TestRunEmptySource(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	engine := extraction.New(fakeSource{}, store, testOptions())
	summary := engine.Run(context.Background())
	if summary.TotalAccounts != 0 || summary.NewLinks != 0 || len(summary.Errors) != 0 {
		t.Fatalf("пустой прогон: %+v", summary)
	}
}
