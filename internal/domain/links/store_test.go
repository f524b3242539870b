package links_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"telegram-linkgrabber/internal/domain/links"
)

func newTestStore(t *testing.T) *links.Store {
	t.Helper()
	store, err := links.Open(filepath.Join(t.TempDir(), "links.bbolt"), links.NewClassifier(links.DefaultCategories()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClassifierDeterministic(t *testing.T) {
	t.Parallel()

	classifier := links.NewClassifier([]links.Category{
		{Name: "alpha", Keywords: []string{"go"}},
		{Name: "beta", Keywords: []string{"go"}},
	})
	for i := 0; i < 10; i++ {
		got, ok := classifier.Classify("go go go")
		if !ok || got != "alpha" {
			t.Fatalf("Classify: %q (ok=%v), ожидали alpha — ничья решается первой категорией", got, ok)
		}
	}
	if _, ok := classifier.Classify("ничего подходящего"); ok {
		t.Fatal("Classify без совпадений должен вернуть ok=false")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	link := links.Link{URL: "https://example.com/news", Kind: links.KindWebsite}
	now := time.Now()

	wasNew, err := store.Add(link, "somechannel", "свежие новости дня", now)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !wasNew {
		t.Fatal("первая находка должна быть новой")
	}

	wasNew, err = store.Add(link, "otherchannel", "другой текст", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Add (повтор): %v", err)
	}
	if wasNew {
		t.Fatal("повторная находка не должна считаться новой")
	}

	records, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("записей %d, ожидали 1", len(records))
	}
	// Повторная находка не перезаписывает исходную запись.
	if records[0].SourceLabel != "somechannel" || records[0].Category != "news" {
		t.Fatalf("запись перезаписана: %+v", records[0])
	}
}

func TestCategoryPrecedence(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now()
	if err := store.SetSourceCategory("@SportChannel", "sport"); err != nil {
		t.Fatalf("SetSourceCategory: %v", err)
	}

	// Ключевые слова текста авторитетнее категории источника.
	byText := links.Link{URL: "https://example.com/1", Kind: links.KindWebsite}
	if _, err := store.Add(byText, "sportchannel", "новости дня, срочно", now); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Без совпадений — категория источника.
	bySource := links.Link{URL: "https://example.com/2", Kind: links.KindWebsite}
	if _, err := store.Add(bySource, "sportchannel", "просто текст", now); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Без совпадений и без источника — general.
	byDefault := links.Link{URL: "https://example.com/3", Kind: links.KindWebsite}
	if _, err := store.Add(byDefault, "unknown", "просто текст", now); err != nil {
		t.Fatalf("Add: %v", err)
	}

	wantCategories := map[string]string{
		"https://example.com/1": "news",
		"https://example.com/2": "sport",
		"https://example.com/3": links.DefaultCategory,
	}
	records, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for _, r := range records {
		if want := wantCategories[r.URL]; r.Category != want {
			t.Errorf("категория %s = %q, ожидали %q", r.URL, r.Category, want)
		}
	}

	sport, err := store.ByCategory("sport")
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(sport) != 1 || sport[0].URL != "https://example.com/2" {
		t.Fatalf("ByCategory(sport) = %+v", sport)
	}
}

func TestNewLinksTracking(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now()
	first := links.Link{URL: "https://example.com/a", Kind: links.KindWebsite}
	if _, err := store.Add(first, "src", "", now); err != nil {
		t.Fatalf("Add: %v", err)
	}

	fresh, err := store.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("новых %d, ожидали 1", len(fresh))
	}

	if err := store.ClearNew(); err != nil {
		t.Fatalf("ClearNew: %v", err)
	}
	fresh, err = store.New()
	if err != nil {
		t.Fatalf("New (после очистки): %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("после ClearNew новых %d, ожидали 0", len(fresh))
	}

	// Следующая находка снова помечается новой.
	second := links.Link{URL: "https://example.com/b", Kind: links.KindWebsite}
	if _, err := store.Add(second, "src", "", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	fresh, _ = store.New()
	if len(fresh) != 1 || fresh[0].URL != second.URL {
		t.Fatalf("New после второй находки: %+v", fresh)
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	link := links.Link{URL: "https://t.me/+AbCd1234", Kind: links.KindInvite}
	if _, err := store.Add(link, "somechannel", "", at); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var sb strings.Builder
	if err := store.ExportCSV(&sb); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("строк %d, ожидали заголовок и одну запись:\n%s", len(lines), sb.String())
	}
	if lines[0] != "url,kind,source,category,discovered_at" {
		t.Fatalf("заголовок: %q", lines[0])
	}
	if !strings.Contains(lines[1], "https://t.me/+AbCd1234") || !strings.Contains(lines[1], "2026-03-14T12:00:00Z") {
		t.Fatalf("запись: %q", lines[1])
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	for _, u := range []string{"https://a.example/x", "https://b.example/y"} {
		if _, err := store.Add(links.Link{URL: u, Kind: links.KindWebsite}, "", "", time.Now()); err != nil {
			t.Fatalf("Add(%s): %v", u, err)
		}
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count = %d, ожидали 2", count)
	}
}
