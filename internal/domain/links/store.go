// Файл store.go — персистентное хранилище ссылок на bbolt.
// Хранилище — авторитет дедупликации: один нормализованный URL — одна запись.
// Транзакции bbolt дают атомарный read-modify-write: два воркера, нашедшие
// одну ссылку одновременно, не затрут запись друг друга.
package links

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"telegram-linkgrabber/internal/infra/storage"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
)

const (
	linksBucketName   = "links"
	sourcesBucketName = "sources"
	newBucketName     = "new_links"

	dbOpenTimeout             = time.Second
	dbFileMode    os.FileMode = 0o600
)

var (
	linksBucket   = []byte(linksBucketName)
	sourcesBucket = []byte(sourcesBucketName)
	newBucket     = []byte(newBucketName)
)

// Record — одна сохранённая ссылка.
type Record struct {
	URL          string    `json:"url"`
	Kind         string    `json:"kind"`
	SourceLabel  string    `json:"source_label"`
	Category     string    `json:"category"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Store — bbolt-хранилище ссылок с классификатором.
type Store struct {
	db         *bbolt.DB
	classifier *Classifier
}

// Open открывает (или создаёт) файл хранилища и готовит бакеты.
func Open(path string, classifier *Classifier) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("links: db path is empty")
	}
	if classifier == nil {
		return nil, errors.New("links: classifier is nil")
	}
	if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "links: open db")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{linksBucket, sourcesBucket, newBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, classifier: classifier}, nil
}

// Close закрывает файл базы данных.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add сохраняет находку. URL должен быть уже нормализован (Extract отдаёт
// такие). Возвращает true, если ссылка новая; повторная находка известного
// URL ничего не перезаписывает. Категория выбирается один раз при первом
// появлении: ключевые слова текста сообщения, затем категория источника,
// затем DefaultCategory.
func (s *Store) Add(link Link, sourceLabel, messageText string, discoveredAt time.Time) (bool, error) {
	wasNew := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(linksBucket)
		key := []byte(link.URL)
		if bucket.Get(key) != nil {
			return nil
		}

		category, ok := s.classifier.Classify(messageText)
		if !ok {
			category = s.sourceCategoryTx(tx, sourceLabel)
		}

		record := Record{
			URL:          link.URL,
			Kind:         link.Kind,
			SourceLabel:  sourceLabel,
			Category:     category,
			DiscoveredAt: discoveredAt.UTC(),
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "marshal link record")
		}
		if err := bucket.Put(key, raw); err != nil {
			return errors.Wrap(err, "put link record")
		}
		if err := tx.Bucket(newBucket).Put(key, nil); err != nil {
			return errors.Wrap(err, "mark link as new")
		}
		wasNew = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return wasNew, nil
}

// sourceCategoryTx возвращает категорию источника или DefaultCategory.
func (s *Store) sourceCategoryTx(tx *bbolt.Tx, sourceLabel string) string {
	if sourceLabel == "" {
		return DefaultCategory
	}
	raw := tx.Bucket(sourcesBucket).Get([]byte(NormalizeChannel(sourceLabel)))
	if len(raw) == 0 {
		return DefaultCategory
	}
	return string(raw)
}

// SetSourceCategory назначает источнику категорию по умолчанию для его
// будущих находок без ключевых совпадений.
func (s *Store) SetSourceCategory(sourceLabel, category string) error {
	label := NormalizeChannel(sourceLabel)
	if label == "" {
		return errors.New("links: empty source label")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sourcesBucket).Put([]byte(label), []byte(category))
	})
}

// SourceCategory возвращает назначенную источнику категорию ("" — нет).
func (s *Store) SourceCategory(sourceLabel string) (string, error) {
	var category string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(sourcesBucket).Get([]byte(NormalizeChannel(sourceLabel)))
		category = string(raw)
		return nil
	})
	return category, err
}

// All возвращает все записи, отсортированные по времени находки, затем по URL.
func (s *Store) All() ([]Record, error) {
	return s.collect(func(Record) bool { return true })
}

// ByCategory возвращает записи одной категории.
func (s *Store) ByCategory(category string) ([]Record, error) {
	return s.collect(func(r Record) bool { return r.Category == category })
}

// New возвращает записи, появившиеся после последнего ClearNew.
func (s *Store) New() ([]Record, error) {
	fresh := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(newBucket).ForEach(func(k, _ []byte) error {
			fresh[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "read new links")
	}
	return s.collect(func(r Record) bool {
		_, ok := fresh[r.URL]
		return ok
	})
}

// ClearNew сбрасывает отметки «новая» со всех ссылок.
func (s *Store) ClearNew() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(newBucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return errors.Wrap(err, "drop new links bucket")
		}
		_, err := tx.CreateBucketIfNotExists(newBucket)
		return err
	})
}

// Count возвращает число сохранённых ссылок.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(linksBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// ExportCSV выгружает все записи в CSV: url, kind, source, category, discovered_at.
func (s *Store) ExportCSV(w io.Writer) error {
	records, err := s.All()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"url", "kind", "source", "category", "discovered_at"}); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, r := range records {
		row := []string{r.URL, r.Kind, r.SourceLabel, r.Category, r.DiscoveredAt.Format(time.RFC3339)}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush csv")
}

// collect обходит бакет ссылок, фильтруя записи предикатом.
func (s *Store) collect(keep func(Record) bool) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(linksBucket).ForEach(func(_, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return errors.Wrap(err, "decode link record")
			}
			if keep(record) {
				out = append(out, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].DiscoveredAt.Before(out[j].DiscoveredAt)
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}
