// Файл registry.go — реестр аккаунтов с атомарной персистентностью.
// Документ accounts.json целиком перезаписывается при каждом изменении
// (temp-файл + fsync + rename), частичных записей не бывает.
package accounts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"telegram-linkgrabber/internal/infra/logger"
	"telegram-linkgrabber/internal/infra/phone"
	"telegram-linkgrabber/internal/infra/storage"
	"telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
)

// registryVersion — версия формата accounts.json.
const registryVersion = 1

// registryDoc — корневой документ accounts.json.
type registryDoc struct {
	Version  int                `json:"version"`
	Accounts map[string]Account `json:"accounts"`
}

// Registry — потокобезопасный реестр аккаунтов. Каждый аккаунт получает
// собственный Session с собственным мьютексом: операции разных аккаунтов
// идут параллельно, операции одного — строго по очереди.
//
// records хранит последние сохранённые снимки записей: живую запись мутирует
// только её Session под своим мьютексом, а реестр читает исключительно снимки
// под mu. Так персистентность и листинги не трогают чужие живые структуры.
type Registry struct {
	mu       sync.RWMutex
	path     string
	factory  telegram.Factory
	records  map[string]Account
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewRegistry загружает accounts.json (или начинает с пустого реестра) и
// восстанавливает Session для каждого сохранённого аккаунта. Состояния с
// диска принимаются как есть; живая проверка выполняется по требованию.
func NewRegistry(path string, factory telegram.Factory) (*Registry, error) {
	r := &Registry{
		path:     path,
		factory:  factory,
		records:  make(map[string]Account),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wrapError(KindStorage, "failed to read accounts file", err)
	}

	var doc registryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return wrapError(KindStorage, "accounts file is corrupted", err)
	}
	for key, acc := range doc.Accounts {
		normalized := phone.Normalize(acc.Phone)
		if normalized == "" {
			logger.Warnf("accounts: skipping record with empty phone (key %q)", key)
			continue
		}
		acc.Phone = normalized
		sess, err := r.newSession(acc)
		if err != nil {
			return err
		}
		r.records[normalized] = acc
		r.sessions[normalized] = sess
	}
	logger.Infof("accounts: loaded %d account(s) from %s", len(r.sessions), r.path)
	return nil
}

// newSession создаёт Session поверх записи аккаунта и её клиента.
func (r *Registry) newSession(acc Account) (*Session, error) {
	client, err := r.factory.New(acc.Phone)
	if err != nil {
		return nil, wrapError(KindRemote, "failed to create telegram client", err)
	}
	owned := acc
	lock := r.lockFor(acc.Phone)
	return &Session{
		acc:        &owned,
		client:     client,
		persist:    func() error { return r.persistAccount(&owned) },
		removeBlob: func() error { return r.factory.RemoveSession(owned.Phone) },
		lock:       lock.Lock,
		unlock:     lock.Unlock,
	}, nil
}

// lockFor возвращает постоянный мьютекс аккаунта. Мьютекс переживает
// пересоздание Session, чтобы очередь ожидающих не терялась.
func (r *Registry) lockFor(phoneDigits string) *sync.Mutex {
	if lock, ok := r.locks[phoneDigits]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	r.locks[phoneDigits] = lock
	return lock
}

// Register добавляет аккаунт в реестр в состоянии Disconnected.
// Невалидный номер — InvalidPhone, дубликат — AlreadyExists.
func (r *Registry) Register(rawPhone string) (Account, error) {
	parsed, err := phone.Parse(rawPhone)
	if err != nil {
		return Account{}, wrapError(KindInvalidPhone, "invalid phone number", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[parsed]; ok {
		return Account{}, NewError(KindAlreadyExists, "account is already registered")
	}

	acc := Account{Phone: parsed, State: StateDisconnected}
	sess, err := r.newSession(acc)
	if err != nil {
		return Account{}, err
	}
	r.records[parsed] = acc
	r.sessions[parsed] = sess
	if err := r.writeLocked(); err != nil {
		delete(r.records, parsed)
		delete(r.sessions, parsed)
		_ = sess.client.Close()
		return Account{}, wrapError(KindStorage, "failed to persist accounts", err)
	}
	logger.Infof("accounts: registered +%s", parsed)
	return acc, nil
}

// Remove удаляет аккаунт: best-effort logout, удаление файла сессии, запись
// реестра. После Remove номер можно зарегистрировать заново с чистого листа.
func (r *Registry) Remove(ctx context.Context, rawPhone string) error {
	sess, err := r.Get(rawPhone)
	if err != nil {
		return err
	}

	// Logout вне блокировки реестра: сетевые вызовы не должны задерживать
	// операции других аккаунтов.
	if err := sess.Logout(ctx, true); err != nil {
		logger.Warnf("accounts: logout during removal of +%s: %v", sess.Phone(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.Phone()]; !ok {
		return NewError(KindNotFound, "account is not registered")
	}
	delete(r.records, sess.Phone())
	delete(r.sessions, sess.Phone())
	if err := r.writeLocked(); err != nil {
		return wrapError(KindStorage, "failed to persist accounts", err)
	}
	logger.Infof("accounts: removed +%s", sess.Phone())
	return nil
}

// Get возвращает сессию аккаунта по номеру в любом принимаемом формате.
func (r *Registry) Get(rawPhone string) (*Session, error) {
	normalized := phone.Normalize(rawPhone)

	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[normalized]
	if !ok {
		return nil, NewError(KindNotFound, "account is not registered")
	}
	return sess, nil
}

// List возвращает снимки всех аккаунтов, отсортированные по номеру.
// Снимки отражают последнее сохранённое состояние.
func (r *Registry) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, 0, len(r.records))
	for _, acc := range r.records {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

// ListConnected возвращает сессии подключённых аккаунтов. При verifyLive
// каждое состояние перепроверяется живым запросом к Telegram; мёртвые
// сессии при этом корректируются на диске и в выборку не попадают.
func (r *Registry) ListConnected(ctx context.Context, verifyLive bool) []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for phoneDigits, sess := range r.sessions {
		if !verifyLive && r.records[phoneDigits].State != StateConnected {
			continue
		}
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Phone() < sessions[j].Phone() })
	if !verifyLive {
		return sessions
	}

	out := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.IsConnected(ctx) {
			out = append(out, sess)
		}
	}
	return out
}

// Close закрывает клиентов всех аккаунтов. Реестр после Close непригоден.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phoneDigits, sess := range r.sessions {
		if err := sess.client.Close(); err != nil {
			logger.Debugf("accounts: close client +%s: %v", phoneDigits, err)
		}
	}
}

// persistAccount фиксирует снимок записи и переписывает документ на диске.
// Вызывается из Session под его мьютексом — живую запись читать безопасно.
// Если аккаунт уже удалён из реестра, запись молча пропускается.
func (r *Registry) persistAccount(acc *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[acc.Phone]; !ok {
		return nil
	}
	r.records[acc.Phone] = acc.Clone()
	return r.writeLocked()
}

func (r *Registry) writeLocked() error {
	doc := registryDoc{
		Version:  registryVersion,
		Accounts: r.records,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal accounts")
	}
	if err := storage.EnsureDir(filepath.Dir(r.path)); err != nil {
		return err
	}
	return storage.AtomicWriteFile(r.path, raw)
}
