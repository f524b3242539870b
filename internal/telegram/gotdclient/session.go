// Файл session.go — файловое хранилище MTProto-сессии одного аккаунта.
// Каждый номер владеет собственным credential-блобом; имя файла детерминированно
// выводится из канонической формы номера. Запись атомарная: успешное обновление
// сессии фиксирует удачный логин/реавторизацию, и терять её при падении нельзя.

package gotdclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"telegram-linkgrabber/internal/infra/storage"

	"github.com/go-faster/errors"

	tdsession "github.com/gotd/td/session"
)

// SessionPath возвращает путь credential-блоба для номера в каноническом виде.
func SessionPath(dir, phone string) string {
	return filepath.Join(dir, "acc_"+phone+".session")
}

// fileStorage реализует tdsession.Storage поверх обычного файла.
// Потокобезопасен: операции Load/Store защищены мьютексом.
type fileStorage struct {
	path string
	mux  sync.Mutex
}

var _ tdsession.Storage = (*fileStorage)(nil)

// LoadSession читает файл сессии с диска.
func (f *fileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии на диск.
func (f *fileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	if err := storage.AtomicWriteFile(f.path, data); err != nil {
		return fmt.Errorf("atomic write session: %w", err)
	}
	return nil
}

// RemoveSession удаляет credential-блоб аккаунта с диска. Отсутствие файла — не ошибка.
func RemoveSession(dir, phone string) error {
	err := os.Remove(SessionPath(dir, phone))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
