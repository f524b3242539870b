// Package storage — утилиты безопасной работы с локальными файлами.
// Здесь живут EnsureDir и AtomicWriteFile: реестр аккаунтов и файлы MTProto‑сессий
// не должны оказываться на диске в частично записанном виде, иначе падение
// процесса в середине сохранения может уничтожить и старое состояние тоже.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"telegram-linkgrabber/internal/infra/logger"
)

// defaultFilePerm — права на итоговый файл при атомарной записи.
// 0o600: сессии и реестр содержат чувствительные данные, доступ только владельцу.
const defaultFilePerm = 0o600

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
// Каталог создаётся с правами 0o700.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает байты в файл path.
//
// Алгоритм: temp в той же директории → write → fsync(temp) → chmod → close →
// rename → fsync(dir). Либо старый файл остаётся цел, либо новый записан
// полностью. os.Rename атомарен только в пределах одного файлового тома,
// поэтому temp создаётся рядом с целевым файлом. fsync каталога — best‑effort:
// некоторые ОС/ФС его игнорируют.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = tmp.Chmod(defaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// На POSIX rename поверх существующего файла атомарен.
	if err = os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// fsync каталога журналирует запись имени файла.
	if dirFile, openErr := os.Open(dir); openErr == nil {
		if syncErr := dirFile.Sync(); syncErr != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", syncErr)
		}
		_ = dirFile.Close()
	}
	return nil
}
