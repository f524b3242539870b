// Package links — хранилище ссылок и их классификация.
// Пакет отвечает за:
//   - извлечение ссылок трёх классов из текста сообщений;
//   - нормализацию URL до канонической формы;
//   - классификацию по таблице ключевых слов;
//   - дедупликацию и персистентное хранение находок в bbolt.
package links

import (
	"encoding/json"
	"os"

	"telegram-linkgrabber/internal/infra/logger"

	"github.com/go-faster/errors"
)

// Category — именованная категория с упорядоченным набором ключевых слов.
// Порядок регистрации важен: при равном числе совпадений побеждает
// категория, зарегистрированная раньше.
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// DefaultCategory присваивается ссылкам, для которых не нашлось совпадений
// ни по тексту, ни по источнику.
const DefaultCategory = "general"

// DefaultCategories — встроенная таблица категорий, используется при
// отсутствии файла categories.json.
func DefaultCategories() []Category {
	return []Category{
		{Name: DefaultCategory, Keywords: nil},
		{Name: "media", Keywords: []string{"видео", "фильм", "кино", "сериал", "video", "movie"}},
		{Name: "music", Keywords: []string{"музык", "трек", "альбом", "music", "song", "playlist"}},
		{Name: "sport", Keywords: []string{"спорт", "матч", "футбол", "sport", "match", "league"}},
		{Name: "news", Keywords: []string{"новост", "news", "срочно", "breaking"}},
		{Name: "education", Keywords: []string{"курс", "обучен", "лекци", "course", "learn", "tutorial"}},
		{Name: "fun", Keywords: []string{"мем", "юмор", "смешн", "meme", "funny", "joke"}},
	}
}

// LoadCategories читает таблицу категорий из JSON-файла. Отсутствующий файл
// не ошибка: возвращаются встроенные значения. Повреждённый файл — ошибка,
// чтобы не работать молча с неполной таблицей.
func LoadCategories(path string) ([]Category, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Infof("links: categories file %s not found, using defaults", path)
		return DefaultCategories(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read categories file")
	}

	var categories []Category
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, errors.Wrap(err, "parse categories file")
	}
	if len(categories) == 0 {
		logger.Warnf("links: categories file %s is empty, using defaults", path)
		return DefaultCategories(), nil
	}
	return categories, nil
}
