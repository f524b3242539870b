// Файл classifier.go — детерминированный классификатор текста по таблице
// ключевых слов.
package links

import "strings"

// Classifier считает вхождения ключевых слов по категориям. Совпадение —
// подстрочное, без токенизации: «музыка» матчится ключом «музык».
type Classifier struct {
	categories []Category
}

// NewClassifier создаёт классификатор поверх упорядоченной таблицы категорий.
func NewClassifier(categories []Category) *Classifier {
	owned := make([]Category, len(categories))
	copy(owned, categories)
	return &Classifier{categories: owned}
}

// Classify возвращает категорию с наибольшим числом совпадений ключевых слов
// в тексте. При нулевых совпадениях возвращает ("", false). Ничья решается
// в пользу категории, зарегистрированной раньше.
func (c *Classifier) Classify(text string) (string, bool) {
	lowered := strings.ToLower(text)

	best := ""
	bestCount := 0
	for _, cat := range c.categories {
		count := 0
		for _, keyword := range cat.Keywords {
			if keyword == "" {
				continue
			}
			count += strings.Count(lowered, strings.ToLower(keyword))
		}
		if count > bestCount {
			best = cat.Name
			bestCount = count
		}
	}
	if bestCount == 0 {
		return "", false
	}
	return best, true
}

// Categories возвращает имена категорий в порядке регистрации.
func (c *Classifier) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		names = append(names, cat.Name)
	}
	return names
}
