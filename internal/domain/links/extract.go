// Файл extract.go — извлечение ссылок из текста сообщений.
// Три независимых класса шаблонов: приватные инвайты, публичные каналы,
// обычные URL. Одно сообщение может дать находки нескольких классов.
package links

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
)

// Классы извлечённых ссылок. Значения сериализуются в записи хранилища.
const (
	KindInvite  = "invite"
	KindChannel = "channel"
	KindWebsite = "website"
)

// Link — одна находка: нормализованный URL и его класс.
type Link struct {
	URL  string
	Kind string
}

var (
	// inviteRe ловит приватные инвайты обеих форм: joinchat/<hash> и +<hash>.
	inviteRe = regexp.MustCompile(`(?i)\b(?:https?://)?t(?:elegram)?\.me/(?:joinchat/|\+)[A-Za-z0-9_-]+`)
	// channelRe ловит публичные имена каналов/пользователей.
	channelRe = regexp.MustCompile(`(?i)\b(?:https?://)?t(?:elegram)?\.me/([A-Za-z][A-Za-z0-9_]{2,31})\b`)
	// websiteRe ловит обычные ссылки с явной схемой.
	websiteRe = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"')]+`)
)

// reservedPaths — служебные пути t.me, не являющиеся именами каналов.
var reservedPaths = map[string]struct{}{
	"joinchat":     {},
	"addstickers":  {},
	"share":        {},
	"proxy":        {},
	"socks":        {},
	"iv":           {},
	"s":            {},
	"setlanguage":  {},
	"confirmphone": {},
}

// Extract возвращает ссылки из текста. Классы проверяются по отдельности;
// дубликаты внутри сообщения схлопываются по нормализованному URL, при
// пересечении классов приоритет у более специфичного (инвайт > канал > URL).
func Extract(text string) []Link {
	seen := make(map[string]struct{})
	out := make([]Link, 0, 4)

	add := func(raw, kind string) {
		normalized, err := NormalizeURL(raw)
		if err != nil {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		out = append(out, Link{URL: normalized, Kind: kind})
	}

	for _, m := range inviteRe.FindAllString(text, -1) {
		add(m, KindInvite)
	}
	for _, m := range channelRe.FindAllStringSubmatch(text, -1) {
		username := strings.ToLower(m[1])
		if _, reserved := reservedPaths[username]; reserved {
			continue
		}
		add("https://t.me/"+username, KindChannel)
	}
	for _, m := range websiteRe.FindAllString(text, -1) {
		add(m, KindWebsite)
	}
	return out
}

// NormalizeURL приводит ссылку к канонической форме: схема + хост + путь,
// без хвостового слэша, без query и fragment. Ссылки t.me без схемы
// получают https, telegram.me схлопывается в t.me.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), `.,;:!?)'"`)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url without host")
	}
	if host == "telegram.me" {
		host = "t.me"
	}

	path := parsed.EscapedPath()
	for strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	// Имена каналов регистронезависимы, поэтому голый username на t.me
	// приводится к нижнему регистру. Инвайт-хэши (joinchat/, +) регистр
	// сохраняют: для них регистр значим.
	if host == "t.me" {
		if seg := strings.TrimPrefix(path, "/"); seg != "" &&
			!strings.HasPrefix(seg, "+") && !strings.Contains(seg, "/") {
			path = "/" + strings.ToLower(seg)
		}
	}
	return strings.ToLower(parsed.Scheme) + "://" + host + path, nil
}

// NormalizeChannel приводит имя канала к каноническому виду: без @,
// без префикса t.me/, в нижнем регистре. Используется как метка источника.
func NormalizeChannel(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "t.me/")
	name = strings.TrimPrefix(name, "telegram.me/")
	name = strings.TrimPrefix(name, "@")
	return strings.ToLower(name)
}
