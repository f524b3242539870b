package links_test

import (
	"reflect"
	"testing"

	"telegram-linkgrabber/internal/domain/links"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []links.Link
	}{
		{
			name: "пустой текст",
			text: "просто сообщение без ссылок",
			want: []links.Link{},
		},
		{
			name: "инвайт формы joinchat",
			text: "залетай https://t.me/joinchat/AbCd_123",
			want: []links.Link{{URL: "https://t.me/joinchat/AbCd_123", Kind: links.KindInvite}},
		},
		{
			name: "инвайт формы плюс",
			text: "залетай https://t.me/+AbCd1234",
			want: []links.Link{{URL: "https://t.me/+AbCd1234", Kind: links.KindInvite}},
		},
		{
			name: "публичный канал",
			text: "наш канал t.me/GoNews_ru подпишись",
			want: []links.Link{{URL: "https://t.me/gonews_ru", Kind: links.KindChannel}},
		},
		{
			name: "канал со схемой и смешанным регистром не двоится",
			text: "наш канал https://t.me/GoNews_ru подпишись",
			want: []links.Link{{URL: "https://t.me/gonews_ru", Kind: links.KindChannel}},
		},
		{
			name: "обычный сайт",
			text: "читай тут: https://example.com/article/42.",
			want: []links.Link{{URL: "https://example.com/article/42", Kind: links.KindWebsite}},
		},
		{
			name: "инвайт и сайт в одном сообщении",
			text: "join us at https://t.me/+AbCd1234 and check https://example.com/news",
			want: []links.Link{
				{URL: "https://t.me/+AbCd1234", Kind: links.KindInvite},
				{URL: "https://example.com/news", Kind: links.KindWebsite},
			},
		},
		{
			name: "инвайт не считается каналом и сайтом повторно",
			text: "https://t.me/joinchat/XyZ123",
			want: []links.Link{{URL: "https://t.me/joinchat/XyZ123", Kind: links.KindInvite}},
		},
		{
			name: "telegram.me схлопывается в t.me",
			text: "https://telegram.me/somechannel",
			want: []links.Link{{URL: "https://t.me/somechannel", Kind: links.KindChannel}},
		},
		{
			name: "дубликаты в одном сообщении",
			text: "https://example.com/a https://example.com/a/",
			want: []links.Link{{URL: "https://example.com/a", Kind: links.KindWebsite}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := links.Extract(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Extract(%q) = %+v, ожидали %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://Example.COM/Path/", "https://example.com/Path", false},
		{"http://example.com/a//", "http://example.com/a", false},
		{"https://example.com/page?utm=1#frag", "https://example.com/page", false},
		{"t.me/somechannel", "https://t.me/somechannel", false},
		{"https://t.me/GoNews_ru", "https://t.me/gonews_ru", false},
		{"https://t.me/+AbCd1234", "https://t.me/+AbCd1234", false},
		{"https://t.me/joinchat/AbCd_123", "https://t.me/joinchat/AbCd_123", false},
		{"https://example.com/end.", "https://example.com/end", false},
		{"", "", true},
		{"https://", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := links.NormalizeURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NormalizeURL(%q): ожидали ошибку, получили %q", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, ожидали %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeChannel(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"@GoNews", "gonews"},
		{"t.me/GoNews", "gonews"},
		{"https://t.me/GoNews", "gonews"},
		{"  gonews  ", "gonews"},
	}
	for _, tc := range tests {
		if got := links.NormalizeChannel(tc.in); got != tc.want {
			t.Errorf("NormalizeChannel(%q) = %q, ожидали %q", tc.in, got, tc.want)
		}
	}
}
