package phone_test

import (
	"testing"

	"telegram-linkgrabber/internal/infra/phone"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plainDigits", in: "989121234567", want: "989121234567"},
		{name: "leadingPlus", in: "+989121234567", want: "989121234567"},
		{name: "spacesAndDashes", in: "+98 912-123-45-67", want: "989121234567"},
		{name: "parens", in: "+7 (912) 345 67 89", want: "79123456789"},
		{name: "empty", in: "", want: ""},
		{name: "noDigits", in: "abc+-", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := phone.Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// Нормализация обязана быть идемпотентной: повторный прогон ничего не меняет.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"+989121234567", "8 (800) 555-35-35", "12345"} {
		once := phone.Normalize(in)
		twice := phone.Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	if _, err := phone.Parse("++"); err == nil {
		t.Fatal("Parse(no digits) expected error")
	}
	if _, err := phone.Parse("123"); err == nil {
		t.Fatal("Parse(too short) expected error")
	}
	got, err := phone.Parse("+989121234567")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "989121234567" {
		t.Fatalf("Parse = %q, want 989121234567", got)
	}
	if e := phone.E164(got); e != "+989121234567" {
		t.Fatalf("E164 = %q", e)
	}
}
