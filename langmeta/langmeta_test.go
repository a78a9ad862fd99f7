package langmeta

import (
	"strings"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("code to english name", func(t *testing.T) {
		if got := Name("ru"); got != "Russian" {
			t.Fatalf("Name(ru) = %q, want Russian", got)
		}
		if got := Name("uk"); got != "Ukrainian" {
			t.Fatalf("Name(uk) = %q, want Ukrainian", got)
		}
	})

	t.Run("region variant", func(t *testing.T) {
		got := Resolve("uk_UA")
		if !strings.HasPrefix(got.Name, "Ukrainian") {
			t.Fatalf("unexpected result: %#v", got)
		}
		if got.Code != "uk-UA" {
			t.Fatalf("Code = %q, want uk-UA", got.Code)
		}
	})

	t.Run("native name", func(t *testing.T) {
		if got := Native("ru"); got != "русский" {
			t.Fatalf("Native(ru) = %q, want русский", got)
		}
	})

	t.Run("names pass through", func(t *testing.T) {
		got := Resolve(" Ukrainian ")
		if got.Name != "Ukrainian" || got.Code != "" {
			t.Fatalf("unexpected passthrough result: %#v", got)
		}
	})
}
