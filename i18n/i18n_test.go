package i18n

import "testing"

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
}

func resetLocale(t *testing.T) {
	t.Helper()
	oldPo, oldActive := po, active
	t.Cleanup(func() { po, active = oldPo, oldActive })
}

func TestDetectLanguagePriorityAndNormalization(t *testing.T) {
	t.Run("LANGUAGE has highest priority", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "uk_UA.UTF-8:en_US")
		t.Setenv("LC_ALL", "de_DE.UTF-8")

		if got := detectLanguage(); got != "uk_UA" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "uk_UA")
		}
	})

	t.Run("C and POSIX are skipped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "C")
		t.Setenv("LC_ALL", "POSIX")
		t.Setenv("LC_MESSAGES", "fr_FR.UTF-8")

		if got := detectLanguage(); got != "fr_FR" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "fr_FR")
		}
	})

	t.Run("falls back to en", func(t *testing.T) {
		clearLocaleEnv(t)
		if got := detectLanguage(); got != "en" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "en")
		}
	})
}

func TestTAndNFallbackWhenUninitialized(t *testing.T) {
	resetLocale(t)
	po = nil

	if got := T("Untranslated categories: %d"); got != "Untranslated categories: %d" {
		t.Fatalf("T fallback = %q", got)
	}
	if got := N("%d category failed", "%d categories failed", 1); got != "%d category failed" {
		t.Fatalf("N singular fallback = %q", got)
	}
	if got := N("%d category failed", "%d categories failed", 2); got != "%d categories failed" {
		t.Fatalf("N plural fallback = %q", got)
	}
	if got := Language(); got != "" {
		t.Fatalf("Language() = %q before Init", got)
	}
}

func TestEmbeddedUkrainianCatalog(t *testing.T) {
	resetLocale(t)
	if got := Init("uk"); got != "uk" {
		t.Fatalf("Init returned %q", got)
	}

	if got := T("Untranslated categories: %d"); got != "Неперекладених категорій: %d" {
		t.Fatalf("T = %q", got)
	}

	cases := map[int]string{
		1:  "%d категорію не вдалося перекласти",
		3:  "%d категорії не вдалося перекласти",
		5:  "%d категорій не вдалося перекласти",
		11: "%d категорій не вдалося перекласти",
		21: "%d категорію не вдалося перекласти",
	}
	for n, want := range cases {
		if got := N("%d category failed", "%d categories failed", n); got != want {
			t.Errorf("N(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestUnknownLanguagePassesThrough(t *testing.T) {
	resetLocale(t)
	Init("xx")

	if got := T("Processed %d/%d categories."); got != "Processed %d/%d categories." {
		t.Fatalf("T = %q", got)
	}
	if got := Language(); got != "xx" {
		t.Fatalf("Language() = %q", got)
	}
}
