// Package langmeta turns language codes into the display names used in
// prompts and CLI output. Names come from the CLDR data in golang.org/x/text.
package langmeta

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	// Code is the canonical BCP 47 tag, empty when the input was not a code.
	Code string
	// Name is the English name ("Ukrainian").
	Name string
	// Native is the self name ("українська").
	Native string
}

var codePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns display metadata for a language code such as "uk",
// "pt_BR" or "ru-RU". Values that are not codes ("Ukrainian") and codes
// CLDR does not know are passed through unchanged.
func Resolve(lang string) Meta {
	trimmed := strings.TrimSpace(lang)
	passthrough := Meta{Name: trimmed, Native: trimmed}

	normalized := canonicalize(trimmed)
	if !codePattern.MatchString(normalized) {
		return passthrough
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return passthrough
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return passthrough
	}
	native := display.Self.Name(tag)
	if native == "" {
		native = name
	}
	return Meta{Code: tag.String(), Name: name, Native: native}
}

// Name returns the English name of a language code, or the input itself.
func Name(lang string) string {
	return Resolve(lang).Name
}

// Native returns the self name of a language code, or the input itself.
func Native(lang string) string {
	return Resolve(lang).Native
}
