package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// definePattern matches define('NAME', value); statements. The value is a
// quoted string literal or a bare token (number, boolean, constant).
var definePattern = regexp.MustCompile(`(?m)define\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*,\s*('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|[^)]*?)\s*\)\s*;`)

// ParsePHPFile extracts the define() constants of an OpenCart config.php.
// Keys are returned as written; values are strings, ints or bools.
func ParsePHPFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParsePHP(string(data)), nil
}

// ParsePHP extracts define() constants from PHP source. Expressions the
// parser does not understand (concatenation, function calls) are kept as
// their raw text. Later definitions win, as they do in PHP.
func ParsePHP(src string) map[string]any {
	consts := make(map[string]any)
	for _, m := range definePattern.FindAllStringSubmatch(stripPHPComments(src), -1) {
		consts[m[1]] = phpLiteral(m[2])
	}
	return consts
}

func phpLiteral(raw string) any {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 {
		switch {
		case raw[0] == '\'' && raw[len(raw)-1] == '\'':
			return unescapeSingle(raw[1 : len(raw)-1])
		case raw[0] == '"' && raw[len(raw)-1] == '"':
			return unescapeDouble(raw[1 : len(raw)-1])
		}
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return ""
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}

// unescapeSingle handles the two escapes PHP honours in single quotes.
func unescapeSingle(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\'' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unescapeDouble(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"', '\\', '$':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// stripPHPComments blanks out // and # line comments and /* */ blocks that
// sit outside string literals, so commented-out defines are ignored.
func stripPHPComments(src string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '#' || (c == '/' && i+1 < len(src) && src[i+1] == '/'):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
