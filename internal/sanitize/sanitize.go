// Package sanitize turns raw completion text into PlantUML source.
package sanitize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ObjectMarker is the placeholder some backends emit instead of content.
const ObjectMarker = "[object Object]"

// innermostBraces matches a brace pair with no braces inside; applying it
// repeatedly removes nested fragments from the inside out.
var innermostBraces = regexp.MustCompile(`\{[^{}]*\}`)

// Sanitizer cleans completion text. The zero value leaves braces alone;
// use Default for the standard behaviour.
type Sanitizer struct {
	// StripBraces removes every brace-delimited fragment. PlantUML uses
	// braces for class bodies and groupings, so this destroys valid
	// source; it exists for backends that leak serialized objects.
	StripBraces bool
}

// Default strips braces.
var Default = Sanitizer{StripBraces: true}

// Sanitize cleans raw with the Default sanitizer.
func Sanitize(raw string) string {
	return Default.Sanitize(raw)
}

// Sanitize decodes literal escape sequences, drops marker lines, strips
// brace fragments if enabled and trims the result. The pass is repeated
// until the text is stable, so Sanitize(Sanitize(x)) == Sanitize(x).
func (s Sanitizer) Sanitize(raw string) string {
	out := raw
	for {
		next := s.pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func (s Sanitizer) pass(text string) string {
	text = DecodeEscapes(text)
	text = DropMarkerLines(text)
	if s.StripBraces {
		text = StripBraces(text)
	}
	return strings.TrimSpace(text)
}

// DecodeEscapes replaces backslash escapes written as literal text with
// the characters they denote. CRLF line endings become LF. Malformed or
// unknown escapes are left as they are.
func DecodeEscapes(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.Contains(text, `\`) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '\\' || i+1 >= len(text) {
			b.WriteByte(text[i])
			i++
			continue
		}

		switch next := text[i+1]; next {
		case '"', '\'':
			b.WriteByte(next)
			i += 2
			continue
		}

		// \xHH and octal escapes decode to the code point U+00HH.
		value, _, tail, err := strconv.UnquoteChar(text[i:], 0)
		if err != nil {
			b.WriteByte(text[i])
			i++
			continue
		}
		b.WriteRune(value)
		i = len(text) - len(tail)
	}
	return b.String()
}

// DropMarkerLines removes every line containing ObjectMarker and joins
// the rest with LF. Any Unicode line boundary ends a line, so a lone CR,
// form feed or U+2028 separates lines just like LF.
func DropMarkerLines(text string) string {
	lines := splitLines(text)
	kept := lines[:0]
	for _, line := range lines {
		if !strings.Contains(line, ObjectMarker) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// splitLines splits text at LF, CR, CRLF, VT, FF, FS, GS, RS, NEL, LS
// and PS. A trailing boundary does not start an empty final line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if i < start {
			continue
		}
		switch r {
		case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		default:
			continue
		}
		lines = append(lines, text[start:i])
		start = i + utf8.RuneLen(r)
		if r == '\r' && strings.HasPrefix(text[start:], "\n") {
			start++
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// StripBraces removes brace-delimited fragments, including ones that span
// lines or nest, until no balanced pair remains.
func StripBraces(text string) string {
	for innermostBraces.MatchString(text) {
		text = innermostBraces.ReplaceAllString(text, "")
	}
	return text
}
