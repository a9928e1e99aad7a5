// Package filename derives deterministic output names for downloads.
package filename

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxLength is the longest sanitized name, counted in characters
	MaxLength = 200
	// Extension is used for every final artifact, audio-only included
	Extension = ".mp4"

	invalidChars = `<>:"/\|?*`
	maxExtLength = 10
)

// Sanitize replaces characters that are invalid in filenames with an
// underscore and truncates the result to MaxLength characters, keeping a
// trailing extension intact.
func Sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)

	return Truncate(name, MaxLength)
}

// Truncate shortens name to at most n characters, preserving a short
// extension when present
func Truncate(name string, n int) string {
	if utf8.RuneCountInString(name) <= n {
		return name
	}

	ext := filepath.Ext(name)
	if ext == name || utf8.RuneCountInString(ext) > maxExtLength {
		ext = ""
	}

	stem := []rune(strings.TrimSuffix(name, ext))
	keep := n - utf8.RuneCountInString(ext)
	if keep < 0 {
		keep = 0
	}
	if keep < len(stem) {
		stem = stem[:keep]
	}

	return string(stem) + ext
}

// Resolve returns the final filename for a sanitized title. The suffix is
// appended unless the title already ends with it.
func Resolve(cleanTitle, suffix string) string {
	if suffix != "" && !strings.HasSuffix(cleanTitle, suffix) {
		return cleanTitle + suffix + Extension
	}
	return cleanTitle + Extension
}
