// Package textutil provides text helpers for video overlay rendering.
package textutil

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// RemoveAccents converts accented characters to their plain ASCII base form
// via canonical decomposition, dropping combining marks. OpenCV's overlay
// text rendering cannot draw non-ASCII glyphs.
func RemoveAccents(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		return s
	}
	return out
}
