// Package stream cuts a streamed LLM reply into speakable units.
package stream

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Delimiters close a clause. The delimiter stays with the clause it ends.
const Delimiters = ".,!?~，。！？"

// Segmenter accumulates text and splits off complete clauses. Only text
// appended since the last Push is scanned. Not safe for concurrent use.
type Segmenter struct {
	pending string
	scanned int
}

// Push appends text and returns every clause it completed.
func (s *Segmenter) Push(text string) []string {
	if text == "" {
		return nil
	}
	s.pending += text

	var (
		units []string
		start int
	)
	for i, r := range s.pending[s.scanned:] {
		if !strings.ContainsRune(Delimiters, r) {
			continue
		}
		end := s.scanned + i + utf8.RuneLen(r)
		units = appendUnit(units, s.pending[start:end])
		start = end
	}
	s.pending = s.pending[start:]
	s.scanned = len(s.pending)
	return units
}

// Flush returns whatever fragment is left, or "" when it holds nothing speakable.
func (s *Segmenter) Flush() string {
	rest := s.pending
	s.pending, s.scanned = "", 0
	if units := appendUnit(nil, rest); len(units) == 1 {
		return units[0]
	}
	return ""
}

// Pending reports whether a fragment is buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(s.pending) != ""
}

func appendUnit(units []string, raw string) []string {
	unit := strings.TrimSpace(raw)
	if !speakable(unit) {
		return units
	}
	return append(units, unit)
}

func speakable(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
