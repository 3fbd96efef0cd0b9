// Package phonetic manages the per-language phonetic lexicon: plain and
// aligned uploads, the review workflow, structured orthography rules, and the
// grapheme fallback the phonetic rendering mode uses for words the lexicon
// does not cover.
package phonetic

import (
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// PlainEntry is one parsed row of a plain lexicon upload.
type PlainEntry struct {
	Word     string
	Phonemes string
}

// AlignedEntry is one parsed row of an aligned lexicon upload.
type AlignedEntry struct {
	Word             string
	Phonemes         string
	AlignedGraphemes string
	AlignedPhonemes  string
}

// ParsePlainLexicon decodes an upload of one entry per line,
// word<TAB>phonemes. Blank lines are skipped.
func ParsePlainLexicon(data []byte) ([]PlainEntry, error) {
	var entries []PlainEntry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			return nil, clerror.New(clerror.Validation,
				"line %d has %d tab-separated columns, expected word<TAB>phonemes", i+1, len(cols))
		}
		word := strings.TrimSpace(cols[0])
		phonemes := strings.TrimSpace(cols[1])
		if word == "" || phonemes == "" {
			return nil, clerror.New(clerror.Validation, "line %d has an empty word or phonemes", i+1)
		}
		entries = append(entries, PlainEntry{Word: word, Phonemes: phonemes})
	}
	return entries, nil
}

// ParseAlignedLexicon decodes an upload of one entry per line,
// word<TAB>phonemes<TAB>aligned_graphemes<TAB>aligned_phonemes, with aligned
// segments separated by "|". Every entry must satisfy the concatenation
// invariant.
func ParseAlignedLexicon(data []byte) ([]AlignedEntry, error) {
	var entries []AlignedEntry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			return nil, clerror.New(clerror.Validation,
				"line %d has %d tab-separated columns, expected word, phonemes, aligned graphemes, aligned phonemes", i+1, len(cols))
		}
		entry := AlignedEntry{
			Word:             strings.TrimSpace(cols[0]),
			Phonemes:         strings.TrimSpace(cols[1]),
			AlignedGraphemes: strings.TrimSpace(cols[2]),
			AlignedPhonemes:  strings.TrimSpace(cols[3]),
		}
		if err := CheckAlignment(entry); err != nil {
			return nil, clerror.Wrap(clerror.Validation, err, "line %d", i+1)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CheckAlignment enforces the aligned-entry invariant: grapheme and phoneme
// segment counts match, concatenated graphemes equal the word, and
// concatenated phonemes equal the phoneme string.
func CheckAlignment(e AlignedEntry) error {
	graphemes := strings.Split(e.AlignedGraphemes, "|")
	phonemes := strings.Split(e.AlignedPhonemes, "|")
	if len(graphemes) != len(phonemes) {
		return clerror.New(clerror.Validation,
			"word %q: %d grapheme segments but %d phoneme segments", e.Word, len(graphemes), len(phonemes))
	}
	if joined := strings.Join(graphemes, ""); joined != e.Word {
		return clerror.New(clerror.Validation,
			"word %q: aligned graphemes concatenate to %q", e.Word, joined)
	}
	if joined := strings.Join(phonemes, ""); joined != e.Phonemes {
		return clerror.New(clerror.Validation,
			"word %q: aligned phonemes concatenate to %q, phonemes are %q", e.Word, joined, e.Phonemes)
	}
	return nil
}
