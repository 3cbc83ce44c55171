// Package moderation censors forbidden words in outgoing message content.
// Matching runs on a normalized view of the text (lower case, leet speak
// folded back, punctuation and spacing stripped) so "B.4.d.g.€r" still hits
// "badger", while the censored output preserves the original spacing.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator holds the compiled Aho-Corasick automaton over the normalized
// word list. Building is the expensive step; Censor itself is a single pass
// over the content and safe for concurrent use.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// runeMapping tracks, for every rune kept in the normalized text, where it
// came from in the original, so a match span maps back to original indexes.
type runeMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator compiles the automaton. Words that normalize to nothing
// (pure punctuation, empty strings) are skipped: they could never match.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		normalized := normalizeRunes([]rune(word))
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}
	mod := Moderator{censoredChar: censoredChar, log: log}
	if len(patterns) == 0 {
		return mod, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	mod.matcher = m
	return mod, nil
}

// Censor replaces every forbidden span with the censored character, one
// replacement rune per original rune so spacing survives. It returns the
// censored content and the normalized words that matched, in text order.
func (m *Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil || original == "" {
		return original, nil
	}
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var words []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
		words = append(words, string(span.Word))
	}

	m.log.Debug("Censored outgoing content", "matches", len(words))
	return string(origRunes), words
}

// normalize builds the searchable view of the input and the index mapping
// back to original rune positions.
func normalize(input string) runeMapping {
	origRunes := []rune(input)
	mapping := runeMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common Leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters ignored during the matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
