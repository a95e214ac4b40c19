package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zombar/aletheia/internal/models"
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}']+`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// minRepeatedWordLength and minRepeatRun bound the repetition detector:
// "no no no" is emphasis, "never never never" is an anomaly.
const (
	minRepeatedWordLength = 4
	minRepeatRun          = 3
)

// folded is a lower-cased copy of a text that remembers where each of its
// bytes came from. Lower-casing can change a rune's encoded length, so
// offsets into lower are not offsets into original.
type folded struct {
	original string
	lower    string
	// offsets[i] is the byte offset in original of lower[i]; the final entry
	// is len(original)
	offsets []int
}

func fold(text string) folded {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)

	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		n := b.Len()
		if r == utf8.RuneError && w == 1 {
			b.WriteByte(text[i])
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		for j := n; j < b.Len(); j++ {
			offsets = append(offsets, i)
		}
		i += w
	}
	offsets = append(offsets, len(text))

	return folded{original: text, lower: b.String(), offsets: offsets}
}

// span maps the lower-cased range [start, end) back onto the original text,
// returning the original substring and its byte offset
func (f folded) span(start, end int) (string, int) {
	from, to := f.offsets[start], f.offsets[end]
	return f.original[from:to], from
}

// textStats counts characters, words and sentences
func textStats(text string) models.TextStats {
	return models.TextStats{
		Characters: utf8.RuneCountInString(text),
		Words:      len(wordPattern.FindAllStringIndex(text, -1)),
		Sentences:  countSentences(text),
	}
}

// countSentences counts sentence terminators, treating unterminated text as
// one sentence
func countSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	matches := sentencePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return 1
	}
	return len(matches)
}

// repetition is a byte range of the lower-cased text
type repetition struct {
	start, end int
}

// findRepetitions returns each run of the same word repeated at least
// minRepeatRun times in a row. The input is expected lower-cased.
func findRepetitions(lowered string) []repetition {
	locs := wordPattern.FindAllStringIndex(lowered, -1)

	var out []repetition
	for i := 0; i < len(locs); {
		word := lowered[locs[i][0]:locs[i][1]]
		j := i + 1
		for j < len(locs) && lowered[locs[j][0]:locs[j][1]] == word {
			j++
		}
		if j-i >= minRepeatRun && utf8.RuneCountInString(word) >= minRepeatedWordLength {
			out = append(out, repetition{start: locs[i][0], end: locs[j-1][1]})
		}
		i = j
	}
	return out
}
