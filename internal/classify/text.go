package classify

import (
	"strings"
	"unicode"

	"github.com/MrWong99/visemesync/pkg/viseme"
)

// digraphs are consumed greedily before single letters.
var digraphs = map[[2]rune]viseme.Viseme{
	{'t', 'h'}: viseme.TongueVisible,
	{'c', 'h'}: viseme.Pucker,
	{'s', 'h'}: viseme.Pucker,
	{'w', 'h'}: viseme.Pucker,
	{'o', 'o'}: viseme.Pucker,
	{'p', 'h'}: viseme.TeethOnLip,
	{'e', 'e'}: viseme.WideSmile,
}

// letters maps single lowercase letters. Anything missing falls through to
// [viseme.SmallOpen].
var letters = map[rune]viseme.Viseme{
	'b': viseme.PressedLips,
	'm': viseme.PressedLips,
	'p': viseme.PressedLips,

	'f': viseme.TeethOnLip,
	'v': viseme.TeethOnLip,

	'a': viseme.WideOpen,
	'h': viseme.WideOpen,

	'o': viseme.Rounded,

	'u': viseme.Pucker,
	'w': viseme.Pucker,
	'q': viseme.Pucker,

	'e': viseme.WideSmile,
	'i': viseme.WideSmile,
	'y': viseme.WideSmile,
}

// Word is the classification of a single whitespace-delimited word.
type Word struct {
	// Text is the lowercased word with punctuation removed.
	Text string

	// Visemes is the sequence produced for Text. Never contains Silence.
	Visemes []viseme.Viseme
}

// Text classifies utterance into a viseme sequence from the extended
// vocabulary. Silence is inserted between words only, never before the first
// or after the last. Input without any speakable characters yields a single
// Silence so callers always receive at least one symbol.
func Text(utterance string) []viseme.Viseme {
	words := TextWords(utterance)
	if len(words) == 0 {
		return []viseme.Viseme{viseme.Silence}
	}

	n := len(words) - 1
	for _, w := range words {
		n += len(w.Visemes)
	}
	out := make([]viseme.Viseme, 0, n)
	for i, w := range words {
		if i > 0 {
			out = append(out, viseme.Silence)
		}
		out = append(out, w.Visemes...)
	}
	return out
}

// TextWords splits utterance into words and classifies each one. Words that
// produce no visemes (pure punctuation, or a lone silent letter) are dropped.
func TextWords(utterance string) []Word {
	fields := strings.Fields(strings.ToLower(utterance))
	words := make([]Word, 0, len(fields))
	for _, f := range fields {
		clean := speakable(f)
		if len(clean) == 0 {
			continue
		}
		vs := scanWord(clean)
		if len(vs) == 0 {
			continue
		}
		words = append(words, Word{Text: string(clean), Visemes: vs})
	}
	return words
}

// speakable keeps letters and digits.
func speakable(word string) []rune {
	out := make([]rune, 0, len(word))
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// scanWord runs the character state machine over one cleaned word.
func scanWord(rs []rune) []viseme.Viseme {
	out := make([]viseme.Viseme, 0, len(rs))
	for i := 0; i < len(rs); {
		if i+1 < len(rs) {
			if v, ok := digraphs[[2]rune{rs[i], rs[i+1]}]; ok {
				out = append(out, v)
				i += 2
				continue
			}
		}

		// Silent terminal e.
		if rs[i] == 'e' && i == len(rs)-1 && len(rs) > 2 {
			i++
			continue
		}

		v, ok := letters[rs[i]]
		if !ok {
			v = viseme.SmallOpen
		}
		out = append(out, v)
		i++
	}
	return out
}
