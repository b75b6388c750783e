package enhance

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviation classes decide whether a period after a known token ends a sentence.
type abbreviation uint8

const (
	abbrevNeverEnds abbreviation = iota + 1
	abbrevMayEnd
)

var abbreviations = map[string]abbreviation{
	"e.g": abbrevNeverEnds, "i.e": abbrevNeverEnds, "cf": abbrevNeverEnds,
	"etc": abbrevMayEnd, "vs": abbrevMayEnd,
	"dr": abbrevNeverEnds, "mr": abbrevNeverEnds, "mrs": abbrevNeverEnds, "ms": abbrevNeverEnds,
	"prof": abbrevNeverEnds, "sr": abbrevNeverEnds, "jr": abbrevNeverEnds,
	"fig": abbrevNeverEnds, "sec": abbrevNeverEnds, "ref": abbrevNeverEnds,
	"approx": abbrevNeverEnds, "min": abbrevNeverEnds, "hrs": abbrevNeverEnds, "hr": abbrevNeverEnds,
	"oz": abbrevNeverEnds, "lbs": abbrevNeverEnds, "tsp": abbrevNeverEnds, "tbsp": abbrevNeverEnds,
}

// staysLowercase lists abbreviations that keep their case at a sentence start.
var staysLowercase = map[string]struct{}{"e.g": {}, "i.e": {}, "etc": {}, "vs": {}}

// boundaryWords after an ambiguous abbreviation start a new sentence even in lowercase.
var boundaryWords = map[string]struct{}{
	"finally": {}, "however": {}, "meanwhile": {}, "next": {}, "then": {}, "therefore": {},
	"he": {}, "i": {}, "it": {}, "she": {}, "they": {}, "we": {}, "you": {},
}

var (
	pronounContraction = regexp.MustCompile(`\bi['’](?:m|d|ll|ve|re|s)\b`)
	pronounWord        = regexp.MustCompile(`\bi\b`)
)

// sentenceCase capitalizes sentence starts and the pronoun I.
func sentenceCase(text string) string {
	return capitalizePronounI(capitalizeSentences(text))
}

func capitalizeSentences(text string) string {
	runes := []rune(text)
	var out strings.Builder
	out.Grow(len(text))

	atStart := true
	pending := false
	spaced := false
	for i, r := range runes {
		switch {
		case atStart && unicode.IsLetter(r):
			if capitalizable(runes, i) {
				r = unicode.ToUpper(r)
			}
			atStart, pending, spaced = false, false, false
		case pending:
			switch {
			case unicode.IsSpace(r):
				spaced = true
			case unicode.IsLetter(r):
				if spaced && capitalizable(runes, i) {
					r = unicode.ToUpper(r)
				}
				pending, spaced = false, false
			case isWrapperRune(r):
			default:
				if unicode.IsDigit(r) || !spaced {
					pending, spaced = false, false
				}
			}
		}
		out.WriteRune(r)

		switch r {
		case '.':
			pending, spaced = endsSentence(runes, i), false
		case '!', '?':
			pending, spaced = true, false
		}
	}
	return out.String()
}

// endsSentence reports whether the period at idx terminates a sentence.
func endsSentence(runes []rune, idx int) bool {
	if idx+1 < len(runes) {
		next := runes[idx+1]
		// 3.14, example.com, ...
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.' {
			return false
		}
	}

	token := strings.ToLower(tokenBefore(runes, idx))
	if token == "" {
		return true
	}
	kind, known := abbreviations[token]
	switch {
	case known && kind == abbrevNeverEnds:
		return false
	case known || isInitialism(token):
		return nextStartsSentence(runes, idx+1)
	}
	return true
}

func nextStartsSentence(runes []rune, from int) bool {
	start := -1
	for i := from; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsSpace(r) || isWrapperRune(r) {
			continue
		}
		if unicode.IsLetter(r) {
			start = i
		}
		break
	}
	if start < 0 {
		return true
	}
	if unicode.IsUpper(runes[start]) {
		return true
	}
	_, ok := boundaryWords[strings.ToLower(wordAt(runes, start))]
	return ok
}

// tokenBefore returns the letters-and-dots token ending at the period idx.
func tokenBefore(runes []rune, idx int) string {
	start := idx - 1
	for start >= 0 && (unicode.IsLetter(runes[start]) || runes[start] == '.') {
		start--
	}
	return strings.Trim(string(runes[start+1:idx]), ".")
}

func wordAt(runes []rune, idx int) string {
	end := idx
	for end < len(runes) && unicode.IsLetter(runes[end]) {
		end++
	}
	return string(runes[idx:end])
}

// isInitialism matches u.s, p.m, a.k.a.
func isInitialism(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if utf8.RuneCountInString(part) != 1 {
			return false
		}
		r, _ := utf8.DecodeRuneInString(part)
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func capitalizable(runes []rune, idx int) bool {
	end := idx
	for end < len(runes) && (unicode.IsLetter(runes[end]) || runes[end] == '.') {
		end++
	}
	token := strings.ToLower(strings.Trim(string(runes[idx:end]), "."))
	_, lower := staysLowercase[token]
	return !lower
}

func isWrapperRune(r rune) bool {
	switch r {
	case '(', '[', '{', '\'', '"', '‘', '“', ')', ']', '}', '’', '”':
		return true
	}
	return false
}

// capitalizePronounI upper-cases a standalone "i" and its contractions,
// leaving initialisms such as "i.e." alone.
func capitalizePronounI(text string) string {
	text = pronounContraction.ReplaceAllStringFunc(text, func(m string) string {
		return "I" + m[1:]
	})

	matches := pronounWord.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var out strings.Builder
	out.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		out.WriteString(text[last:start])
		if partOfInitialism(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteString("I")
		}
		last = end
	}
	out.WriteString(text[last:])
	return out.String()
}

func partOfInitialism(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '.' {
		if r, _ := utf8.DecodeRuneInString(text[end+1:]); unicode.IsLetter(r) {
			return true
		}
	}
	if start > 1 && text[start-1] == '.' && end < len(text) && text[end] == '.' {
		if r, _ := utf8.DecodeLastRuneInString(text[:start-1]); unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
