package enhance

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bettervoice/bettervoice/internal/classify"
)

// ApplyRules formats text for docType without any model or learned data.
// It is deterministic.
func ApplyRules(text string, docType classify.DocumentType) string {
	if docType == classify.Code {
		return strings.TrimSpace(text)
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	switch docType {
	case classify.Email, classify.Document:
		return ensureTerminator(sentenceCase(text))
	case classify.Message, classify.Social:
		return dropTrailingPeriod(capitalizeFirst(capitalizePronounI(text)))
	case classify.Search:
		return strings.TrimRightFunc(strings.ToLower(text), isTrailingPunct)
	default:
		return sentenceCase(text)
	}
}

// capitalizeFirst upper-cases the first letter unless the text opens with a
// number, hashtag, or mention.
func capitalizeFirst(text string) string {
	for i, r := range text {
		switch {
		case unicode.IsLetter(r):
			return text[:i] + string(unicode.ToUpper(r)) + text[i+utf8.RuneLen(r):]
		case unicode.IsDigit(r), r == '#', r == '@':
			return text
		}
	}
	return text
}

// ensureTerminator appends a period unless text already ends a sentence,
// looking through closing quotes and brackets.
func ensureTerminator(text string) string {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
	})
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '.', '!', '?', ':', ';', '…':
		return text
	case utf8.RuneError:
		return text
	}
	return text + "."
}

// dropTrailingPeriod removes one final period but keeps ellipses.
func dropTrailingPeriod(text string) string {
	if strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "..") {
		return strings.TrimSuffix(text, ".")
	}
	return text
}

func isTrailingPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '…':
		return true
	}
	return false
}
