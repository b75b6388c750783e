package classify

import (
	"strings"
	"unicode"
)

// Features are lexical measurements of a text, recomputed on demand.
type Features struct {
	SentenceCount      int     `json:"sentence_count"`
	WordCount          int     `json:"word_count"`
	AvgSentenceLength  float64 `json:"avg_sentence_length"`
	Formality          float64 `json:"formality"`
	PunctuationDensity float64 `json:"punctuation_density"`
	TechnicalTerms     int     `json:"technical_terms"`
	HasGreeting        bool    `json:"has_greeting"`
	HasSignature       bool    `json:"has_signature"`
}

var formalWords = wordSet(
	"regarding", "therefore", "furthermore", "however", "sincerely", "dear",
	"please", "kindly", "accordingly", "attached", "request", "meeting",
	"schedule", "discuss", "proposal", "appreciate", "consider", "additionally",
	"respectfully", "opportunity", "review", "confirm", "ensure", "regards",
)

var informalWords = wordSet(
	"lol", "lmao", "omg", "gonna", "wanna", "gotta", "yeah", "yep", "nope",
	"hey", "ok", "okay", "cool", "awesome", "haha", "btw", "tbh", "idk", "u",
	"ur", "thx", "pls", "sup", "dude", "kinda", "sorta", "yo", "brb",
)

// codeWords avoids ordinary English words ("return", "class") that dictation uses outside code.
var codeWords = wordSet(
	"func", "const", "var", "def", "struct", "nil", "null", "undefined",
	"async", "await", "lambda", "int", "bool", "boolean", "void", "println",
	"printf", "console.log", "json", "yaml", "api", "http", "https", "sql",
	"regex", "endpoint", "refactor", "compile", "git", "stdout", "stderr",
	"npm", "kubectl", "dockerfile", "localhost", "enum", "typedef", "goroutine",
)

var greetingPhrases = []string{
	"hi", "hello", "hey", "dear", "good morning", "good afternoon",
	"good evening", "greetings", "hiya", "howdy",
}

var signaturePhrases = []string{
	"best regards", "kind regards", "warm regards", "regards", "sincerely",
	"best", "cheers", "thanks", "thank you", "many thanks", "all the best",
	"talk soon", "yours truly",
}

// ExtractFeatures scans text once and returns its lexical measurements.
func ExtractFeatures(text string) Features {
	words := strings.Fields(text)
	f := Features{WordCount: len(words)}
	if f.WordCount == 0 {
		f.Formality = 0.5
		return f
	}

	f.SentenceCount = countSentences(text)
	f.AvgSentenceLength = float64(f.WordCount) / float64(f.SentenceCount)

	var formal, informal int
	for _, raw := range words {
		word := normalizeWord(raw)
		if _, ok := formalWords[word]; ok {
			formal++
		}
		if _, ok := informalWords[word]; ok {
			informal++
		}
		if isTechnical(raw, word) {
			f.TechnicalTerms++
		}
	}
	f.Formality = 0.5
	if formal+informal > 0 {
		f.Formality = float64(formal) / float64(formal+informal)
	}

	var punct, visible int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			punct++
		}
	}
	if visible > 0 {
		f.PunctuationDensity = float64(punct) / float64(visible)
	}

	normalized := normalizedWords(words)
	f.HasGreeting = hasPhraseWithin(normalized[:min(4, len(normalized))], greetingPhrases)
	f.HasSignature = hasPhraseWithin(normalized[max(0, len(normalized)-6):], signaturePhrases)
	return f
}

// countSentences counts runs of terminal punctuation; text without any counts as one sentence.
func countSentences(text string) int {
	count := 0
	inRun := false
	sawWordSinceRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun && sawWordSinceRun {
				count++
			}
			inRun = true
			sawWordSinceRun = false
		default:
			inRun = false
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				sawWordSinceRun = true
			}
		}
	}
	if sawWordSinceRun {
		count++
	}
	return max(count, 1)
}

func isTechnical(raw string, word string) bool {
	if _, ok := codeWords[word]; ok {
		return true
	}
	for _, marker := range []string{"()", "=>", "::", "==", "!=", "{", "}", "->", "</", "[]", "&&", "||"} {
		if strings.Contains(raw, marker) {
			return true
		}
	}
	trimmed := strings.Trim(raw, ".,;:!?\"'")
	if strings.Contains(trimmed, "_") && len(trimmed) > 2 {
		return true
	}
	return isCamelCase(trimmed)
}

// isCamelCase matches identifiers like fetchUser or XMLHttpRequest, not plain capitalized words.
func isCamelCase(token string) bool {
	if len(token) < 3 {
		return false
	}
	lowerSeen := false
	for i, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		if unicode.IsLower(r) {
			lowerSeen = true
		}
		if i > 0 && unicode.IsUpper(r) && lowerSeen {
			return true
		}
	}
	return false
}

// normalizeWord lowercases raw and trims surrounding punctuation, keeping inner dots (console.log).
func normalizeWord(raw string) string {
	return strings.ToLower(strings.Trim(raw, ".,;:!?\"'()[]{}<>"))
}

func normalizedWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// hasPhraseWithin reports whether any phrase occurs as a word sequence in words.
func hasPhraseWithin(words []string, phrases []string) bool {
	joined := " " + strings.Join(words, " ") + " "
	for _, phrase := range phrases {
		if strings.Contains(joined, " "+phrase+" ") {
			return true
		}
	}
	return false
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
