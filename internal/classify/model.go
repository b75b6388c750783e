package classify

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"
)

//go:embed seed.json
var seedCorpus []byte

// Model predicts a document type from text alone.
type Model interface {
	Predict(text string) Prediction
}

// Prediction is a model's raw output.
type Prediction struct {
	Type   DocumentType
	Scores map[DocumentType]float64 // log-probabilities
}

// NaiveBayes is a multinomial naive Bayes model over lowercase word tokens.
type NaiveBayes struct {
	vocabulary int
	priors     map[DocumentType]float64
	counts     map[DocumentType]map[string]int
	totals     map[DocumentType]int
}

// NewSeedModel trains NaiveBayes on the embedded seed corpus.
func NewSeedModel() (*NaiveBayes, error) {
	var corpus map[DocumentType][]string
	if err := json.Unmarshal(seedCorpus, &corpus); err != nil {
		return nil, fmt.Errorf("decode seed corpus: %w", err)
	}
	return Train(corpus)
}

// Train fits a model on labeled examples. Every label must be a known DocumentType.
func Train(corpus map[DocumentType][]string) (*NaiveBayes, error) {
	m := &NaiveBayes{
		priors: make(map[DocumentType]float64),
		counts: make(map[DocumentType]map[string]int),
		totals: make(map[DocumentType]int),
	}

	vocab := make(map[string]struct{})
	docs := 0
	for label, examples := range corpus {
		if !label.Valid() {
			return nil, fmt.Errorf("train: unknown label %q", label)
		}
		m.counts[label] = make(map[string]int)
		for _, example := range examples {
			docs++
			m.priors[label]++
			for _, token := range tokenize(example) {
				m.counts[label][token]++
				m.totals[label]++
				vocab[token] = struct{}{}
			}
		}
	}
	if docs == 0 {
		return nil, fmt.Errorf("train: empty corpus")
	}

	for label := range m.priors {
		m.priors[label] = math.Log(m.priors[label] / float64(docs))
	}
	m.vocabulary = len(vocab)
	return m, nil
}

// Predict returns the highest-scoring type; ties resolve in Types order.
func (m *NaiveBayes) Predict(text string) Prediction {
	tokens := tokenize(text)
	scores := make(map[DocumentType]float64, len(m.priors))

	best := Unknown
	bestScore := math.Inf(-1)
	for _, label := range Types {
		prior, ok := m.priors[label]
		if !ok {
			continue
		}
		score := prior
		denominator := float64(m.totals[label] + m.vocabulary)
		for _, token := range tokens {
			score += math.Log(float64(m.counts[label][token]+1) / denominator)
		}
		scores[label] = score
		if score > bestScore {
			best, bestScore = label, score
		}
	}

	if len(tokens) == 0 {
		best = Unknown
	}
	return Prediction{Type: best, Scores: scores}
}

// tokenize splits on anything but letters, digits, apostrophes, dots, and
// underscores, then trims edge dots so "friday." and "friday" match.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '.' && r != '_'
	})
	tokens := fields[:0]
	for _, field := range fields {
		if field = strings.Trim(field, ".'"); field != "" {
			tokens = append(tokens, field)
		}
	}
	return tokens
}
