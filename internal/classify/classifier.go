package classify

import (
	"fmt"
	"log/slog"
	"strings"
)

// strongSupport is the feature support a category needs to override the model.
const strongSupport = 2

var queryLeads = []string{
	"how to", "best", "cheap", "cheapest", "nearest", "weather", "define",
	"definition of", "convert", "flights to", "symptoms of", "recipe for",
}

var queryTails = []string{"near me", "open now", "example", "examples", "tutorial"}

var questionLeads = []string{"how", "what", "where", "when", "who", "why", "which"}

// Result is a classification with the evidence behind it.
type Result struct {
	Type       DocumentType
	Primary    DocumentType
	Features   Features
	Support    map[DocumentType]int
	Overridden bool
}

// Classifier combines a statistical model with a dominant-characteristic override.
type Classifier struct {
	model  Model
	logger *slog.Logger
}

// New wraps model.
func New(model Model, logger *slog.Logger) *Classifier {
	return &Classifier{model: model, logger: logger}
}

// NewDefault builds a classifier on the embedded seed model.
func NewDefault(logger *slog.Logger) (*Classifier, error) {
	model, err := NewSeedModel()
	if err != nil {
		return nil, fmt.Errorf("load classifier model: %w", err)
	}
	return New(model, logger), nil
}

// Classify returns the document type for text. It is deterministic.
//
// The model's prediction stands unless one category is strongly and uniquely
// supported by features; equal support between categories keeps the model's
// prediction.
func (c *Classifier) Classify(text string) Result {
	features := ExtractFeatures(text)
	if features.WordCount == 0 {
		return Result{Type: Unknown, Primary: Unknown, Features: features}
	}

	primary := c.model.Predict(text).Type
	support := featureSupport(text, features)
	result := Result{Type: primary, Primary: primary, Features: features, Support: support}

	top := 0
	for _, s := range support {
		top = max(top, s)
	}
	if top < strongSupport || support[primary] == top {
		return result
	}

	var leaders []DocumentType
	for _, t := range Types {
		if support[t] == top {
			leaders = append(leaders, t)
		}
	}
	if len(leaders) != 1 {
		return result
	}

	result.Type = leaders[0]
	result.Overridden = true
	if c.logger != nil {
		c.logger.Debug("classification overridden",
			"primary", primary,
			"type", result.Type,
			"technical_terms", features.TechnicalTerms,
			"greeting", features.HasGreeting,
			"signature", features.HasSignature,
		)
	}
	return result
}

// featureSupport scores how strongly features alone point at each category.
func featureSupport(text string, f Features) map[DocumentType]int {
	support := make(map[DocumentType]int, len(Types))

	if f.TechnicalTerms >= 3 || (f.TechnicalTerms > 0 && float64(f.TechnicalTerms)/float64(f.WordCount) >= 0.2) {
		support[Code] = 2
	}

	switch {
	case f.HasGreeting && f.HasSignature:
		support[Email] = 2
	case (f.HasGreeting || f.HasSignature) && f.Formality >= 0.6:
		support[Email] = 1
	}

	lowered := strings.ToLower(strings.TrimSpace(text))
	if f.WordCount <= 8 && !f.HasGreeting && !strings.ContainsAny(lowered, ".!") {
		switch {
		case hasLead(lowered, queryLeads) || hasTail(lowered, queryTails):
			support[Search] = 2
		case hasLead(lowered, questionLeads):
			support[Search] = 1
		}
	}

	if f.Formality < 0.4 && f.WordCount <= 25 {
		support[Message] = 1
	}
	return support
}

func hasLead(text string, leads []string) bool {
	for _, lead := range leads {
		if text == lead || strings.HasPrefix(text, lead+" ") {
			return true
		}
	}
	return false
}

func hasTail(text string, tails []string) bool {
	for _, tail := range tails {
		if strings.HasSuffix(text, " "+tail) {
			return true
		}
	}
	return false
}
