package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/enhance"
	"github.com/bettervoice/bettervoice/internal/metrics"
	"github.com/bettervoice/bettervoice/internal/session"
)

// Classifier is satisfied by *classify.Classifier.
type Classifier interface {
	Classify(text string) classify.Result
}

// Enhancer is satisfied by *enhance.Orchestrator.
type Enhancer interface {
	Enhance(ctx context.Context, text string, docType classify.DocumentType) (string, enhance.Decision)
}

// Finisher classifies a transcript and enhances it for its document type.
type Finisher struct {
	classifier Classifier
	enhancer   Enhancer
	logger     *slog.Logger
}

func NewFinisher(classifier Classifier, enhancer Enhancer, logger *slog.Logger) *Finisher {
	return &Finisher{classifier: classifier, enhancer: enhancer, logger: logger}
}

// Finish implements session.Finisher.
func (f *Finisher) Finish(ctx context.Context, transcript string) session.Finished {
	result := f.classifier.Classify(transcript)
	metrics.ClassificationsTotal.WithLabelValues(string(result.Type), strconv.FormatBool(result.Overridden)).Inc()

	text, decision := f.enhancer.Enhance(ctx, transcript, result.Type)
	if f.logger != nil {
		f.logger.Info("enhancement decision",
			"document_type", result.Type,
			"model_type", result.Primary,
			"overridden", result.Overridden,
			"used_cloud", decision.UsedCloud,
			"cloud_attempted", decision.CloudAttempted,
			"prompt_source", decision.PromptSource,
			"fell_back_to_default", decision.FellBackToDefault,
			"failure_reason", decision.FailureReason,
			"learned_match", decision.LearnedMatch,
			"latency_ms", decision.Latency.Milliseconds(),
		)
	}

	return session.Finished{Text: text, DocumentType: result.Type, Decision: decision}
}
