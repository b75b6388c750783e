package enhance

import (
	"fmt"
	"strings"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/learning"
)

// TextPlaceholder is replaced by the transcribed text in every prompt.
const TextPlaceholder = "{{TEXT}}"

type PromptSource string

const (
	PromptDefault PromptSource = "default"
	PromptCustom  PromptSource = "custom"
)

var defaultPrompts = map[classify.DocumentType]string{
	classify.Email: `Rewrite the following dictated text as a professional email body. Fix grammar, punctuation, and capitalization. Keep the author's meaning and tone, do not add a subject line, and do not invent content.

Text: {{TEXT}}`,
	classify.Message: `Clean up the following dictated chat message. Fix obvious transcription errors and punctuation but keep it short, casual, and in the author's voice.

Text: {{TEXT}}`,
	classify.Document: `Rewrite the following dictated text as well-formed prose for a document. Fix grammar, punctuation, and capitalization, split run-on sentences, and keep every point the author made.

Text: {{TEXT}}`,
	classify.Social: `Polish the following dictated social media post. Keep it concise and natural, keep hashtags and mentions exactly as written, and do not add new ones.

Text: {{TEXT}}`,
	classify.Code: `The following dictated text is about source code. Fix transcription errors in identifiers, keywords, and symbols. Return only the corrected text without code fences or commentary.

Text: {{TEXT}}`,
	classify.Search: `Turn the following dictated text into a concise search query. Return only the query, in lowercase, without trailing punctuation.

Text: {{TEXT}}`,
	classify.Unknown: `Fix grammar, punctuation, and capitalization in the following dictated text without changing its meaning.

Text: {{TEXT}}`,
}

// DefaultPrompt returns the built-in template for docType.
func DefaultPrompt(docType classify.DocumentType) string {
	if prompt, ok := defaultPrompts[docType]; ok {
		return prompt
	}
	return defaultPrompts[classify.Unknown]
}

// renderPrompt picks the custom template for docType when it is non-blank,
// otherwise the default, and substitutes text. fellBack is true when a custom
// template was configured but blank.
func renderPrompt(custom map[classify.DocumentType]string, docType classify.DocumentType, text string) (prompt string, source PromptSource, fellBack bool) {
	template, configured := custom[docType]
	source = PromptCustom
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt(docType)
		source = PromptDefault
		fellBack = configured
	}
	return strings.ReplaceAll(template, TextPlaceholder, text), source, fellBack
}

const baseInstruction = "You edit dictated text. Reply with the edited text only, with no preamble, quotes, or explanation."

// systemInstruction carries learned corrections separately so the prompt body stays verbatim.
func systemInstruction(examples []learning.Pattern) string {
	if len(examples) == 0 {
		return baseInstruction
	}
	var b strings.Builder
	b.WriteString(baseInstruction)
	b.WriteString("\n\nThe user has corrected similar dictations before. Apply the same corrections when the text matches:\n")
	for _, p := range examples {
		fmt.Fprintf(&b, "- %q -> %q\n", p.OriginalText, p.EditedText)
	}
	return strings.TrimRight(b.String(), "\n")
}
