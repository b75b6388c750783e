// Package bridge receives user edits observed by the browser extension and
// records them as learned corrections.
package bridge

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bettervoice/bettervoice/internal/classify"
)

// TypeEditDetected is the only message type the bridge accepts.
const TypeEditDetected = "EDIT_DETECTED"

var ErrInvalidMessage = errors.New("invalid bridge message")

// Message is one finished edit of text that BetterVoice inserted into a page.
//
// The extension sends it after 2s without typing in the edited field, or 10s
// after the field loses focus; the bridge does no debouncing of its own.
type Message struct {
	Type      string `json:"type"`
	Original  string `json:"original"`
	Edited    string `json:"edited"`
	SourceURL string `json:"sourceURL,omitempty"`
	// DocumentType lets the sender override host detection.
	DocumentType classify.DocumentType `json:"documentType,omitempty"`
}

// Validate reports why m cannot be recorded.
func (m Message) Validate() error {
	switch {
	case m.Type != TypeEditDetected:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, m.Type)
	case strings.TrimSpace(m.Original) == "":
		return fmt.Errorf("%w: original is required", ErrInvalidMessage)
	case strings.TrimSpace(m.Edited) == "":
		return fmt.Errorf("%w: edited is required", ErrInvalidMessage)
	case strings.TrimSpace(m.Original) == strings.TrimSpace(m.Edited):
		return fmt.Errorf("%w: edited text is unchanged", ErrInvalidMessage)
	case m.DocumentType != "" && !m.DocumentType.Valid():
		return fmt.Errorf("%w: unknown document type %q", ErrInvalidMessage, m.DocumentType)
	}
	return nil
}

type hostRule struct {
	domain  string
	path    string
	docType classify.DocumentType
}

// hostRules are checked in order; subdomains before their parents.
var hostRules = []hostRule{
	{domain: "mail.google.com", docType: classify.Email},
	{domain: "messages.google.com", docType: classify.Message},
	{domain: "docs.google.com", docType: classify.Document},
	{domain: "google.com", path: "/search", docType: classify.Search},
	{domain: "outlook.live.com", docType: classify.Email},
	{domain: "outlook.office.com", docType: classify.Email},
	{domain: "outlook.office365.com", docType: classify.Email},
	{domain: "mail.yahoo.com", docType: classify.Email},
	{domain: "mail.proton.me", docType: classify.Email},
	{domain: "fastmail.com", docType: classify.Email},
	{domain: "slack.com", docType: classify.Message},
	{domain: "discord.com", docType: classify.Message},
	{domain: "teams.microsoft.com", docType: classify.Message},
	{domain: "web.whatsapp.com", docType: classify.Message},
	{domain: "web.telegram.org", docType: classify.Message},
	{domain: "messenger.com", docType: classify.Message},
	{domain: "twitter.com", docType: classify.Social},
	{domain: "x.com", docType: classify.Social},
	{domain: "linkedin.com", docType: classify.Social},
	{domain: "reddit.com", docType: classify.Social},
	{domain: "facebook.com", docType: classify.Social},
	{domain: "threads.net", docType: classify.Social},
	{domain: "bsky.app", docType: classify.Social},
	{domain: "github.com", docType: classify.Code},
	{domain: "gitlab.com", docType: classify.Code},
	{domain: "bitbucket.org", docType: classify.Code},
	{domain: "stackoverflow.com", docType: classify.Code},
	{domain: "notion.so", docType: classify.Document},
	{domain: "notion.site", docType: classify.Document},
	{domain: "atlassian.net", docType: classify.Document},
	{domain: "bing.com", path: "/search", docType: classify.Search},
	{domain: "duckduckgo.com", docType: classify.Search},
}

// DocumentTypeForURL maps a page URL to a document type by host. ok is false
// when the host is unknown or the URL cannot be parsed.
func DocumentTypeForURL(raw string) (classify.DocumentType, bool) {
	if strings.TrimSpace(raw) == "" {
		return classify.Unknown, false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return classify.Unknown, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	for _, rule := range hostRules {
		if host != rule.domain && !strings.HasSuffix(host, "."+rule.domain) {
			continue
		}
		if rule.path != "" && !strings.HasPrefix(u.Path, rule.path) {
			continue
		}
		return rule.docType, true
	}
	return classify.Unknown, false
}
