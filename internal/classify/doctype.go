// Package classify assigns a document type to transcribed text.
package classify

import (
	"fmt"
	"strings"
)

// DocumentType is the closed set of writing contexts enhancement distinguishes.
type DocumentType string

const (
	Email    DocumentType = "email"
	Message  DocumentType = "message"
	Document DocumentType = "document"
	Social   DocumentType = "social"
	Code     DocumentType = "code"
	Search   DocumentType = "search"
	Unknown  DocumentType = "unknown"
)

// Types lists every document type in a fixed order; ties resolve in this order.
var Types = []DocumentType{Email, Message, Document, Social, Code, Search, Unknown}

// Valid reports whether t is one of Types.
func (t DocumentType) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

func (t DocumentType) String() string { return string(t) }

// Parse maps a case-insensitive name to a DocumentType.
func Parse(raw string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return Unknown, fmt.Errorf("unknown document type %q (expected one of %s)", raw, typeNames())
	}
	return t, nil
}

func typeNames() string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
