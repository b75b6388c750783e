package learning

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS learning_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	documentType TEXT NOT NULL,
	originalText TEXT NOT NULL,
	editedText TEXT NOT NULL,
	frequency INTEGER DEFAULT 1,
	lastSeen REAL NOT NULL,
	confidence REAL DEFAULT 1.0
);
CREATE INDEX IF NOT EXISTS idx_learning_patterns_document_type ON learning_patterns(documentType);
CREATE INDEX IF NOT EXISTS idx_learning_patterns_original_text ON learning_patterns(originalText);
CREATE INDEX IF NOT EXISTS idx_learning_patterns_confidence ON learning_patterns(confidence);
`

const patternColumns = `id, documentType, originalText, editedText, frequency, lastSeen, confidence`

func init() {
	// casefold(x) applies full Unicode case folding; SQLite's lower() is ASCII only.
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return foldKey(v), nil
		case []byte:
			return foldKey(string(v)), nil
		default:
			return nil, fmt.Errorf("casefold: unsupported argument %T", v)
		}
	})
}

// foldKey is the matching key for originalText: trimmed, then case folded. A
// Caser is stateful, so each call builds its own.
func foldKey(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}
