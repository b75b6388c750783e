package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type exportFile struct {
	Version  int       `json:"version"`
	Patterns []Pattern `json:"patterns"`
}

const exportVersion = 1

// Export writes every pattern to w as indented JSON.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	patterns, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	if patterns == nil {
		patterns = []Pattern{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exportFile{Version: exportVersion, Patterns: patterns}); err != nil {
		return 0, fmt.Errorf("encode patterns: %w", err)
	}
	return len(patterns), nil
}

// Import merges patterns from r in one transaction. New patterns keep their
// frequency, confidence (clamped to [0,1]) and lastSeen; patterns that
// already exist are reinforced once.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var file exportFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return 0, fmt.Errorf("decode patterns: %w", err)
	}
	if file.Version != exportVersion {
		return 0, fmt.Errorf("unsupported pattern export version %d", file.Version)
	}

	for i, p := range file.Patterns {
		if !p.DocumentType.Valid() {
			return 0, fmt.Errorf("%w: pattern %d: unknown document type %q", ErrInvalidEdit, i, p.DocumentType)
		}
		if strings.TrimSpace(p.OriginalText) == "" || strings.TrimSpace(p.EditedText) == "" {
			return 0, fmt.Errorf("%w: pattern %d: original and edited text are required", ErrInvalidEdit, i)
		}
	}

	err := s.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, p := range file.Patterns {
			p.ID = 0
			p.OriginalText = strings.TrimSpace(p.OriginalText)
			if _, err := s.upsert(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import patterns: %w", err)
	}
	return len(file.Patterns), nil
}
