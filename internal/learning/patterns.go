package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bettervoice/bettervoice/internal/classify"
)

// sweepExemptFrequency is the frequency at which a pattern survives any retention sweep.
const sweepExemptFrequency = 3

// Record stores one observed edit. The first edit of an original text (per
// document type, compared case-insensitively after trimming) creates a
// pattern; later ones reinforce it and replace its edited text with the latest
// edit.
func (s *Store) Record(ctx context.Context, docType classify.DocumentType, original string, edited string) (Pattern, error) {
	if !docType.Valid() {
		return Pattern{}, fmt.Errorf("%w: unknown document type %q", ErrInvalidEdit, docType)
	}
	if strings.TrimSpace(original) == "" || strings.TrimSpace(edited) == "" {
		return Pattern{}, fmt.Errorf("%w: original and edited text are required", ErrInvalidEdit)
	}

	var out Pattern
	err := s.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		p, err := s.upsert(ctx, tx, Pattern{
			DocumentType: docType,
			OriginalText: strings.TrimSpace(original),
			EditedText:   edited,
			Confidence:   1,
		})
		out = p
		return err
	})
	if err != nil {
		return Pattern{}, fmt.Errorf("record pattern: %w", err)
	}
	s.logDebug("pattern recorded", "document_type", out.DocumentType, "frequency", out.Frequency, "confidence", out.Confidence)
	return out, nil
}

// upsert inserts in as a new pattern or reinforces the existing match.
// in.Frequency (at least 1) and in.Confidence (clamped) are only used for
// inserts.
func (s *Store) upsert(ctx context.Context, tx *sql.Tx, in Pattern) (Pattern, error) {
	now := s.now()

	row := tx.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM learning_patterns
		WHERE documentType = ? AND casefold(originalText) = ?
		ORDER BY frequency DESC, id ASC
		LIMIT 1
	`, string(in.DocumentType), foldKey(in.OriginalText))

	existing, err := scanPattern(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p := in
		p.Frequency = max(p.Frequency, 1)
		p.Confidence = clampConfidence(p.Confidence)
		if p.LastSeen.IsZero() {
			p.LastSeen = now
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO learning_patterns (documentType, originalText, editedText, frequency, lastSeen, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(p.DocumentType), p.OriginalText, p.EditedText, p.Frequency, unixSeconds(p.LastSeen), p.Confidence)
		if err != nil {
			return Pattern{}, fmt.Errorf("insert pattern: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return Pattern{}, fmt.Errorf("read pattern id: %w", err)
		}
		return p, nil
	case err != nil:
		return Pattern{}, fmt.Errorf("find pattern: %w", err)
	}

	existing.Frequency++
	existing.LastSeen = now
	existing.EditedText = in.EditedText
	existing.Confidence = updateConfidence(existing.Confidence, existing.Frequency)
	if _, err := tx.ExecContext(ctx, `
		UPDATE learning_patterns
		SET editedText = ?, frequency = ?, lastSeen = ?, confidence = ?
		WHERE id = ?
	`, existing.EditedText, existing.Frequency, unixSeconds(existing.LastSeen), existing.Confidence, existing.ID); err != nil {
		return Pattern{}, fmt.Errorf("reinforce pattern: %w", err)
	}
	return existing, nil
}

// FindSimilar returns the best pattern for original within docType whose
// confidence is at least threshold. Matching is exact up to case folding and
// surrounding whitespace.
func (s *Store) FindSimilar(ctx context.Context, original string, docType classify.DocumentType, threshold float64) (Pattern, bool, error) {
	if strings.TrimSpace(original) == "" {
		return Pattern{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM learning_patterns
		WHERE documentType = ? AND casefold(originalText) = ? AND confidence >= ?
		ORDER BY confidence DESC, frequency DESC, lastSeen DESC
		LIMIT 1
	`, string(docType), foldKey(original), threshold)

	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Pattern{}, false, nil
	}
	if err != nil {
		return Pattern{}, false, fmt.Errorf("find similar pattern: %w", err)
	}
	return p, true, nil
}

// Fetch returns every pattern of docType with confidence at least
// minConfidence, most confident and most frequent first.
func (s *Store) Fetch(ctx context.Context, docType classify.DocumentType, minConfidence float64) ([]Pattern, error) {
	return s.query(ctx, `
		SELECT `+patternColumns+`
		FROM learning_patterns
		WHERE documentType = ? AND confidence >= ?
		ORDER BY confidence DESC, frequency DESC, id ASC
	`, string(docType), minConfidence)
}

// All returns every stored pattern grouped by document type.
func (s *Store) All(ctx context.Context) ([]Pattern, error) {
	return s.query(ctx, `
		SELECT `+patternColumns+`
		FROM learning_patterns
		ORDER BY documentType ASC, confidence DESC, frequency DESC, id ASC
	`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// Sweep deletes patterns last seen more than olderThanDays ago, except those
// reinforced at least three times. It returns the number removed.
func (s *Store) Sweep(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("sweep: negative age %d", olderThanDays)
	}
	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	var removed int64
	err := s.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM learning_patterns
			WHERE lastSeen < ? AND frequency < ?
		`, unixSeconds(cutoff), sweepExemptFrequency)
		if err != nil {
			return fmt.Errorf("delete stale patterns: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep patterns: %w", err)
	}
	s.logDebug("patterns swept", "older_than_days", olderThanDays, "removed", removed)
	return removed, nil
}

// TypeStats summarizes the patterns of one document type.
type TypeStats struct {
	DocumentType   classify.DocumentType `json:"document_type"`
	Patterns       int                   `json:"patterns"`
	Reinforcements int                   `json:"reinforcements"`
	MeanConfidence float64               `json:"mean_confidence"`
}

// Stats returns per-type counts for every type that has patterns.
func (s *Store) Stats(ctx context.Context) ([]TypeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT documentType, COUNT(*), COALESCE(SUM(frequency), 0), COALESCE(AVG(confidence), 0)
		FROM learning_patterns
		GROUP BY documentType
		ORDER BY documentType ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var (
			st      TypeStats
			docType string
		)
		if err := rows.Scan(&docType, &st.Patterns, &st.Reinforcements, &st.MeanConfidence); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.DocumentType = classify.DocumentType(docType)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
