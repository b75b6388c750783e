// Package learning persists user corrections and serves them back to enhancement.
package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bettervoice/bettervoice/internal/classify"
)

// DefaultThreshold is the minimum confidence for a learned correction to be reused.
const DefaultThreshold = 0.7

var (
	ErrClosed      = errors.New("learning store closed")
	ErrInvalidEdit = errors.New("invalid edit")
)

// Pattern is one learned correction.
type Pattern struct {
	ID           int64                 `json:"id"`
	DocumentType classify.DocumentType `json:"document_type"`
	OriginalText string                `json:"original_text"`
	EditedText   string                `json:"edited_text"`
	Frequency    int                   `json:"frequency"`
	LastSeen     time.Time             `json:"last_seen"`
	Confidence   float64               `json:"confidence"`
}

// Options tunes a Store. The zero value is usable.
type Options struct {
	Logger      *slog.Logger
	Now         func() time.Time
	BusyTimeout time.Duration
}

// Store is a SQLite-backed pattern store. Mutations are applied one at a time
// by a single writer goroutine; reads go straight to the database and see a
// WAL snapshot.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	ops       chan writeOp
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type writeOp struct {
	ctx  context.Context
	fn   func(ctx context.Context, tx *sql.Tx) error
	done chan error
}

// Open creates (if needed) and opens the store at path.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("learning store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create learning store directory: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		logger:  opts.Logger,
		now:     opts.Now,
		ops:     make(chan writeOp),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close stops accepting writes, waits for the in-flight write, and closes the
// database. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.done
		err = s.db.Close()
	})
	return err
}

func (s *Store) writer() {
	defer close(s.done)
	for {
		select {
		case <-s.closing:
			return
		case op := <-s.ops:
			op.done <- s.apply(op)
		}
	}
}

func (s *Store) apply(op writeOp) error {
	tx, err := s.db.BeginTx(op.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := op.fn(op.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// write runs fn in a transaction on the writer goroutine.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	op := writeOp{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case s.ops <- op:
	case <-s.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (Pattern, error) {
	var (
		p        Pattern
		docType  string
		lastSeen float64
	)
	if err := row.Scan(&p.ID, &docType, &p.OriginalText, &p.EditedText, &p.Frequency, &lastSeen, &p.Confidence); err != nil {
		return Pattern{}, err
	}
	p.DocumentType = classify.DocumentType(docType)
	p.LastSeen = timeFromUnix(lastSeen)
	return p, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
