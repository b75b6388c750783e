package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/cli"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/llm"
	"github.com/bettervoice/bettervoice/internal/metrics"
)

// commandPatterns inspects and maintains the learning store.
func (r Runner) commandPatterns(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) int {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	sub, rest := args[0], args[1:]
	switch sub {
	case cli.PatternsList:
		err = r.listPatterns(ctx, store, rest)
	case cli.PatternsStats:
		err = r.patternStats(ctx, store)
	case cli.PatternsSweep:
		err = r.sweepPatterns(ctx, store, cfg.Learning.RetentionDays, rest)
	case cli.PatternsExport:
		err = r.exportPatterns(ctx, store, rest[0])
	case cli.PatternsImport:
		err = r.importPatterns(ctx, store, rest[0])
	default:
		err = fmt.Errorf("patterns: unknown subcommand %q", sub)
	}

	var usage usageError
	switch {
	case errors.As(err, &usage):
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("patterns command failed", "subcommand", sub, "error", err.Error())
		return 1
	}
	return 0
}

type usageError struct{ error }

func (r Runner) listPatterns(ctx context.Context, store *learning.Store, args []string) error {
	var (
		patterns []learning.Pattern
		err      error
	)
	if len(args) == 1 {
		docType, parseErr := classify.Parse(args[0])
		if parseErr != nil {
			return usageError{parseErr}
		}
		patterns, err = store.Fetch(ctx, docType, 0)
	} else {
		patterns, err = store.All(ctx)
	}
	if err != nil {
		return err
	}

	if len(patterns) == 0 {
		fmt.Fprintln(r.Stdout, "no learned patterns")
		return nil
	}
	for _, p := range patterns {
		fmt.Fprintf(r.Stdout, "%-8s freq=%-3d conf=%.2f seen=%s %q -> %q\n",
			p.DocumentType, p.Frequency, p.Confidence, p.LastSeen.Format("2006-01-02"), p.OriginalText, p.EditedText)
	}
	return nil
}

func (r Runner) patternStats(ctx context.Context, store *learning.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Fprintln(r.Stdout, "no learned patterns")
		return nil
	}
	for _, s := range stats {
		fmt.Fprintf(r.Stdout, "%-8s patterns=%d reinforcements=%d mean_confidence=%.2f\n",
			s.DocumentType, s.Patterns, s.Reinforcements, s.MeanConfidence)
	}
	return nil
}

func (r Runner) sweepPatterns(ctx context.Context, store *learning.Store, retentionDays int, args []string) error {
	days := retentionDays
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 0 {
			return usageError{fmt.Errorf("patterns sweep: DAYS must be a non-negative integer, got %q", args[0])}
		}
		days = parsed
	} else if days <= 0 {
		return usageError{errors.New("patterns sweep: learning.retention_days is 0 (disabled); pass DAYS explicitly")}
	}
	removed, err := store.Sweep(ctx, days)
	if err != nil {
		return err
	}
	metrics.PatternsSweptTotal.Add(float64(removed))
	fmt.Fprintf(r.Stdout, "removed %d patterns older than %d days\n", removed, days)
	return nil
}

// exportPatterns writes JSON to path, or stdout for "-".
func (r Runner) exportPatterns(ctx context.Context, store *learning.Store, path string) error {
	var w io.Writer = r.Stdout
	if path != "-" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer file.Close()
		w = file
	}
	n, err := store.Export(ctx, w)
	if err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(r.Stdout, "exported %d patterns to %s\n", n, path)
	}
	return nil
}

// importPatterns merges a JSON export from path, or stdin for "-".
func (r Runner) importPatterns(ctx context.Context, store *learning.Store, path string) error {
	var in io.Reader = r.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()
		in = file
	}
	if in == nil {
		return usageError{errors.New("patterns import: no input")}
	}
	n, err := store.Import(ctx, in)
	if err != nil {
		return err
	}
	metrics.PatternsRecordedTotal.WithLabelValues("import").Add(float64(n))
	fmt.Fprintf(r.Stdout, "imported %d patterns\n", n)
	return nil
}

// commandKey stores or removes a provider API key. The key is read from the
// first line of stdin so it never appears in shell history.
func (r Runner) commandKey(action string, providerName string) int {
	provider := llm.Provider(strings.ToLower(strings.TrimSpace(providerName)))
	if !provider.Valid() || !provider.NeedsKey() {
		fmt.Fprintf(r.Stderr, "error: provider %q does not use an API key\n", providerName)
		return 2
	}

	store, err := secretStore()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	switch action {
	case cli.KeyDelete:
		if err := store.Delete(provider.SecretKey()); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(r.Stdout, "removed %s key\n", provider)
		return 0
	case cli.KeySet:
		if r.Stdin == nil {
			fmt.Fprintln(r.Stderr, "error: no key on stdin")
			return 2
		}
		line, err := bufio.NewReader(r.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(r.Stderr, "error: read key: %v\n", err)
			return 1
		}
		value := strings.TrimSpace(line)
		if value == "" {
			fmt.Fprintln(r.Stderr, "error: no key on stdin")
			return 2
		}
		if err := store.Save(provider.SecretKey(), []byte(value)); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(r.Stdout, "stored %s key in %s\n", provider, store.Path())
		return 0
	default:
		fmt.Fprintf(r.Stderr, "error: key: unknown subcommand %q\n", action)
		return 2
	}
}
