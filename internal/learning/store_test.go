package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "learning.db"), Options{Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func importPatterns(t *testing.T, store *Store, patterns ...Pattern) {
	t.Helper()
	payload, err := json.Marshal(exportFile{Version: exportVersion, Patterns: patterns})
	require.NoError(t, err)
	_, err = store.Import(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)
}

func TestFindSimilarIsCaseInsensitive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, classify.Email, "thanks for your email", "Thanks for your email!")
	require.NoError(t, err)

	p, ok, err := store.FindSimilar(ctx, "Thanks For Your Email", classify.Email, 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "thanks for your email", p.OriginalText)
	require.Equal(t, "Thanks for your email!", p.EditedText)
	require.Equal(t, 1, p.Frequency)
	require.Equal(t, 1.0, p.Confidence)
}

func TestFindSimilarFoldsUnicode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, classify.Message, "GRÜSSE AUS KÖLN", "Grüße aus Köln")
	require.NoError(t, err)

	_, ok, err := store.FindSimilar(ctx, "grüsse aus köln", classify.Message, DefaultThreshold)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFindSimilarRespectsTypeAndThreshold(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	importPatterns(t, store, Pattern{
		DocumentType: classify.Message,
		OriginalText: "omw",
		EditedText:   "On my way!",
		Frequency:    1,
		Confidence:   0.4,
	})

	_, ok, err := store.FindSimilar(ctx, "omw", classify.Message, DefaultThreshold)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.FindSimilar(ctx, "omw", classify.Email, 0)
	require.NoError(t, err)
	require.False(t, ok)

	p, ok, err := store.FindSimilar(ctx, "OMW", classify.Message, 0.3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "On my way!", p.EditedText)

	_, ok, err = store.FindSimilar(ctx, "omw please", classify.Message, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordReinforcesExistingPattern(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	first, err := store.Record(ctx, classify.Document, "per our discussion", "Per our discussion,")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := store.Record(ctx, classify.Document, "Per Our Discussion", "As discussed,")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 2, second.Frequency)
	require.Equal(t, "As discussed,", second.EditedText)
	require.Equal(t, "per our discussion", second.OriginalText)
	require.Equal(t, 1.0, second.Confidence)
	require.WithinDuration(t, clock.Now(), second.LastSeen, time.Millisecond)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRecordNeverLowersConfidence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	importPatterns(t, store, Pattern{
		DocumentType: classify.Social,
		OriginalText: "new post",
		EditedText:   "New post!",
		Frequency:    1,
		Confidence:   0.2,
	})

	previous := 0.2
	for range 12 {
		p, err := store.Record(ctx, classify.Social, "new post", "New post!")
		require.NoError(t, err)
		require.GreaterOrEqual(t, p.Confidence, previous)
		require.LessOrEqual(t, p.Confidence, 1.0)
		previous = p.Confidence
	}
	require.Greater(t, previous, 0.9)
}

func TestUpdateConfidenceBounds(t *testing.T) {
	for _, current := range []float64{-1, 0, 0.1, 0.5, 0.7, 0.99, 1, 2} {
		for frequency := 0; frequency <= 20; frequency++ {
			got := updateConfidence(current, frequency)
			require.GreaterOrEqual(t, got, 0.0)
			require.LessOrEqual(t, got, 1.0)
			require.GreaterOrEqual(t, got, clampConfidence(current))
		}
	}
	require.InDelta(t, 0.75, updateConfidence(0.5, 2), 1e-9)
	require.InDelta(t, 0.875, updateConfidence(0, 3), 1e-9)
	require.Equal(t, 1.0, updateConfidence(1, 1))
}

func TestFetchOrdersByConfidenceThenFrequency(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	importPatterns(t, store,
		Pattern{DocumentType: classify.Email, OriginalText: "a", EditedText: "A", Frequency: 1, Confidence: 0.9},
		Pattern{DocumentType: classify.Email, OriginalText: "b", EditedText: "B", Frequency: 5, Confidence: 0.9},
		Pattern{DocumentType: classify.Email, OriginalText: "c", EditedText: "C", Frequency: 9, Confidence: 0.8},
		Pattern{DocumentType: classify.Email, OriginalText: "d", EditedText: "D", Frequency: 9, Confidence: 0.5},
		Pattern{DocumentType: classify.Message, OriginalText: "e", EditedText: "E", Frequency: 9, Confidence: 1},
	)

	patterns, err := store.Fetch(ctx, classify.Email, DefaultThreshold)
	require.NoError(t, err)

	var originals []string
	for _, p := range patterns {
		originals = append(originals, p.OriginalText)
	}
	require.Equal(t, []string{"b", "a", "c"}, originals)
}

func TestSweepExemptsFrequentPatterns(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, classify.Message, "rare", "Rare.")
	require.NoError(t, err)
	for range 3 {
		_, err = store.Record(ctx, classify.Message, "frequent", "Frequent.")
		require.NoError(t, err)
	}

	clock.Advance(40 * 24 * time.Hour)
	_, err = store.Record(ctx, classify.Message, "fresh", "Fresh.")
	require.NoError(t, err)

	removed, err := store.Sweep(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	all, err := store.All(ctx)
	require.NoError(t, err)
	var originals []string
	for _, p := range all {
		originals = append(originals, p.OriginalText)
	}
	require.ElementsMatch(t, []string{"frequent", "fresh"}, originals)

	clock.Advance(365 * 24 * time.Hour)
	removed, err = store.Sweep(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, ok, err := store.FindSimilar(ctx, "frequent", classify.Message, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweepRejectsNegativeAge(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Sweep(context.Background(), -1)
	require.Error(t, err)
}

func TestRecordValidatesInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, classify.DocumentType("poem"), "a", "b")
	require.ErrorIs(t, err, ErrInvalidEdit)

	_, err = store.Record(ctx, classify.Email, "  ", "b")
	require.ErrorIs(t, err, ErrInvalidEdit)
}

func TestConcurrentRecordsAreSerialized(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Record(ctx, classify.Message, "see you soon", "See you soon!")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	p, ok, err := store.FindSimilar(ctx, "see you soon", classify.Message, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 16, p.Frequency)
}

func TestExportImportRoundTrip(t *testing.T) {
	source, _ := newTestStore(t)
	ctx := context.Background()

	_, err := source.Record(ctx, classify.Email, "best", "Best regards,")
	require.NoError(t, err)
	_, err = source.Record(ctx, classify.Code, "get user", "getUser")
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := source.Export(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	target, _ := newTestStore(t)
	n, err = target.Import(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	p, ok, err := target.FindSimilar(ctx, "GET USER", classify.Code, DefaultThreshold)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "getUser", p.EditedText)

	stats, err := target.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, []TypeStats{
		{DocumentType: classify.Code, Patterns: 1, Reinforcements: 1, MeanConfidence: 1},
		{DocumentType: classify.Email, Patterns: 1, Reinforcements: 1, MeanConfidence: 1},
	}, stats)
}

func TestImportRejectsInvalidPatterns(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, bytes.NewBufferString(`{"version":1,"patterns":[{"document_type":"poem","original_text":"a","edited_text":"b"}]}`))
	require.ErrorIs(t, err, ErrInvalidEdit)

	_, err = store.Import(ctx, bytes.NewBufferString(`{"version":9,"patterns":[]}`))
	require.ErrorContains(t, err, "unsupported")

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestImportClampsConfidence(t *testing.T) {
	store, _ := newTestStore(t)
	importPatterns(t, store, Pattern{
		DocumentType: classify.Search,
		OriginalText: "go docs",
		EditedText:   "golang docs",
		Frequency:    0,
		Confidence:   7,
	})

	p, ok, err := store.FindSimilar(context.Background(), "go docs", classify.Search, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1.0, p.Confidence)
	require.Equal(t, 1, p.Frequency)
}

func TestImportKeepsZeroConfidence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	importPatterns(t, store,
		Pattern{DocumentType: classify.Email, OriginalText: "fyi", EditedText: "FYI", Frequency: 1, Confidence: 0},
		Pattern{DocumentType: classify.Email, OriginalText: "asap", EditedText: "ASAP", Frequency: 1, Confidence: -0.5},
	)

	_, ok, err := store.FindSimilar(ctx, "fyi", classify.Email, DefaultThreshold)
	require.NoError(t, err)
	require.False(t, ok)

	for _, original := range []string{"fyi", "asap"} {
		p, ok, err := store.FindSimilar(ctx, original, classify.Email, 0)
		require.NoError(t, err)
		require.True(t, ok)
		require.Zero(t, p.Confidence)
	}
}

func TestMatchingIgnoresSurroundingWhitespace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	recorded, err := store.Record(ctx, classify.Email, "  padded  ", "Padded")
	require.NoError(t, err)
	require.Equal(t, "padded", recorded.OriginalText)

	p, ok, err := store.FindSimilar(ctx, "padded", classify.Email, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Padded", p.EditedText)

	_, ok, err = store.FindSimilar(ctx, "\tPADDED\n", classify.Email, 0)
	require.NoError(t, err)
	require.True(t, ok)

	importPatterns(t, store, Pattern{DocumentType: classify.Email, OriginalText: " padded", EditedText: "PADDED", Frequency: 1, Confidence: 1})
	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 2, all[0].Frequency)
	require.Equal(t, "PADDED", all[0].EditedText)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Record(context.Background(), classify.Email, "a", "b")
	require.ErrorIs(t, err, ErrClosed)
}
