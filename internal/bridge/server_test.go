package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/learning"
)

type recorded struct {
	docType  classify.DocumentType
	original string
	edited   string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorded
	err   error
}

func (f *fakeRecorder) Record(_ context.Context, docType classify.DocumentType, original string, edited string) (learning.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return learning.Pattern{}, f.err
	}
	f.calls = append(f.calls, recorded{docType, original, edited})
	return learning.Pattern{DocumentType: docType, OriginalText: original, EditedText: edited, Frequency: len(f.calls), Confidence: 1}, nil
}

func (f *fakeRecorder) snapshot() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.calls...)
}

type fixedClassifier classify.DocumentType

func (c fixedClassifier) Classify(string) classify.Result {
	return classify.Result{Type: classify.DocumentType(c)}
}

func TestDocumentTypeForURL(t *testing.T) {
	tests := []struct {
		url  string
		want classify.DocumentType
		ok   bool
	}{
		{"https://mail.google.com/mail/u/0/#inbox", classify.Email, true},
		{"https://outlook.office.com/mail/", classify.Email, true},
		{"https://app.slack.com/client/T1/C2", classify.Message, true},
		{"https://discord.com/channels/1/2", classify.Message, true},
		{"https://messages.google.com/web/conversations", classify.Message, true},
		{"https://x.com/compose/post", classify.Social, true},
		{"https://www.linkedin.com/feed/", classify.Social, true},
		{"https://old.reddit.com/r/golang", classify.Social, true},
		{"https://github.com/org/repo/pull/1", classify.Code, true},
		{"https://stackoverflow.com/questions/1", classify.Code, true},
		{"https://docs.google.com/document/d/abc/edit", classify.Document, true},
		{"https://www.notion.so/page", classify.Document, true},
		{"https://www.google.com/search?q=go", classify.Search, true},
		{"https://www.google.com/maps", classify.Unknown, false},
		{"https://dropbox.com/x.com", classify.Unknown, false},
		{"https://example.org/", classify.Unknown, false},
		{"not a url", classify.Unknown, false},
		{"", classify.Unknown, false},
	}

	for _, tc := range tests {
		got, ok := DocumentTypeForURL(tc.url)
		require.Equal(t, tc.want, got, tc.url)
		require.Equal(t, tc.ok, ok, tc.url)
	}
}

func TestMessageValidate(t *testing.T) {
	valid := Message{Type: TypeEditDetected, Original: "hi sam", Edited: "Hi Sam,"}
	require.NoError(t, valid.Validate())

	invalid := []Message{
		{Type: "EDIT", Original: "a", Edited: "b"},
		{Type: TypeEditDetected, Original: " ", Edited: "b"},
		{Type: TypeEditDetected, Original: "a", Edited: ""},
		{Type: TypeEditDetected, Original: "same ", Edited: " same"},
		{Type: TypeEditDetected, Original: "a", Edited: "b", DocumentType: "poem"},
	}
	for _, msg := range invalid {
		require.ErrorIs(t, msg.Validate(), ErrInvalidMessage, msg)
	}
}

func TestPostEditRecordsByHost(t *testing.T) {
	rec := &fakeRecorder{}
	srv := httptest.NewServer(NewServer(rec, fixedClassifier(classify.Document), nil, nil).Handler())
	defer srv.Close()

	resp := postEdit(t, srv.URL, "", Message{
		Type:      TypeEditDetected,
		Original:  " hi sam the deploy is done ",
		Edited:    "Hi Sam,\n\nThe deploy is done.",
		SourceURL: "https://mail.google.com/mail/u/0/",
	})
	require.Equal(t, http.StatusOK, resp.code)
	require.Equal(t, "recorded", resp.ack.Status)
	require.Equal(t, classify.Email, resp.ack.DocumentType)

	require.Equal(t, []recorded{{classify.Email, "hi sam the deploy is done", "Hi Sam,\n\nThe deploy is done."}}, rec.snapshot())
}

func TestPostEditFallsBackToClassifier(t *testing.T) {
	rec := &fakeRecorder{}
	srv := httptest.NewServer(NewServer(rec, fixedClassifier(classify.Document), nil, nil).Handler())
	defer srv.Close()

	resp := postEdit(t, srv.URL, "", Message{Type: TypeEditDetected, Original: "the plan", Edited: "The plan.", SourceURL: "https://example.org"})
	require.Equal(t, http.StatusOK, resp.code)
	require.Equal(t, classify.Document, resp.ack.DocumentType)

	resp = postEdit(t, srv.URL, "", Message{Type: TypeEditDetected, Original: "ok", Edited: "OK", DocumentType: classify.Message, SourceURL: "https://github.com"})
	require.Equal(t, classify.Message, resp.ack.DocumentType)

	noClassifier := httptest.NewServer(NewServer(rec, nil, nil, nil).Handler())
	defer noClassifier.Close()
	resp = postEdit(t, noClassifier.URL, "", Message{Type: TypeEditDetected, Original: "x", Edited: "y"})
	require.Equal(t, classify.Unknown, resp.ack.DocumentType)
}

func TestPostEditRejects(t *testing.T) {
	rec := &fakeRecorder{}
	srv := httptest.NewServer(NewServer(rec, nil, nil, []string{"chrome-extension://abc"}).Handler())
	defer srv.Close()

	resp := postEdit(t, srv.URL, "", Message{Type: "OTHER", Original: "a", Edited: "b"})
	require.Equal(t, http.StatusBadRequest, resp.code)
	require.Equal(t, "error", resp.ack.Status)

	resp = postEdit(t, srv.URL, "https://evil.example", Message{Type: TypeEditDetected, Original: "a", Edited: "b"})
	require.Equal(t, http.StatusForbidden, resp.code)

	resp = postEdit(t, srv.URL, "chrome-extension://abc", Message{Type: TypeEditDetected, Original: "a", Edited: "b"})
	require.Equal(t, http.StatusOK, resp.code)

	httpResp, err := http.Post(srv.URL+"/edits", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	httpResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, httpResp.StatusCode)

	require.Len(t, rec.snapshot(), 1)
}

func TestSetAllowedOriginsAppliesToLaterRequests(t *testing.T) {
	rec := &fakeRecorder{}
	server := NewServer(rec, nil, nil, []string{"chrome-extension://abc"})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	msg := Message{Type: TypeEditDetected, Original: "a", Edited: "b"}
	require.Equal(t, http.StatusForbidden, postEdit(t, srv.URL, "moz-extension://xyz", msg).code)

	server.SetAllowedOrigins(nil)
	require.Equal(t, http.StatusOK, postEdit(t, srv.URL, "moz-extension://xyz", msg).code)

	server.SetAllowedOrigins([]string{"https://mail.example.com"})
	require.Equal(t, http.StatusForbidden, postEdit(t, srv.URL, "moz-extension://xyz", msg).code)
	require.Len(t, rec.snapshot(), 1)
}

func TestPostEditStoreFailure(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	srv := httptest.NewServer(NewServer(rec, nil, nil, nil).Handler())
	defer srv.Close()

	resp := postEdit(t, srv.URL, "", Message{Type: TypeEditDetected, Original: "a", Edited: "b"})
	require.Equal(t, http.StatusInternalServerError, resp.code)
	require.Contains(t, resp.ack.Error, "disk full")
}

func TestWebSocketRecordsEachMessage(t *testing.T) {
	rec := &fakeRecorder{}
	srv := httptest.NewServer(NewServer(rec, nil, nil, nil).Handler())
	defer srv.Close()

	header := http.Header{"Origin": []string{"chrome-extension://abcdef"}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/bridge", header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: TypeEditDetected, Original: "lgtm", Edited: "LGTM!", SourceURL: "https://github.com/a/b"}))
	var ack Ack
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "recorded", ack.Status)
	require.Equal(t, classify.Code, ack.DocumentType)
	require.Equal(t, 1, ack.Frequency)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ack = Ack{}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "error", ack.Status)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeEditDetected, Original: "brb", Edited: "Be right back", SourceURL: "https://app.slack.com"}))
	ack = Ack{}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, classify.Message, ack.DocumentType)

	require.Len(t, rec.snapshot(), 2)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeRecorder{}, nil, nil, nil).Handler())
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/bridge", header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeRecorder{}, nil, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	postEdit(t, srv.URL, "", Message{Type: TypeEditDetected, Original: "a", Edited: "b"})

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "bettervoice_bridge_messages_total")
	require.Contains(t, body.String(), `path_pattern="/edits"`)
}

func TestBridgeFeedsLearningStore(t *testing.T) {
	ctx := context.Background()
	store, err := learning.Open(ctx, filepath.Join(t.TempDir(), "learning.db"), learning.Options{})
	require.NoError(t, err)
	defer store.Close()

	s := NewServer(store, nil, nil, nil)
	msg := Message{Type: TypeEditDetected, Original: "hi sam", Edited: "Hi Sam,", SourceURL: "https://mail.google.com"}
	_, err = s.Apply(ctx, msg)
	require.NoError(t, err)
	ack, err := s.Apply(ctx, Message{Type: TypeEditDetected, Original: "HI SAM", Edited: "Hi Sam!", SourceURL: "https://mail.google.com"})
	require.NoError(t, err)
	require.Equal(t, 2, ack.Frequency)

	p, ok, err := store.FindSimilar(ctx, "hi sam", classify.Email, learning.DefaultThreshold)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Hi Sam!", p.EditedText)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	s := NewServer(&fakeRecorder{}, nil, nil, nil)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	require.NoError(t, <-errCh)
}

type editResponse struct {
	code int
	ack  Ack
}

func postEdit(t *testing.T, base string, origin string, msg Message) editResponse {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, base+"/edits", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var ack Ack
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	return editResponse{code: resp.StatusCode, ack: ack}
}
