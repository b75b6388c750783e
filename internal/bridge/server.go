package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// DefaultAllowedOrigins admits browser extensions of any id.
var DefaultAllowedOrigins = []string{"chrome-extension://*", "moz-extension://*", "safari-web-extension://*"}

// Recorder is the write side of the learning store.
type Recorder interface {
	Record(ctx context.Context, docType classify.DocumentType, original string, edited string) (learning.Pattern, error)
}

// Classifier decides the document type when the source host is unknown.
type Classifier interface {
	Classify(text string) classify.Result
}

// Ack is the reply to every message.
type Ack struct {
	Status       string                `json:"status"`
	DocumentType classify.DocumentType `json:"documentType,omitempty"`
	Frequency    int                   `json:"frequency,omitempty"`
	Confidence   float64               `json:"confidence,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Server exposes /bridge (WebSocket), /edits, /healthz and /metrics.
type Server struct {
	recorder   Recorder
	classifier Classifier
	logger     *slog.Logger
	origins    atomic.Pointer[[]string]
	upgrader   websocket.Upgrader
}

// NewServer builds a bridge server. classifier may be nil, in which case
// edits from unknown hosts are recorded as unknown.
func NewServer(recorder Recorder, classifier Classifier, logger *slog.Logger, allowedOrigins []string) *Server {
	s := &Server{
		recorder:   recorder,
		classifier: classifier,
		logger:     logger,
	}
	s.SetAllowedOrigins(allowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// Handler returns the bridge router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Use(s.recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Post("/edits", s.handleEdit)
	r.Get("/bridge", s.handleWebSocket)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logInfo("bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown bridge: %w", err)
		}
		return nil
	}
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r.Header.Get("Origin")) {
		metrics.BridgeMessagesTotal.WithLabelValues("http", "forbidden").Inc()
		writeJSON(w, http.StatusForbidden, Ack{Status: "error", Error: "origin not allowed"})
		return
	}

	var msg Message
	dec := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize))
	if err := dec.Decode(&msg); err != nil {
		metrics.BridgeMessagesTotal.WithLabelValues("http", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, Ack{Status: "error", Error: "decode message: " + err.Error()})
		return
	}

	ack, err := s.Apply(r.Context(), msg)
	if err != nil {
		status := http.StatusInternalServerError
		result := "failed"
		if errors.Is(err, ErrInvalidMessage) || errors.Is(err, learning.ErrInvalidEdit) {
			status = http.StatusBadRequest
			result = "invalid"
		}
		metrics.BridgeMessagesTotal.WithLabelValues("http", result).Inc()
		writeJSON(w, status, ack)
		return
	}
	metrics.BridgeMessagesTotal.WithLabelValues("http", "recorded").Inc()
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logWarn("websocket upgrade failed", "error", err.Error())
		return
	}
	metrics.BridgeConnections.Inc()
	defer metrics.BridgeConnections.Dec()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logWarn("websocket read failed", "error", err.Error())
			}
			return
		}
		if messageType != websocket.TextMessage {
			metrics.BridgeMessagesTotal.WithLabelValues("websocket", "invalid").Inc()
			continue
		}

		var msg Message
		var ack Ack
		if err := json.Unmarshal(payload, &msg); err != nil {
			ack = Ack{Status: "error", Error: "decode message: " + err.Error()}
			metrics.BridgeMessagesTotal.WithLabelValues("websocket", "invalid").Inc()
		} else if ack, err = s.Apply(r.Context(), msg); err != nil {
			result := "failed"
			if errors.Is(err, ErrInvalidMessage) || errors.Is(err, learning.ErrInvalidEdit) {
				result = "invalid"
			}
			metrics.BridgeMessagesTotal.WithLabelValues("websocket", result).Inc()
		} else {
			metrics.BridgeMessagesTotal.WithLabelValues("websocket", "recorded").Inc()
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ack); err != nil {
			s.logWarn("websocket write failed", "error", err.Error())
			return
		}
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Apply validates msg, resolves its document type and records it.
func (s *Server) Apply(ctx context.Context, msg Message) (Ack, error) {
	if err := msg.Validate(); err != nil {
		return Ack{Status: "error", Error: err.Error()}, err
	}

	docType := s.documentType(msg)
	p, err := s.recorder.Record(ctx, docType, strings.TrimSpace(msg.Original), strings.TrimSpace(msg.Edited))
	if err != nil {
		s.logWarn("record bridge edit failed", "document_type", docType, "error", err.Error())
		return Ack{Status: "error", DocumentType: docType, Error: err.Error()}, err
	}
	metrics.PatternsRecordedTotal.WithLabelValues("bridge").Inc()
	s.logDebug("bridge edit recorded", "document_type", docType, "frequency", p.Frequency, "confidence", p.Confidence)
	return Ack{Status: "recorded", DocumentType: docType, Frequency: p.Frequency, Confidence: p.Confidence}, nil
}

func (s *Server) documentType(msg Message) classify.DocumentType {
	if msg.DocumentType != "" {
		return msg.DocumentType
	}
	if docType, ok := DocumentTypeForURL(msg.SourceURL); ok {
		return docType
	}
	if s.classifier != nil {
		return s.classifier.Classify(msg.Original).Type
	}
	return classify.Unknown
}

// SetAllowedOrigins replaces the origin allow list; nil restores the default.
func (s *Server) SetAllowedOrigins(origins []string) {
	if origins == nil {
		origins = DefaultAllowedOrigins
	}
	origins = append([]string(nil), origins...)
	s.origins.Store(&origins)
}

// originAllowed admits requests without an Origin (local tools) and origins
// matching the allow list; a trailing "*" matches any suffix.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range *s.origins.Load() {
		if allowed == "*" || allowed == origin {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok && strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				if s.logger != nil {
					s.logger.Error("bridge handler panic", "panic", fmt.Sprint(rv), "path", r.URL.Path)
				}
				writeJSON(w, http.StatusInternalServerError, Ack{Status: "error", Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
