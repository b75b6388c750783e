package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bettervoice/bettervoice/internal/audio"
)

// ServerRuntime talks to a whisper.cpp `server` instance over HTTP.
type ServerRuntime struct {
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	loaded bool
}

// NewServerRuntime targets endpoint ("host:port" or a full URL).
func NewServerRuntime(endpoint string, timeout time.Duration) *ServerRuntime {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServerRuntime{
		baseURL: strings.TrimRight(endpoint, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *ServerRuntime) Name() string { return "whisper-server" }

// RequiresModelFile is false: the model path refers to the server's filesystem.
func (r *ServerRuntime) RequiresModelFile() bool { return false }

// Load switches the server to modelPath, or just marks the runtime ready when
// the path is empty and the server keeps its startup model.
func (r *ServerRuntime) Load(ctx context.Context, modelPath string) error {
	if strings.TrimSpace(modelPath) != "" {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("model", modelPath)
		if err := w.Close(); err != nil {
			return fmt.Errorf("encode load request: %w", err)
		}
		if _, err := r.post(ctx, "/load", w.FormDataContentType(), &buf); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.loaded = true
	r.mu.Unlock()
	return nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Infer uploads the request audio as a WAV file to /inference.
func (r *ServerRuntime) Infer(ctx context.Context, req Request) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "dictation.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if err := audio.WriteWAV(part, req.Samples); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}

	_ = w.WriteField("temperature", "0.0")
	_ = w.WriteField("response_format", "json")
	_ = w.WriteField("language", req.Language)
	if req.Translate {
		_ = w.WriteField("translate", "true")
	}
	if prompt := strings.TrimSpace(req.InitialPrompt); prompt != "" {
		_ = w.WriteField("prompt", prompt)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("encode inference request: %w", err)
	}

	body, err := r.post(ctx, "/inference", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var result inferenceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper server: %s", result.Error)
	}
	return result.Text, nil
}

func (r *ServerRuntime) post(ctx context.Context, path string, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper server request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper server %s (status %d): %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func (r *ServerRuntime) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

func (r *ServerRuntime) Close() error {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
	r.client.CloseIdleConnections()
	return nil
}

// Probe checks that the server answers HTTP at all.
func (r *ServerRuntime) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisper server unreachable at %s: %w", r.baseURL, err)
	}
	_ = resp.Body.Close()
	return nil
}
