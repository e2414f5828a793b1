// Package provider implements the external generation services behind workflow.Provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/mediaflow/types"
	"github.com/songzhibin97/mediaflow/workflow"
)

const (
	defaultTimeout  = 5 * time.Minute
	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// ErrBaseURLRequired is returned by NewHTTPProvider when no endpoint is configured.
var ErrBaseURLRequired = errors.New("provider base URL is required")

// APIError is a non-2xx answer from the generation service.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithTimeout bounds each request. The engine's node timeout still applies on top.
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

func WithLogger(logger *zap.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// HTTPProvider calls a JSON generation API. Each operation is a POST of the
// request struct to baseURL/v1/<operation>, answered by the output struct.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ workflow.Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTPProvider for baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) (*HTTPProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	p := &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) TextToVideo(ctx context.Context, req workflow.TextToVideoRequest) (types.VideoOutput, error) {
	return call[types.VideoOutput](ctx, p, "text-to-video", req)
}

func (p *HTTPProvider) ImageToVideo(ctx context.Context, req workflow.ImageToVideoRequest) (types.VideoOutput, error) {
	return call[types.VideoOutput](ctx, p, "image-to-video", req)
}

func (p *HTTPProvider) Upscale(ctx context.Context, req workflow.UpscaleRequest) (types.VideoOutput, error) {
	return call[types.VideoOutput](ctx, p, "upscale", req)
}

func (p *HTTPProvider) Music(ctx context.Context, req workflow.MusicRequest) (types.AudioOutput, error) {
	return call[types.AudioOutput](ctx, p, "music", req)
}

func (p *HTTPProvider) Merge(ctx context.Context, req workflow.MergeRequest) (types.VideoOutput, error) {
	return call[types.VideoOutput](ctx, p, "merge", req)
}

func (p *HTTPProvider) LipSync(ctx context.Context, req workflow.LipSyncRequest) (types.VideoOutput, error) {
	return call[types.VideoOutput](ctx, p, "lip-sync", req)
}

func call[T any](ctx context.Context, p *HTTPProvider, operation string, body interface{}) (T, error) {
	var zero T
	endpoint := p.baseURL + "/v1/" + operation

	data, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	p.logger.Debug("provider call",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, &APIError{Endpoint: operation, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var out T
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return zero, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return out, nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from an error body,
// falling back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
