package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

const (
	maxResponseBytes = 16 << 20
	probeTimeout     = 2 * time.Second
)

// RESTTransport talks to servers exposing one POST endpoint per operation
// ({base}/{operation}) and GET {base}/health.
type RESTTransport struct {
	mu      sync.RWMutex
	baseURL string

	client  *http.Client
	timeout time.Duration
}

func NewRESTTransport(baseURL string, timeout time.Duration) *RESTTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (t *RESTTransport) Endpoint() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseURL
}

func (t *RESTTransport) SetEndpoint(url string) {
	t.mu.Lock()
	t.baseURL = strings.TrimRight(url, "/")
	t.mu.Unlock()
}

func (t *RESTTransport) Call(ctx context.Context, op domain.Operation, params map[string]any) (domain.StudioResult, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint()+"/"+string(op), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.RemoteError{Code: resp.StatusCode, Message: remoteMessage(data, resp.Status)}
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, &domain.RemoteError{Code: resp.StatusCode, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	if msg, ok := result["error"].(string); ok && msg != "" {
		return nil, &domain.RemoteError{Code: resp.StatusCode, Message: msg}
	}
	return result, nil
}

func (t *RESTTransport) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint()+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return &domain.RemoteError{Code: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

// decodeResult accepts an object, or any other JSON value wrapped as {"result": v}.
func decodeResult(data []byte) (domain.StudioResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.StudioResult{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return domain.StudioResult(m), nil
	}
	return domain.StudioResult{"result": v}, nil
}

func remoteMessage(data []byte, status string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return status
	}
	return text
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
}
