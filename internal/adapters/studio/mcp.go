package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// MCPTransport talks to Studio servers speaking the Model Context Protocol
// over streamable HTTP. Each operation is a tool of the same name.
type MCPTransport struct {
	mu       sync.Mutex
	endpoint string
	session  *mcpsdk.ClientSession

	client     *mcpsdk.Client
	httpClient *http.Client
	timeout    time.Duration
}

func NewMCPTransport(endpoint string, timeout time.Duration) *MCPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCPTransport{
		endpoint: endpoint,
		client: mcpsdk.NewClient(&mcpsdk.Implementation{
			Name:    "robovibe-agent",
			Version: "0.1.0",
		}, nil),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

func (t *MCPTransport) Endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

// SetEndpoint drops the current session; the next call reconnects.
func (t *MCPTransport) SetEndpoint(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoint = url
	t.dropLocked()
}

func (t *MCPTransport) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return t.session, nil
	}

	session, err := t.client.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint:   t.endpoint,
		HTTPClient: t.httpClient,
	}, nil)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	t.session = session
	return session, nil
}

func (t *MCPTransport) drop(session *mcpsdk.ClientSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == session {
		t.dropLocked()
	}
}

func (t *MCPTransport) dropLocked() {
	if t.session != nil {
		_ = t.session.Close()
		t.session = nil
	}
}

func (t *MCPTransport) Call(ctx context.Context, op domain.Operation, params map[string]any) (domain.StudioResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	session, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      string(op),
		Arguments: params,
	})
	if err != nil {
		t.drop(session)
		return nil, classifyTransportError(err)
	}

	text := toolText(res)
	if res.IsError {
		if text == "" {
			text = fmt.Sprintf("tool %s failed", op)
		}
		return nil, &domain.RemoteError{Message: text}
	}

	if m, ok := res.StructuredContent.(map[string]any); ok {
		return domain.StudioResult(m), nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err == nil {
		return domain.StudioResult(m), nil
	}
	return domain.StudioResult{"content": text}, nil
}

func (t *MCPTransport) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	session, err := t.connect(ctx)
	if err != nil {
		return err
	}
	if err := session.Ping(ctx, nil); err != nil {
		t.drop(session)
		return classifyTransportError(err)
	}
	return nil
}

// Close ends the MCP session, if any.
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropLocked()
	return nil
}

func toolText(res *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
