// Package studio is the gateway to the Roblox Studio automation server.
package studio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// Transport performs single round trips against the automation server.
type Transport interface {
	Call(ctx context.Context, op domain.Operation, params map[string]any) (domain.StudioResult, error)
	Ping(ctx context.Context) error
	Endpoint() string
	SetEndpoint(url string)
}

// Client is the typed RPC client. It never retries: a failed call is
// returned immediately and the caller decides what to do next.
type Client struct {
	transport Transport
}

func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// Call validates op and its parameters, then performs one round trip.
func (c *Client) Call(ctx context.Context, op domain.Operation, params map[string]any) (domain.StudioResult, error) {
	if !op.Remote() {
		return nil, fmt.Errorf("unsupported studio operation %q", op)
	}
	for _, name := range op.RequiredParams() {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("%s: missing parameter %q", op, name)
		}
	}

	log := observability.LoggerFromContext(ctx).With("operation", op)
	start := time.Now()

	result, err := c.transport.Call(ctx, op, params)

	elapsed := time.Since(start)
	observability.StudioCallDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	observability.StudioCalls.WithLabelValues(string(op), outcome(err)).Inc()

	if err != nil {
		log.Warn("studio call failed", "error", err, "elapsed_ms", elapsed.Milliseconds())
		return nil, err
	}
	log.Debug("studio call done", "elapsed_ms", elapsed.Milliseconds())
	return result, nil
}

// Status reports whether the server answers its liveness probe.
func (c *Client) Status(ctx context.Context) bool {
	return c.transport.Ping(ctx) == nil
}

// FileTree lists the project hierarchy.
func (c *Client) FileTree(ctx context.Context) (any, error) {
	res, err := c.Call(ctx, domain.OpGetFileTree, map[string]any{})
	if err != nil {
		return nil, err
	}
	return res.Tree(), nil
}

func (c *Client) BaseURL() string {
	return c.transport.Endpoint()
}

// SetBaseURL retargets the client; in-flight calls keep their old target.
func (c *Client) SetBaseURL(url string) {
	c.transport.SetEndpoint(url)
}

func outcome(err error) string {
	var remote *domain.RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUnreachable):
		return "unreachable"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}

var _ domain.StudioGateway = (*Client)(nil)
