package studio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

type recordingTransport struct {
	mu       sync.Mutex
	calls    []domain.Operation
	endpoint string
	pingErr  error
}

func (r *recordingTransport) Call(_ context.Context, op domain.Operation, _ map[string]any) (domain.StudioResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	return domain.StudioResult{"message": "ok"}, nil
}

func (r *recordingTransport) Ping(context.Context) error { return r.pingErr }
func (r *recordingTransport) Endpoint() string           { return r.endpoint }
func (r *recordingTransport) SetEndpoint(url string)     { r.endpoint = url }

func TestClientRejectsLocalAndUnknownOperations(t *testing.T) {
	tr := &recordingTransport{}
	c := NewClient(tr)

	_, err := c.Call(context.Background(), domain.OpCreateBackup, nil)
	require.Error(t, err)
	_, err = c.Call(context.Background(), domain.Operation("format_disk"), nil)
	require.Error(t, err)

	assert.Empty(t, tr.calls)
}

func TestClientRequiresParams(t *testing.T) {
	tr := &recordingTransport{}
	c := NewClient(tr)

	_, err := c.Call(context.Background(), domain.OpMoveFile, map[string]any{"source_path": "a"})
	require.ErrorContains(t, err, "dest_path")
	assert.Empty(t, tr.calls)

	_, err = c.Call(context.Background(), domain.OpMoveFile, map[string]any{"source_path": "a", "dest_path": "b"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Operation{domain.OpMoveFile}, tr.calls)
}

func TestClientFileTreeTwoEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tree": {"name": "game", "children": [{"name": "Workspace"}, {"name": "ServerScriptService"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(NewRESTTransport(srv.URL, time.Second))
	tree, err := c.FileTree(context.Background())
	require.NoError(t, err)

	root, ok := tree.(map[string]any)
	require.True(t, ok)
	assert.Len(t, root["children"], 2)
}

func TestClientStatusIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(NewRESTTransport(srv.URL, time.Second))
	first := c.Status(context.Background())
	for range 5 {
		assert.Equal(t, first, c.Status(context.Background()))
	}
	assert.True(t, first)

	c.SetBaseURL("http://127.0.0.1:1")
	assert.False(t, c.Status(context.Background()))
	assert.False(t, c.Status(context.Background()))
}

func TestMonitorProbe(t *testing.T) {
	tr := &recordingTransport{}
	m := NewMonitor(NewClient(tr), time.Hour)

	assert.True(t, m.Probe(context.Background()))
	assert.True(t, m.Connected())

	tr.pingErr = domain.ErrUnreachable
	assert.False(t, m.Probe(context.Background()))
	assert.False(t, m.Connected())
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "timeout", outcome(domain.ErrTimeout))
	assert.Equal(t, "unreachable", outcome(domain.ErrUnreachable))
	assert.Equal(t, "remote_error", outcome(&domain.RemoteError{Code: 500}))
}
