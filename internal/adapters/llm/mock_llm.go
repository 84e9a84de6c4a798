package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// MockLLM is a deterministic domain.ModelClient for local mode and tests.
// With no scripted chunks it echoes the request back.
type MockLLM struct {
	mu sync.Mutex

	Chunks       []string
	Err          error // returned after the chunks, if set
	Unconfigured bool

	Calls []domain.ConversationContext
}

func NewMockLLM(chunks ...string) *MockLLM {
	return &MockLLM{Chunks: chunks}
}

func (m *MockLLM) Configured() bool {
	return !m.Unconfigured
}

func (m *MockLLM) Generate(ctx context.Context, convCtx domain.ConversationContext) (string, error) {
	var b strings.Builder
	for chunk, err := range m.GenerateStream(ctx, convCtx) {
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func (m *MockLLM) GenerateStream(ctx context.Context, convCtx domain.ConversationContext) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		m.Calls = append(m.Calls, convCtx)
		chunks := m.Chunks
		m.mu.Unlock()

		if m.Unconfigured {
			yield("", domain.ErrNotConfigured)
			return
		}

		if len(chunks) == 0 {
			chunks = []string{
				fmt.Sprintf("I hear you: %q. ", convCtx.Request),
				fmt.Sprintf("We have %d earlier messages in this conversation.", len(convCtx.History)),
			}
		}

		for _, c := range chunks {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(c, nil) {
				return
			}
		}

		if m.Err != nil {
			yield("", m.Err)
		}
	}
}

// CallCount returns how many generations were requested.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ domain.ModelClient = (*MockLLM)(nil)
