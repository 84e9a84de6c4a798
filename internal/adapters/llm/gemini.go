package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"sync"

	"google.golang.org/genai"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// GeminiConfig selects the backend. An API key uses the Gemini API; a
// project without a key uses Vertex AI with application default credentials.
type GeminiConfig struct {
	APIKey    string
	Project   string
	Location  string
	ModelName string
	BaseURL   string // overrides the service endpoint, empty for the default
}

type streamFunc func(
	ctx context.Context,
	client *genai.Client,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error]

func sdkStream(
	ctx context.Context,
	client *genai.Client,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	return client.Models.GenerateContentStream(ctx, model, contents, cfg)
}

// GeminiClient implements domain.ModelClient on top of google.golang.org/genai.
// It may start unconfigured; generation then fails with domain.ErrNotConfigured.
type GeminiClient struct {
	mu     sync.RWMutex
	client *genai.Client
	cfg    GeminiConfig

	system string
	stream streamFunc
}

// NewGeminiClient creates the client. Missing credentials are not an error.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, system string) (*GeminiClient, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.5-flash"
	}

	g := &GeminiClient{
		cfg:    cfg,
		system: system,
		stream: sdkStream,
	}

	switch {
	case cfg.APIKey != "":
		if err := g.SetAPIKey(ctx, cfg.APIKey); err != nil {
			return nil, err
		}
	case cfg.Project != "":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:     cfg.Project,
			Location:    cfg.Location,
			Backend:     genai.BackendVertexAI,
			HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
		})
		if err != nil {
			return nil, fmt.Errorf("creating Vertex AI client: %w", err)
		}
		g.client = client
	}

	return g, nil
}

// SetAPIKey (re)configures the Gemini API backend. An empty key unconfigures it.
func (g *GeminiClient) SetAPIKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		g.mu.Lock()
		g.client = nil
		g.cfg.APIKey = ""
		g.mu.Unlock()
		return nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.cfg.BaseURL},
	})
	if err != nil {
		return fmt.Errorf("creating Gemini client: %w", err)
	}

	g.mu.Lock()
	g.client = client
	g.cfg.APIKey = apiKey
	g.mu.Unlock()
	return nil
}

func (g *GeminiClient) Configured() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client != nil
}

func (g *GeminiClient) current() *genai.Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

// Generate implements domain.ModelClient.
func (g *GeminiClient) Generate(ctx context.Context, convCtx domain.ConversationContext) (string, error) {
	client := g.current()
	if client == nil {
		return "", domain.ErrNotConfigured
	}

	contents, cfg := g.request(convCtx)

	res, err := client.Models.GenerateContent(ctx, g.cfg.ModelName, contents, cfg)
	if err != nil {
		return "", classify(err)
	}

	text := res.Text()
	if text == "" {
		return "", &domain.RemoteError{Message: "model returned empty text"}
	}
	return text, nil
}

// GenerateStream implements domain.ModelClient. A record that fails to
// decode is logged and skipped; the stream goes on with the next record.
func (g *GeminiClient) GenerateStream(ctx context.Context, convCtx domain.ConversationContext) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client := g.current()
		if client == nil {
			yield("", domain.ErrNotConfigured)
			return
		}

		log := observability.LoggerFromContext(ctx).With("conversation_id", convCtx.ConversationID)
		contents, cfg := g.request(convCtx)

		for res, err := range g.stream(ctx, client, g.cfg.ModelName, contents, cfg) {
			if err != nil {
				if isRecordError(err) {
					log.Warn("skipping malformed model record", "error", err)
					observability.ModelRecordsSkipped.Inc()
					continue
				}
				yield("", classify(err))
				return
			}
			if res == nil {
				continue
			}

			text := res.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (g *GeminiClient) request(convCtx domain.ConversationContext) ([]*genai.Content, *genai.GenerateContentConfig) {
	prompt := BuildPrompt(g.system, convCtx)

	var contents []*genai.Content
	for _, m := range convCtx.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt.User, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
		TopP:              genai.Ptr[float32](0.9),
		MaxOutputTokens:   8192,
	}
	return contents, cfg
}

func isRecordError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, domain.ErrParse) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// classify maps SDK and network failures onto the domain taxonomy.
func classify(err error) error {
	var apiErr genai.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.As(err, &apiErr):
		return &domain.RemoteError{Code: apiErr.Code, Message: apiErr.Message}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	default:
		return err
	}
}

var _ domain.ModelClient = (*GeminiClient)(nil)
