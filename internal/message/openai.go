package message

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"calbrief/internal/calendar"
	"calbrief/pkg/logging"
)

// APIKeyStore persists the generator API key. *store.APIKeys implements it.
type APIKeyStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, key string) error
}

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	BaseURL     string // empty means api.openai.com
	Persona     string
}

// OpenAIGenerator generates messages with the chat completions API. The
// client is created on first use from the stored API key and rebuilt when
// the key changes.
type OpenAIGenerator struct {
	cfg     OpenAIConfig
	keys    APIKeyStore
	prompts *Prompts

	mu        sync.Mutex
	client    openai.Client
	clientKey string
}

// NewOpenAIGenerator creates a generator reading its key from keys.
func NewOpenAIGenerator(cfg OpenAIConfig, keys APIKeyStore, prompts *Prompts) *OpenAIGenerator {
	return &OpenAIGenerator{cfg: cfg, keys: keys, prompts: prompts}
}

// Generate renders the persona prompt and returns the completion text.
func (g *OpenAIGenerator) Generate(ctx context.Context, events []calendar.Event, date time.Time, variant Variant) (string, error) {
	prompt, err := g.prompts.Render(g.cfg.Persona, events, date, variant)
	if err != nil {
		return "", &GenerationError{Variant: variant, Err: err}
	}

	client, err := g.clientFor(ctx)
	if err != nil {
		return "", err
	}

	content, err := g.complete(ctx, client, prompt, g.cfg.MaxTokens)
	if err != nil {
		return "", &GenerationError{Variant: variant, Err: err}
	}
	return content, nil
}

// TestAPIKey sends a short greeting with key and stores the key only when a
// non-empty reply comes back. It returns the reply.
func (g *OpenAIGenerator) TestAPIKey(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrAPIKeyNotConfigured
	}

	greeting, err := g.complete(ctx, g.newClient(key), greetingPrompt, 100)
	if err != nil {
		logging.Warn("Message", "API key test failed: %v", err)
		return "", &GenerationError{Variant: VariantPresent, Err: err}
	}

	if err := g.keys.Set(ctx, key); err != nil {
		return "", err
	}
	logging.Info("Message", "API key validated and stored")
	return greeting, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, client openai.Client, prompt string, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       g.cfg.Model,
		Temperature: openai.Float(g.cfg.Temperature),
		MaxTokens:   openai.Int(maxTokens),
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("completion is empty")
	}
	return content, nil
}

func (g *OpenAIGenerator) clientFor(ctx context.Context) (openai.Client, error) {
	key, err := g.keys.Get(ctx)
	if err != nil {
		return openai.Client{}, err
	}
	if key == "" {
		return openai.Client{}, ErrAPIKeyNotConfigured
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clientKey != key {
		g.client = g.newClient(key)
		g.clientKey = key
	}
	return g.client, nil
}

func (g *OpenAIGenerator) newClient(key string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(1),
	}
	if g.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(g.cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}
