package narrative

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/genai"

	"contador/internal/log"
	"contador/internal/ports"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const systemInstruction = `Respondés en español rioplatense, en no más de 4 líneas.
Solo narrás los números que recibís; nunca calculás ni inventás valores.`

// ErrEmptyAnswer is returned when the generator produced no text.
var ErrEmptyAnswer = errors.New("empty answer from generator")

// generator is the subset of *genai.Models the narrator calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiConfig selects credentials and model.
type GeminiConfig struct {
	APIKey        string
	Model         string
	RetryAttempts uint
	RetryDelay    time.Duration
}

// GeminiNarrator narrates prompts with a Gemini model.
type GeminiNarrator struct {
	models   generator
	model    string
	config   *genai.GenerateContentConfig
	attempts uint
	delay    time.Duration
	logger   *log.Logger
}

var (
	_ ports.Narrator       = (*GeminiNarrator)(nil)
	_ ports.StreamNarrator = (*GeminiNarrator)(nil)
)

// NewGeminiNarrator creates a client for the Gemini API. An empty APIKey
// lets the SDK read GOOGLE_API_KEY / GEMINI_API_KEY from the environment.
func NewGeminiNarrator(ctx context.Context, cfg GeminiConfig) (*GeminiNarrator, error) {
	var cc *genai.ClientConfig
	if cfg.APIKey != "" {
		cc = &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiNarrator(client.Models, cfg), nil
}

func newGeminiNarrator(models generator, cfg GeminiConfig) *GeminiNarrator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &GeminiNarrator{
		models: models,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   log.For(log.ComponentNarrative),
	}
}

// Narrate returns the generated answer, trimmed. Transient API failures are retried.
func (g *GeminiNarrator) Narrate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := retry.Do(
		func() error {
			resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
			if err != nil {
				return err
			}
			answer = strings.TrimSpace(resp.Text())
			if answer == "" {
				return ErrEmptyAnswer
			}
			return nil
		},
		retry.RetryIf(retryableAPIError),
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(g.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.WarnContext(ctx, "Retrying generation",
				log.FieldOperation, log.OpNarrate,
				"attempt", n+1,
				log.FieldError, err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	g.logger.InfoContext(ctx, "Answer generated",
		log.FieldOperation, log.OpNarrate,
		"prompt_chars", len(prompt),
		"answer_chars", len(answer))
	return answer, nil
}

// NarrateStream calls yield with each fragment as the model produces it.
// A non-nil error from yield stops the stream and is returned.
func (g *GeminiNarrator) NarrateStream(ctx context.Context, prompt string, yield func(fragment string) error) error {
	fragments := 0
	for resp, err := range g.models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.config) {
		if err != nil {
			return fmt.Errorf("stream answer: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		fragments++
		if err := yield(text); err != nil {
			return err
		}
	}
	g.logger.InfoContext(ctx, "Stream completed",
		log.FieldOperation, log.OpNarrate,
		log.FieldCount, fragments)
	return nil
}

func retryableAPIError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyAnswer) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return true
}
