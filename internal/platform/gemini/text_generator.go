package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/branchvote/branchvote-api/internal/config"
	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"google.golang.org/genai"
)

// TextGenerator implements the generation.Generator interface using
// Google's Gemini API to generate node text from the ancestor path.
type TextGenerator struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
}

// NewTextGenerator creates a new instance of TextGenerator with the provided
// dependencies.
func NewTextGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*TextGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &TextGenerator{
		logger: logger.With(slog.String("component", "text_generator")),
		config: cfg,
		client: client,
	}, nil
}

// Ensure TextGenerator implements generation.Generator interface
var _ generation.Generator = (*TextGenerator)(nil)

// GenerateChildren creates the question and both children for the last node
// of path. The tree config supplies the model name and system prompt; the
// call retries transient API failures with exponential backoff.
func (g *TextGenerator) GenerateChildren(
	ctx context.Context,
	cfg *domain.GenerationConfig,
	path []domain.PathStep,
) (*generation.ChildSet, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidConfig, ErrNilTreeConfig)
	}
	if cfg.TextModel == "" {
		return nil, fmt.Errorf("%w: text model cannot be empty", generation.ErrInvalidConfig)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidConfig, ErrEmptyPath)
	}

	prompt, err := buildChildrenPrompt(path)
	if err != nil {
		return nil, err
	}

	parsed, err := g.callWithRetry(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}

	return parseChildSet(parsed)
}

// buildChildrenPrompt renders the ancestor path, root first, followed by the
// task instructions. The last path entry is the node being expanded.
func buildChildrenPrompt(path []domain.PathStep) (string, error) {
	entries := make([]pathEntry, 0, len(path))
	for _, step := range path {
		entry := pathEntry{
			Title:       step.Title,
			Description: step.Description,
			Context:     step.Context,
		}
		if step.Side != nil {
			entry.Side = string(*step.Side)
		}
		entries = append(entries, entry)
	}

	pathJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal ancestor path: %w", err)
	}

	var b strings.Builder
	b.WriteString("The user has walked the following path through the decision tree, root first. ")
	b.WriteString("The last entry is the node being expanded.\n\n")
	b.Write(pathJSON)
	b.WriteString("\n\nContinue the story: write the binary question asked at the last node and the two ")
	b.WriteString("child nodes answering it. Respond with a single JSON object of the form ")
	b.WriteString(`{"question": "...", "left": {"title": "...", "description": "...", "context": "..."}, `)
	b.WriteString(`"right": {"title": "...", "description": "...", "context": "..."}}. `)
	b.WriteString("Each child's context must summarize the full path down to that child so it can stand alone.")

	return b.String(), nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff retry
// logic. Permanent errors (safety blocks, malformed responses) are returned
// immediately without retrying.
func (g *TextGenerator) callWithRetry(
	ctx context.Context,
	cfg *domain.GenerationConfig,
	prompt string,
) (*childrenSchema, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if cfg.TextSystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(cfg.TextSystemPrompt, genai.RoleUser)
	}

	for attempt := 0; ; attempt++ {
		g.logger.DebugContext(ctx, "calling Gemini API",
			slog.String("model", cfg.TextModel),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries+1))

		parsed, transient, err := g.callOnce(ctx, cfg.TextModel, prompt, genConfig)
		if err == nil {
			return parsed, nil
		}

		g.logger.WarnContext(ctx, "Gemini API call failed",
			slog.Int("attempt", attempt+1),
			slog.Bool("transient", transient),
			slog.String("error", err.Error()))

		if !transient {
			return nil, err
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				generation.ErrTransientFailure, maxRetries)
		}

		select {
		case <-time.After(backoffDelay(baseDelaySeconds, attempt, rng)):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single API call and classifies any failure as transient
// or permanent.
func (g *TextGenerator) callOnce(
	ctx context.Context,
	model string,
	prompt string,
	genConfig *genai.GenerateContentConfig,
) (*childrenSchema, bool, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), genConfig)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, false, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, false, fmt.Errorf("%w: request rejected by safety filters", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return nil, false, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var parsed childrenSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: failed to parse JSON response: %v",
			generation.ErrInvalidResponse, err)
	}

	return &parsed, false, nil
}

// parseChildSet validates the model response and converts it into the
// generation result type.
func parseChildSet(parsed *childrenSchema) (*generation.ChildSet, error) {
	if parsed == nil {
		return nil, fmt.Errorf("%w: response is nil", generation.ErrInvalidResponse)
	}
	if parsed.Question == "" {
		return nil, fmt.Errorf("%w: missing question", generation.ErrInvalidResponse)
	}
	if parsed.Left.Title == "" || parsed.Right.Title == "" {
		return nil, fmt.Errorf("%w: child missing title", generation.ErrInvalidResponse)
	}

	return &generation.ChildSet{
		Question: parsed.Question,
		Left: domain.NodeContent{
			Title:       parsed.Left.Title,
			Description: parsed.Left.Description,
			Context:     parsed.Left.Context,
		},
		Right: domain.NodeContent{
			Title:       parsed.Right.Title,
			Description: parsed.Right.Description,
			Context:     parsed.Right.Context,
		},
	}, nil
}

// backoffDelay computes exponential backoff with jitter:
// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
func backoffDelay(baseDelaySeconds, attempt int, rng *rand.Rand) time.Duration {
	backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
	jitterFactor := 0.5 + rng.Float64()*0.5
	return time.Duration(backoffSeconds * jitterFactor * float64(time.Second))
}
