package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/branchvote/branchvote-api/internal/config"
	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"google.golang.org/genai"
)

// MediaUploader persists rendered image bytes and returns a public URL.
// Implemented by the GCS media store.
type MediaUploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ImageGenerator implements the generation.ImageGenerator interface using
// Imagen through the Gemini API. Rendered bytes are uploaded to media
// storage and the public URL is returned.
type ImageGenerator struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	media  MediaUploader
}

// NewImageGenerator creates a new instance of ImageGenerator with the
// provided dependencies.
func NewImageGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.LLMConfig,
	media MediaUploader,
) (*ImageGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if media == nil {
		return nil, errors.New("media uploader cannot be nil")
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

	return &ImageGenerator{
		logger: logger.With(slog.String("component", "image_generator")),
		config: cfg,
		client: client,
		media:  media,
	}, nil
}

// Ensure ImageGenerator implements generation.ImageGenerator interface
var _ generation.ImageGenerator = (*ImageGenerator)(nil)

// GenerateImage renders an illustration for a node and returns the public
// URL of the stored image. The node ID keys the stored object, so a re-run
// for the same node overwrites rather than accumulates.
func (g *ImageGenerator) GenerateImage(
	ctx context.Context,
	cfg *domain.GenerationConfig,
	nodeID string,
	content domain.NodeContent,
) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("%w: %v", generation.ErrInvalidConfig, ErrNilTreeConfig)
	}
	if cfg.ImageModel == "" {
		return "", fmt.Errorf("%w: image model cannot be empty", generation.ErrInvalidConfig)
	}
	if nodeID == "" {
		return "", fmt.Errorf("%w: node ID cannot be empty", generation.ErrInvalidConfig)
	}

	prompt := buildImagePrompt(cfg, content)

	image, err := g.renderWithRetry(ctx, cfg.ImageModel, prompt)
	if err != nil {
		return "", err
	}

	contentType := image.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}
	key := fmt.Sprintf("nodes/%s.png", nodeID)

	url, err := g.media.Upload(ctx, key, contentType, image.ImageBytes)
	if err != nil {
		return "", fmt.Errorf("%w: failed to store rendered image: %v",
			generation.ErrGenerationFailed, err)
	}

	g.logger.InfoContext(ctx, "rendered and stored node illustration",
		slog.String("node_id", nodeID),
		slog.String("url", url))
	return url, nil
}

// buildImagePrompt combines the tree's image system prompt with the node
// text. Reference media URLs are appended as style hints.
func buildImagePrompt(cfg *domain.GenerationConfig, content domain.NodeContent) string {
	var b strings.Builder
	if cfg.ImageSystemPrompt != "" {
		b.WriteString(cfg.ImageSystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Illustrate the following scene: ")
	b.WriteString(content.Title)
	if content.Description != "" {
		b.WriteString(". ")
		b.WriteString(content.Description)
	}
	if len(cfg.ReferenceMediaURLs) > 0 {
		b.WriteString("\n\nMatch the style of the reference images at: ")
		b.WriteString(strings.Join(cfg.ReferenceMediaURLs, ", "))
	}
	return b.String()
}

// renderWithRetry calls the image model with the same backoff policy as
// text generation. Safety blocks are permanent; everything else is assumed
// transient.
func (g *ImageGenerator) renderWithRetry(ctx context.Context, model, prompt string) (*genai.Image, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}

	genConfig := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	}

	for attempt := 0; ; attempt++ {
		g.logger.DebugContext(ctx, "calling image model",
			slog.String("model", model),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries+1))

		resp, err := g.client.Models.GenerateImages(ctx, model, prompt, genConfig)
		if err == nil {
			if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
				return nil, fmt.Errorf("%w: no image generated", generation.ErrInvalidResponse)
			}
			image := resp.GeneratedImages[0].Image
			if len(image.ImageBytes) == 0 {
				return nil, fmt.Errorf("%w: empty image bytes", generation.ErrInvalidResponse)
			}
			return image, nil
		}

		g.logger.WarnContext(ctx, "image model call failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

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
