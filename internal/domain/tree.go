package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Tree
var (
	ErrEmptyTreeID   = errors.New("tree ID cannot be empty")
	ErrEmptyTreeName = errors.New("tree name cannot be empty")
)

// GenerationConfig is the per-tree configuration for text and image
// generation. It is owned by the surrounding system and read-only to the
// pipeline: the core receives a snapshot and never writes it back.
type GenerationConfig struct {
	TextModel           string   `json:"text_model"`
	TextSystemPrompt    string   `json:"text_system_prompt"`
	ImageModel          string   `json:"image_model"`
	ImageSystemPrompt   string   `json:"image_system_prompt"`
	ReferenceMediaURLs  []string `json:"reference_media_urls"`
	PlaceholderMediaURL string   `json:"placeholder_media_url"`
	DiscoveryEnabled    bool     `json:"discovery_enabled"`
}

// Tree is one decision tree (a voting session) together with its
// generation configuration.
type Tree struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Config    GenerationConfig `json:"config"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewTree creates a new Tree with the given name and generation config.
// Returns an error if validation fails.
func NewTree(name string, config GenerationConfig) (*Tree, error) {
	tree := &Tree{
		ID:        uuid.New(),
		Name:      name,
		Config:    config,
		CreatedAt: time.Now().UTC(),
	}

	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

// Validate checks if the Tree has valid data.
func (t *Tree) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTreeID
	}
	if t.Name == "" {
		return ErrEmptyTreeName
	}
	return nil
}
