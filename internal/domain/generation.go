package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultDimension = 1024
	MaxDimension     = 2048
	DefaultModel     = "fal-ai/flux/dev"
	OutputCount      = 1
)

// GenerationRequest is the inbound request for a single image.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Normalize applies dimension defaults and clamps, and falls back to
// defaultModel (or DefaultModel) when no model was requested.
func (r *GenerationRequest) Normalize(defaultModel string) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Width = clampDimension(r.Width)
	r.Height = clampDimension(r.Height)
	r.Model = strings.TrimSpace(r.Model)
	if r.Model == "" {
		r.Model = strings.TrimSpace(defaultModel)
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
}

// Validate reports ErrInvalidPrompt for an empty prompt.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt (string) is required", ErrInvalidPrompt)
	}
	return nil
}

func clampDimension(v int) int {
	switch {
	case v <= 0:
		return DefaultDimension
	case v > MaxDimension:
		return MaxDimension
	default:
		return v
	}
}
