package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyEmbeddingInput = errors.New("embedding input is empty")

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

func (c *OpenAICompatibleClient) ModelName() string {
	return c.cfg.EmbeddingModel
}

// Embed returns the embedding vector for a single text.
func Embed(ctx context.Context, e Embedder, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return out[0], nil
}

func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = strings.TrimSpace(t)
		if inputs[i] == "" {
			return nil, ErrEmptyEmbeddingInput
		}
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.postJSON(ctx, "/embeddings", map[string]interface{}{
		"model": c.cfg.EmbeddingModel,
		"input": inputs,
	}, &parsed)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(inputs), len(parsed.Data))
	}

	result := make([][]float32, len(inputs))
	for i, item := range parsed.Data {
		idx := item.Index
		if idx < 0 || idx >= len(result) || result[idx] != nil {
			idx = i
		}
		result[idx] = item.Embedding
	}
	return result, nil
}
