package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingProvider turns text into vectors for the turn index.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbeddings embeds through the OpenAI embeddings API.
type OpenAIEmbeddings struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbeddings constructs the provider. Model defaults to
// text-embedding-3-small.
func NewOpenAIEmbeddings(apiKey, baseURL, model string) (*OpenAIEmbeddings, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("memory: openai embeddings require an api key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbeddings{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}, nil
}

func (p *OpenAIEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: embed: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

// OllamaEmbeddings embeds through a local Ollama server.
type OllamaEmbeddings struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbeddings constructs the provider with sensible defaults.
func NewOllamaEmbeddings(baseURL, model string) *OllamaEmbeddings {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbeddings{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *OllamaEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		payload, err := json.Marshal(map[string]string{"model": p.model, "prompt": text})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("memory: ollama embed: %w", err)
		}
		var body struct {
			Embedding []float32 `json:"embedding"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("memory: ollama response: %w", err)
		}
		out = append(out, body.Embedding)
	}
	return out, nil
}
