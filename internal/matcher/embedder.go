package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"renterchat/internal/utils"

	"go.uber.org/zap"
)

// Embedder turns text into vectors in one fixed embedding space
type Embedder interface {
	// Embed returns one vector per input text, in order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the model; persisted embeddings are keyed by it
	Name() string
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length are an error; a zero vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// OllamaEmbedder calls a local Ollama server
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEmbedder creates an embedder for the given Ollama endpoint and model
func NewOllamaEmbedder(endpoint, model string, timeout time.Duration) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "all-minilm"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OllamaEmbedder{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements Embedder. Ollama has no batch endpoint, so texts are
// embedded one request at a time.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return result.Embedding, nil
}

// Name implements Embedder
func (e *OllamaEmbedder) Name() string {
	return "ollama:" + e.model
}

// SelectEmbedder returns the first candidate that can embed a sample text
// within timeout. The last candidate is returned unchecked when every other
// one fails.
func SelectEmbedder(ctx context.Context, timeout time.Duration, logger *zap.Logger, candidates ...Embedder) Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(candidates) == 0 {
		return nil
	}
	for _, e := range candidates[:len(candidates)-1] {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := e.Embed(checkCtx, []string{"dog"})
		cancel()
		if err == nil {
			return e
		}
		logger.Warn("Embedding provider unavailable, trying next",
			zap.String("embedder", e.Name()),
			zap.Error(err),
		)
	}
	return candidates[len(candidates)-1]
}

// LexicalEmbedder hashes character trigrams into a fixed-size vector. It
// needs no model server and is fully deterministic, which makes it the
// offline default; similarity reflects spelling, not meaning.
type LexicalEmbedder struct {
	dims int
}

// NewLexicalEmbedder creates a trigram embedder with the given dimensionality
func NewLexicalEmbedder(dims int) *LexicalEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &LexicalEmbedder{dims: dims}
}

// Embed implements Embedder
func (e *LexicalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *LexicalEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, word := range strings.Fields(utils.NormalizeTerm(text)) {
		padded := []rune(" " + utils.Singular(word) + " ")
		for i := 0; i+3 <= len(padded); i++ {
			h := fnv.New32a()
			_, _ = h.Write([]byte(string(padded[i : i+3])))
			vec[h.Sum32()%uint32(e.dims)]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Name implements Embedder
func (e *LexicalEmbedder) Name() string {
	return fmt.Sprintf("lexical-trigram-%d", e.dims)
}
