// Package embedding is an HTTP client for the sentence-embedding inference
// service used by the semantic matcher.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a batched text-embedding endpoint. The service is expected
// to be deterministic: identical input text always yields the identical
// vector, which is what lets callers batch requests freely.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	httpClient *http.Client
}

// NewClient creates an embedding client.
//
// endpoint is the inference URL, e.g. "http://embed.internal:8080/embed".
// batchSize bounds how many texts go into a single HTTP request; larger
// inputs are chunked transparently.
func NewClient(endpoint, apiKey, model string, dimensions, batchSize int, timeout time.Duration) *Client {
	if batchSize < 1 {
		batchSize = 32
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dimensions returns the configured embedding vector size.
func (c *Client) Dimensions() int { return c.dimensions }

// embedRequest is the inference request envelope.
type embedRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

// embedResponse is the inference response envelope.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// EmbedBatch returns one vector per input text, in input order. Inputs beyond
// the configured batch size are split across sequential requests.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding: chunk %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedChunk performs one HTTP round trip.
func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embedRequest{Model: c.model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("service error: %s", er.Error)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(er.Embeddings), len(texts))
	}
	if c.dimensions > 0 {
		for i, v := range er.Embeddings {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), c.dimensions)
			}
		}
	}
	return er.Embeddings, nil
}
