// Package embed fetches semantic embeddings for externally authored purpose
// statements from a local Ollama instance, feeding Stage S's optional
// semantic signal.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"driftsemantic/internal"
)

// DefaultModel matches Ollama's standard embedding model.
const DefaultModel = "nomic-embed-text"

// Client talks to a local Ollama server's embedding endpoints.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	log     *internal.Logger
}

// NewClient normalizes baseURL (trailing slashes stripped) and defaults the
// model to DefaultModel when empty.
func NewClient(baseURL, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     internal.DefaultLogger,
	}
}

// Ping hits /api/tags to confirm the server is reachable. Callers should
// treat a non-nil error as fatal: there is no point attempting per-unit
// embedding calls against an unreachable server.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build ollama connectivity probe: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	return nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed fetches one vector for a single text prompt. A non-2xx response is
// reported to the caller rather than treated as fatal — callers should warn
// and skip the unit, continuing with the rest of the batch.
func (c *Client) Embed(ctx context.Context, prompt string) ([]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	return decoded.Embedding, nil
}

// PurposeStatement is the minimal shape EmbedAll needs; it mirrors
// verdict.PurposeStatement with a plain-string unit ID.
type PurposeStatement struct {
	UnitID  string
	Purpose string
}

// EmbedAll fetches one embedding per purpose statement, logging and
// skipping any unit whose request fails or returns an empty vector. The
// result maps unit ID to vector, the shape the scoring stage reads back.
func (c *Client) EmbedAll(ctx context.Context, statements []PurposeStatement) map[string][]float64 {
	results := make(map[string][]float64, len(statements))
	for i, stmt := range statements {
		if stmt.UnitID == "" || stmt.Purpose == "" {
			continue
		}
		c.log.Debug("embedding unit %d/%d: %s", i+1, len(statements), stmt.UnitID)
		vector, err := c.Embed(ctx, stmt.Purpose)
		if err != nil {
			c.log.Warn("skipping %s: %v", stmt.UnitID, err)
			continue
		}
		if len(vector) == 0 {
			c.log.Warn("skipping %s: empty embedding returned", stmt.UnitID)
			continue
		}
		results[stmt.UnitID] = vector
	}
	return results
}
