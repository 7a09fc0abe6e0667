// Package llm implements the AI Adapter (C10): a timeout-bounded,
// strictly-JSON-parsed wrapper around an OpenAI-compatible chat
// completions endpoint. Every operation is fail-soft — any error or
// timeout falls back to a neutral default rather than propagating, so a
// misbehaving or unreachable provider never blocks a search.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/altus4/core/internal/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter calls an OpenAI-compatible chat completions API to enrich
// search requests and results. The zero value is not usable; build one
// with New.
type Adapter struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
	client  *http.Client
}

// New builds an Adapter. baseURL defaults to the OpenAI chat completions
// API when empty, so self-hosted OpenAI-compatible gateways (e.g.
// OpenRouter, a local vLLM instance) can be substituted via configuration.
func New(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
		client:  &http.Client{},
	}
}

// Enabled reports whether the adapter has credentials configured. Callers
// should skip AI enrichment entirely rather than call into a disabled
// adapter, since every call would otherwise fail and log.
func (a *Adapter) Enabled() bool {
	return a != nil && a.apiKey != ""
}

// RewriteQuery turns a natural-language query into terms better suited to
// FULLTEXT matching. On any failure it returns the original query
// unchanged.
func (a *Adapter) RewriteQuery(ctx context.Context, query string) (string, error) {
	if !a.Enabled() {
		return query, nil
	}

	prompt := fmt.Sprintf(
		"Rewrite the following search query as a short list of FULLTEXT search keywords, "+
			"most important first. Respond with strict JSON: {\"keywords\": \"...\"}. Query: %q", query)

	var parsed struct {
		Keywords string `json:"keywords"`
	}
	if err := a.completeJSON(ctx, prompt, &parsed); err != nil {
		a.logger.Warn("llm rewrite failed, using original query", "error", err)
		return query, nil
	}
	if strings.TrimSpace(parsed.Keywords) == "" {
		return query, nil
	}
	return parsed.Keywords, nil
}

// Suggest proposes related queries given the current query and its top
// results. On any failure it returns no suggestions.
func (a *Adapter) Suggest(ctx context.Context, query string, results []models.SearchResult) ([]string, error) {
	if !a.Enabled() || len(results) == 0 {
		return nil, nil
	}

	tables := make(map[string]bool)
	for _, r := range results {
		tables[r.Table] = true
	}

	prompt := fmt.Sprintf(
		"A user searched %q across tables %v and got %d results. Suggest up to 3 related "+
			"search queries. Respond with strict JSON: {\"suggestions\": [\"...\"]}.",
		query, tableNames(tables), len(results))

	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := a.completeJSON(ctx, prompt, &parsed); err != nil {
		a.logger.Warn("llm suggest failed", "error", err)
		return nil, nil
	}
	return parsed.Suggestions, nil
}

// Optimize returns a short, human-readable tip for improving a search
// that touched tableCount connections. On any failure it returns no tip.
func (a *Adapter) Optimize(ctx context.Context, query string, tableCount int) (string, error) {
	if !a.Enabled() || tableCount == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"A search for %q ran across %d database connections. In one sentence, suggest how to "+
			"narrow or improve the query. Respond with strict JSON: {\"tip\": \"...\"}.",
		query, tableCount)

	var parsed struct {
		Tip string `json:"tip"`
	}
	if err := a.completeJSON(ctx, prompt, &parsed); err != nil {
		a.logger.Warn("llm optimize failed", "error", err)
		return "", nil
	}
	return parsed.Tip, nil
}

// Categorize assigns a short topical label to each result, keyed by its
// primary key. On any failure it returns an empty map.
func (a *Adapter) Categorize(ctx context.Context, results []models.SearchResult) (map[string]string, error) {
	if !a.Enabled() || len(results) == 0 {
		return nil, nil
	}

	snippets := make(map[string]string, len(results))
	for _, r := range results {
		snippets[r.PrimaryKey] = r.Snippet
	}
	body, err := json.Marshal(snippets)
	if err != nil {
		return nil, nil
	}

	prompt := fmt.Sprintf(
		"Assign a short topical category to each of the following search results, keyed by "+
			"primary key. Respond with strict JSON mapping primary key to category: %s", string(body))

	var parsed map[string]string
	if err := a.completeJSON(ctx, prompt, &parsed); err != nil {
		a.logger.Warn("llm categorize failed", "error", err)
		return nil, nil
	}
	return parsed, nil
}

func tableNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// completeJSON sends prompt to the configured model requesting a JSON
// object response, and decodes that response into dest.
func (a *Adapter) completeJSON(ctx context.Context, prompt string, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reqBody := map[string]any{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature":     0.1,
		"max_tokens":      512,
		"response_format": map[string]string{"type": "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode llm envelope: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return fmt.Errorf("llm response had no choices")
	}

	content := envelope.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return fmt.Errorf("decode llm content as json: %w", err)
	}
	return nil
}
