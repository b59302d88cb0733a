package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Generator performs fill-in-the-middle generation via an Ollama-compatible /api/generate endpoint.
type Generator struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	stop        []string
	keepAlive   string
	client      *http.Client
}

// NewGenerator creates a generator from config.
func NewGenerator(baseURL, model string, temperature float64, maxTokens int, stop []string, keepAlive string) *Generator {
	if stop == nil {
		stop = []string{}
	}
	return &Generator{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		stop:        stop,
		keepAlive:   keepAlive,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the model name sent with every request.
func (g *Generator) Model() string { return g.model }

// Close releases idle connections.
func (g *Generator) Close() {
	g.client.CloseIdleConnections()
}

type generateRequest struct {
	Stream  bool            `json:"stream"`
	Prompt  string          `json:"prompt"`
	Model   string          `json:"model"`
	Raw     bool            `json:"raw"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// loadRequest has no prompt, which makes the server load the model and return.
type loadRequest struct {
	Model     string `json:"model"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// Generate sends the raw prompt and returns the generated continuation verbatim.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := g.post(ctx, generateRequest{
		Stream: false,
		Prompt: prompt,
		Model:  g.model,
		Raw:    true,
		Options: generateOptions{
			Temperature: g.temperature,
			NumPredict:  g.maxTokens,
			Stop:        g.stop,
		},
	})
	if err != nil {
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if result.Error != "" {
		return "", fmt.Errorf("API error: %s", result.Error)
	}
	return result.Response, nil
}

// Suggest is Generate with every failure collapsed into an empty suggestion.
// Transport errors, non-2xx statuses, malformed bodies and cancellation are logged at debug level only.
func (g *Generator) Suggest(ctx context.Context, prompt string) string {
	text, err := g.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("generation cancelled", "error", ctx.Err())
		} else {
			slog.Debug("generation error", "error", err)
		}
		return ""
	}
	return text
}

// Warm asks the server to load the model so the first completion does not pay the load time.
func (g *Generator) Warm(ctx context.Context) error {
	_, err := g.post(ctx, loadRequest{Model: g.model, KeepAlive: g.keepAlive})
	return err
}

// post sends v as JSON to /api/generate and returns the body of a 2xx response.
func (g *Generator) post(ctx context.Context, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
