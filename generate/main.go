// Package generate turns editor cursor state into fill-in-the-middle inline completions.
package generate

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
	defaults "github.com/Paranoid-AF/fimlet/default"
)

// Engine runs the completion pipeline: context extraction, per-session
// debounce, inference and reconciliation with the editor's request.
type Engine struct {
	generator *Generator
	gates     *sessionGates
	cache     *SuggestionCache
	config    *fimlet.Config
	prompt    *template.Template

	closeOnce sync.Once
}

// NewEngine creates a new completion engine from the on-disk configuration.
func NewEngine() *Engine {
	cfg, err := fimlet.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = fimlet.DefaultConfig()
	}
	for _, w := range fimlet.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	customPrompt := loadCustomPrompt()
	if customPrompt == "" {
		slog.Debug("no custom prompt, using built-in default")
	}

	return NewEngineWithConfig(cfg, customPrompt)
}

// NewEngineWithConfig creates an engine from an explicit configuration.
// An empty customPrompt selects the built-in FIM template.
func NewEngineWithConfig(cfg *fimlet.Config, customPrompt string) *Engine {
	var gen *Generator
	baseURL := fimlet.ResolveBaseURL(cfg)
	model := fimlet.ResolveModel(cfg)
	if baseURL != "" && model != "" {
		gen = NewGenerator(
			baseURL,
			model,
			cfg.Generation.Temperature,
			cfg.Generation.MaxTokens,
			cfg.Generation.Stop,
			cfg.Generation.KeepAlive,
		)
	} else {
		slog.Warn("generation base URL or model not configured")
	}

	var cache *SuggestionCache
	if cfg.Cache.Enabled && cfg.Cache.TTLSeconds > 0 {
		cache = NewSuggestionCache(cfg.Cache.TTL())
	}

	return &Engine{
		generator: gen,
		gates:     newSessionGates(cfg.Debounce.Delay()),
		cache:     cache,
		config:    cfg,
		prompt:    parsePrompt(customPrompt),
	}
}

// loadCustomPrompt loads a custom prompt template.
// Returns empty string if no custom prompt exists.
func loadCustomPrompt() string {
	promptPath := fimlet.PromptPath()
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", promptPath)
	return string(data)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *fimlet.Config {
	return e.config
}

// Close releases resources held by the engine. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.generator != nil {
			e.generator.Close()
		}
		e.gates.close()
		e.cache.Close()
	})
}

// Warm loads the model on the inference server.
func (e *Engine) Warm(ctx context.Context) {
	if e.generator == nil {
		return
	}
	start := time.Now()
	if err := e.generator.Warm(ctx); err != nil {
		slog.Warn("model warm-up failed", "model", e.generator.Model(), "error", err)
		return
	}
	slog.Info("model loaded", "model", e.generator.Model(), "elapsed", time.Since(start))
}

// CompleteResult holds the response plus intermediate pipeline state for debugging tools.
type CompleteResult struct {
	Response *fimlet.Response
	Context  CursorContext
	Prompt   string
	// Skipped is set when the gate stopped the request (superseded or cancelled).
	Skipped error
	Cached  bool
	Elapsed time.Duration
}

// Complete processes a completion request and returns a response.
// Completion failures yield an empty item list, never an error.
func (e *Engine) Complete(ctx context.Context, req *fimlet.Request) *fimlet.Response {
	return e.CompleteVerbose(ctx, req).Response
}

// CompleteVerbose is Complete returning the intermediate pipeline state as well.
func (e *Engine) CompleteVerbose(ctx context.Context, req *fimlet.Request) *CompleteResult {
	start := time.Now()
	result := &CompleteResult{}
	defer func() { result.Elapsed = time.Since(start) }()

	if e.generator == nil {
		result.Response = &fimlet.Response{
			Items: []fimlet.Item{},
			Error: &fimlet.Error{
				Code:    "not_configured",
				Message: "generation base URL or model not configured; set generation.base_url and generation.model or FIMLET_BASE_URL/FIMLET_MODEL",
			},
		}
		return result
	}

	pos := req.Position()
	doc := Document{FileName: req.FileName, LanguageID: req.LanguageID, Text: req.Text}
	result.Context = ExtractContext(doc, pos, e.config.Context.PrefixLines, e.config.Context.SuffixLines)

	if err := e.gates.get(req.SessionID).Wait(ctx, req.TriggerKind); err != nil {
		slog.Debug("completion skipped", "session", req.SessionID, "request_id", req.RequestID, "reason", err)
		result.Skipped = err
		result.Response = &fimlet.Response{Items: []fimlet.Item{}}
		return result
	}

	result.Prompt = e.buildPrompt(doc, result.Context)
	slog.Debug("prompt", "request_id", req.RequestID, "prompt", result.Prompt)

	suggestion, ok := e.cache.Get(result.Prompt)
	if ok {
		result.Cached = true
	} else {
		suggestion = e.generator.Suggest(ctx, result.Prompt)
		if strings.TrimSpace(suggestion) != "" {
			e.cache.Set(result.Prompt, suggestion)
		}
	}

	result.Response = &fimlet.Response{Items: reconcile(suggestion, pos)}
	return result
}

// reconcile turns a raw suggestion into the item list returned to the editor:
// nothing for a blank suggestion, otherwise one untrimmed insertion at pos.
func reconcile(suggestion string, pos fimlet.Position) []fimlet.Item {
	if strings.TrimSpace(suggestion) == "" {
		return []fimlet.Item{}
	}
	return []fimlet.Item{{
		InsertText: suggestion,
		Range:      fimlet.Range{Start: pos, End: pos},
	}}
}

// PromptData holds the data passed to the prompt template.
type PromptData struct {
	Before     string
	After      string
	FileName   string
	LanguageID string
}

// defaultPrompt is the built-in FIM template.
var defaultPrompt = template.Must(template.New("default").Parse(defaults.DefaultPrompt))

// parsePrompt parses the custom template, falling back to the built-in one.
func parsePrompt(src string) *template.Template {
	if src != "" {
		t, err := template.New("prompt").Parse(src)
		if err == nil {
			return t
		}
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
	}
	return defaultPrompt
}

// buildPrompt renders the FIM prompt for a cursor context.
func (e *Engine) buildPrompt(doc Document, cc CursorContext) string {
	data := PromptData{
		Before:     cc.Before,
		After:      cc.After,
		FileName:   doc.FileName,
		LanguageID: doc.LanguageID,
	}

	var buf strings.Builder
	if err := e.prompt.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		buf.Reset()
		if err := defaultPrompt.Execute(&buf, data); err != nil {
			slog.Error("failed to execute default prompt template", "error", err)
			return ""
		}
	}
	return buf.String()
}
