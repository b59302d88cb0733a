package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/Paranoid-AF/fimlet/generate"
)

// newOllama starts a fake /api/generate endpoint answering with respond(prompt).
func newOllama(t *testing.T, calls *atomic.Int32, respond func(prompt string) (int, string)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		status, text := respond(body.Prompt)
		if status != http.StatusOK {
			http.Error(w, text, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// newEngineServer runs the daemon on a real engine pointed at baseURL.
func newEngineServer(t *testing.T, baseURL string, delay time.Duration) *Server {
	t.Helper()
	t.Setenv("FIMLET_BASE_URL", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("FIMLET_MODEL", "")

	cfg := fimlet.DefaultConfig()
	cfg.Generation.BaseURL = baseURL
	cfg.Debounce.DelayMS = int(delay / time.Millisecond)
	cfg.Cache.Enabled = false
	return newTestServer(t, generate.NewEngineWithConfig(cfg, ""))
}

func TestIntegrationRoundTrip(t *testing.T) {
	var calls atomic.Int32
	url := newOllama(t, &calls, func(string) (int, string) { return http.StatusOK, "console.log('x');" })
	srv := newEngineServer(t, url, 20*time.Millisecond)

	resp := sendRequest(t, srv.sockPath, &fimlet.Request{
		RequestID:   7,
		SessionID:   "test-session",
		FileName:    "/src/app/main.js",
		LanguageID:  "javascript",
		Text:        "function f() {\n  \n}\n",
		Line:        1,
		Character:   2,
		TriggerKind: fimlet.TriggerAutomatic,
	})

	if resp.RequestID != 7 {
		t.Errorf("expected request_id 7, got %d", resp.RequestID)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.InsertText != "console.log('x');" {
		t.Errorf("expected exact suggestion, got %q", item.InsertText)
	}
	at := fimlet.Position{Line: 1, Character: 2}
	if item.Range.Start != at || item.Range.End != at {
		t.Errorf("expected empty range at %+v, got %+v", at, item.Range)
	}
}

func TestIntegrationBlankSuggestion(t *testing.T) {
	var calls atomic.Int32
	url := newOllama(t, &calls, func(string) (int, string) { return http.StatusOK, "  \n\t" })
	srv := newEngineServer(t, url, 0)

	raw := sendLine(t, srv.sockPath, &fimlet.Request{RequestID: 1, Text: "x", TriggerKind: fimlet.TriggerInvoke})
	if !strings.Contains(raw, `"items":[]`) {
		t.Errorf("expected items:[] for a blank suggestion, got %s", raw)
	}
	if strings.Contains(raw, `"error"`) {
		t.Errorf("expected no error, got %s", raw)
	}
}

func TestIntegrationServerErrorIsEmpty(t *testing.T) {
	var calls atomic.Int32
	url := newOllama(t, &calls, func(string) (int, string) { return http.StatusInternalServerError, "model crashed" })
	srv := newEngineServer(t, url, 0)

	resp := sendRequest(t, srv.sockPath, &fimlet.Request{RequestID: 5, Text: "x", TriggerKind: fimlet.TriggerInvoke})
	if len(resp.Items) != 0 {
		t.Errorf("expected no items, got %+v", resp.Items)
	}
	if resp.Error != nil {
		t.Errorf("expected inference failures to stay silent, got %+v", resp.Error)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestIntegrationNotConfigured(t *testing.T) {
	t.Setenv("FIMLET_BASE_URL", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("FIMLET_MODEL", "")
	cfg := fimlet.DefaultConfig()
	cfg.Generation.Model = ""
	srv := newTestServer(t, generate.NewEngineWithConfig(cfg, ""))

	resp := sendRequest(t, srv.sockPath, &fimlet.Request{RequestID: 1, Text: "x"})
	if resp.Error == nil || resp.Error.Code != "not_configured" {
		t.Errorf("expected not_configured error, got %+v", resp.Error)
	}
	if resp.Items == nil {
		t.Error("expected empty, non-nil items")
	}
}

func TestIntegrationInvokeSupersedesPendingAutomatic(t *testing.T) {
	var calls atomic.Int32
	url := newOllama(t, &calls, func(string) (int, string) { return http.StatusOK, "done()" })
	srv := newEngineServer(t, url, 300*time.Millisecond)

	type result struct {
		resp    *fimlet.Response
		elapsed time.Duration
	}
	auto := make(chan result, 1)
	go func() {
		start := time.Now()
		resp := sendRequest(t, srv.sockPath, &fimlet.Request{
			RequestID: 1, SessionID: "s", Text: "a", Character: 1, TriggerKind: fimlet.TriggerAutomatic,
		})
		auto <- result{resp, time.Since(start)}
	}()

	time.Sleep(50 * time.Millisecond)
	invoked := sendRequest(t, srv.sockPath, &fimlet.Request{
		RequestID: 2, SessionID: "s", Text: "a", Character: 1, TriggerKind: fimlet.TriggerInvoke,
	})
	if len(invoked.Items) != 1 {
		t.Fatalf("expected the invoke to produce one item, got %d", len(invoked.Items))
	}

	r := <-auto
	if r.resp.RequestID != 1 || len(r.resp.Items) != 0 {
		t.Errorf("expected superseded automatic request to come back empty, got %+v", r.resp)
	}
	if r.elapsed >= 300*time.Millisecond {
		t.Errorf("superseded request should return before its timer, took %v", r.elapsed)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one inference call, got %d", calls.Load())
	}
}

func TestIntegrationMalformedRequest(t *testing.T) {
	srv := newTestServer(t, emptyStub())

	raw := sendLine(t, srv.sockPath, "not json")
	if !strings.Contains(raw, `"invalid_request"`) {
		t.Errorf("expected invalid_request error, got %s", raw)
	}

	// Server should survive; send a valid request after
	resp := sendRequest(t, srv.sockPath, &fimlet.Request{
		RequestID: 99,
		Text:      "test",
	})
	if resp.RequestID != 99 {
		t.Errorf("server should survive malformed request, expected id 99, got %d", resp.RequestID)
	}
}

func TestIntegrationConcurrent(t *testing.T) {
	var calls atomic.Int32
	url := newOllama(t, &calls, func(prompt string) (int, string) {
		return http.StatusOK, fmt.Sprintf("len=%d", len(prompt))
	})
	srv := newEngineServer(t, url, 10*time.Millisecond)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp := sendRequest(t, srv.sockPath, &fimlet.Request{
				RequestID:   id,
				SessionID:   fmt.Sprintf("session-%d", id),
				Text:        "concurrent",
				Character:   id % 10,
				TriggerKind: fimlet.TriggerAutomatic,
			})
			if resp.RequestID != id {
				errs <- fmt.Sprintf("goroutine %d: expected id %d, got %d", id, id, resp.RequestID)
			}
			if len(resp.Items) != 1 {
				errs <- fmt.Sprintf("goroutine %d: expected 1 item, got %d", id, len(resp.Items))
			}
		}(i + 1)
	}

	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
	if calls.Load() != n {
		t.Errorf("expected %d inference calls across separate sessions, got %d", n, calls.Load())
	}
}
