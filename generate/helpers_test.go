package generate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	fimlet "github.com/Paranoid-AF/fimlet"
)

// fakeOllama is an httptest server speaking the /api/generate contract.
type fakeOllama struct {
	*httptest.Server
	calls atomic.Int32

	mu   sync.Mutex
	reqs []generateRequest
}

// newFakeOllama starts a server that decodes each request and hands it to handle.
func newFakeOllama(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, req generateRequest)) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.reqs = append(f.reqs, req)
		f.mu.Unlock()
		handle(w, r, req)
	}))
	t.Cleanup(f.Close)
	return f
}

// respondWith returns a handler that always answers {"response": text}.
func respondWith(text string) func(http.ResponseWriter, *http.Request, generateRequest) {
	return func(w http.ResponseWriter, _ *http.Request, _ generateRequest) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(generateResponse{Response: text})
	}
}

func (f *fakeOllama) lastRequest(t *testing.T) generateRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("no request reached the server")
	}
	return f.reqs[len(f.reqs)-1]
}

// testConfig returns defaults pointed at baseURL with a short debounce and no cache.
func testConfig(baseURL string) *fimlet.Config {
	cfg := fimlet.DefaultConfig()
	cfg.Generation.BaseURL = baseURL
	cfg.Debounce.DelayMS = 20
	cfg.Cache.Enabled = false
	return cfg
}

// testEngine builds an engine isolated from the caller's environment.
func testEngine(t *testing.T, cfg *fimlet.Config) *Engine {
	t.Helper()
	t.Setenv("FIMLET_BASE_URL", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("FIMLET_MODEL", "")
	e := NewEngineWithConfig(cfg, "")
	t.Cleanup(e.Close)
	return e
}
