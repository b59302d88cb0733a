package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
	defaults "github.com/Paranoid-AF/fimlet/default"
	"github.com/Paranoid-AF/fimlet/generate"
)

// maxMessageBytes bounds a single request line; completion requests carry the whole document.
const maxMessageBytes = 16 << 20

// warmTimeout bounds a background model load.
const warmTimeout = 2 * time.Minute

// Completer processes a completion request and returns a response.
type Completer interface {
	Complete(ctx context.Context, req *fimlet.Request) *fimlet.Response
	Warm(ctx context.Context)
	Close()
}

// inflightKey identifies a completion request that can be cancelled by a cancel message.
type inflightKey struct {
	sessionID string
	requestID int
}

type inflightEntry struct {
	cancel context.CancelFunc
}

// Server listens on a Unix domain socket for completion requests.
type Server struct {
	listener net.Listener
	sockPath string

	// newEngine builds the completer used after a reload.
	newEngine func() Completer
	watcher   *configWatcher

	mu       sync.Mutex
	closed   bool
	engine   Completer
	inflight map[inflightKey]*inflightEntry
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	return NewServerWithCompleter(sockPath, generate.NewEngine())
}

// NewServerWithCompleter creates a new IPC server with a custom Completer.
func NewServerWithCompleter(sockPath string, completer Completer) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener:  listener,
		sockPath:  sockPath,
		newEngine: func() Completer { return generate.NewEngine() },
		engine:    completer,
		inflight:  make(map[inflightKey]*inflightEntry),
	}, nil
}

// WatchConfig reloads the engine whenever the config file or prompt template changes.
func (s *Server) WatchConfig(dir string) error {
	w, err := newConfigWatcher(dir, s.reloadEngine)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		w.Close()
		return net.ErrClosed
	}
	s.watcher = w
	return nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, inference engine, and removes the socket file.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	engine := s.engine
	for _, entry := range s.inflight {
		entry.cancel()
	}
	s.mu.Unlock()

	if w != nil {
		w.Close()
	}
	if engine != nil {
		engine.Close()
	}
	s.listener.Close()
	os.Remove(s.sockPath)
}

func (s *Server) currentEngine() Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("failed to read request", "error", err)
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	var kind struct {
		Type   string `json:"type"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &kind); err != nil {
		slog.Warn("invalid request", "error", err)
		writeMessage(conn, &fimlet.Response{
			Items: []fimlet.Item{},
			Error: &fimlet.Error{Code: "invalid_request", Message: err.Error()},
		})
		return
	}

	switch {
	case kind.Type == "cancel":
		var req fimlet.CancelRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			writeMessage(conn, &fimlet.AckResponse{
				Error: &fimlet.Error{Code: "invalid_request", Message: err.Error()},
			})
			return
		}
		s.handleCancelRequest(conn, &req)
	case kind.Type == "warm":
		s.handleWarmRequest(conn)
	case kind.Action != "":
		s.handleConfigRequest(conn, &fimlet.ConfigRequest{Action: kind.Action})
	default:
		s.handleCompletion(conn, raw)
	}
}

func (s *Server) handleCompletion(conn net.Conn, raw []byte) {
	var req fimlet.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid completion request", "error", err)
		writeMessage(conn, &fimlet.Response{
			Items: []fimlet.Item{},
			Error: &fimlet.Error{Code: "invalid_request", Message: err.Error()},
		})
		return
	}

	// A newer request for the same session does not cancel this one; only a
	// cancel message or the client hanging up does.
	ctx, cancel := context.WithCancel(context.Background())
	key := inflightKey{sessionID: req.SessionID, requestID: req.RequestID}
	entry := &inflightEntry{cancel: cancel}

	s.mu.Lock()
	s.inflight[key] = entry
	engine := s.engine
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.inflight[key] == entry {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
	}()

	// The client sends one line and keeps the connection open until the reply.
	// EOF, including a half-close of its write side, counts as hanging up.
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	resp := engine.Complete(ctx, &req)

	// If cancelled, skip writing; the client has already moved on.
	if ctx.Err() != nil {
		slog.Debug("request cancelled", "session", req.SessionID, "request_id", req.RequestID)
		return
	}

	resp.RequestID = req.RequestID
	writeMessage(conn, resp)
}

func (s *Server) handleCancelRequest(conn net.Conn, req *fimlet.CancelRequest) {
	resp := fimlet.AckResponse{OK: true}

	key := inflightKey{sessionID: req.SessionID, requestID: req.RequestID}
	s.mu.Lock()
	entry, ok := s.inflight[key]
	s.mu.Unlock()

	if ok {
		entry.cancel()
	} else {
		resp.OK = false
		resp.Error = &fimlet.Error{Code: "not_found", Message: "no in-flight request for this session and request_id"}
	}

	writeMessage(conn, &resp)
}

func (s *Server) handleWarmRequest(conn net.Conn) {
	engine := s.currentEngine()
	// Load in background; respond immediately
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		defer cancel()
		engine.Warm(ctx)
	}()

	writeMessage(conn, &fimlet.AckResponse{OK: true})
}

func (s *Server) handleConfigRequest(conn net.Conn, req *fimlet.ConfigRequest) {
	var resp fimlet.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := fimlet.LoadConfig()
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Config = cfg
		}

	case "reload":
		cfg, err := fimlet.LoadConfig()
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
			break
		}
		go s.reloadEngine()
		resp.Config = cfg

	case "defaults":
		resp.Config = fimlet.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := fimlet.LoadConfig()
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = fimlet.ValidateConfig(cfg)
		}

	default:
		resp.Error = &fimlet.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}

	writeMessage(conn, &resp)
}

// reloadEngine swaps in a freshly configured engine. Requests already past the
// debounce finish on the old one; requests still waiting on it come back empty.
func (s *Server) reloadEngine() {
	next := s.newEngine()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		next.Close()
		return
	}
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	slog.Info("engine reloaded")
}

func writeMessage(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
