// Package fimlet defines the request/response types for fimlet IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package fimlet

// TriggerKind describes why the editor asked for a completion.
type TriggerKind string

const (
	// TriggerInvoke is an explicit user request (e.g. a keybinding). It bypasses the debounce delay.
	TriggerInvoke TriggerKind = "invoke"
	// TriggerAutomatic is a completion requested while typing.
	TriggerAutomatic TriggerKind = "automatic"
)

// Explicit reports whether the trigger bypasses debouncing.
// Anything other than TriggerInvoke, including an empty value, is treated as automatic.
func (k TriggerKind) Explicit() bool {
	return k == TriggerInvoke
}

// Position is a zero-based line/character location in a document.
// Character counts Unicode code points within the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions. An empty range (Start == End) is a pure insertion point.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Request is sent from the editor plugin to the daemon.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the editor.
	// The daemon echoes it back in the response and uses it to address cancellations.
	RequestID int `json:"request_id"`
	// SessionID identifies the editor session. Each session owns one debounce gate.
	SessionID string `json:"session_id"`
	// FileName is the document path; only its last segment reaches the prompt.
	FileName string `json:"file_name"`
	// LanguageID is the editor's language identifier (e.g. "go", "typescript").
	LanguageID string `json:"language_id"`
	// Text is the full document snapshot.
	Text string `json:"text"`
	// Line and Character locate the cursor.
	Line      int `json:"line"`
	Character int `json:"character"`
	// TriggerKind is "invoke" or "automatic".
	TriggerKind TriggerKind `json:"trigger_kind"`
}

// Position returns the cursor position of the request.
func (r *Request) Position() Position {
	return Position{Line: r.Line, Character: r.Character}
}

// Item is a single inline completion.
type Item struct {
	// InsertText is the raw suggestion returned by the model, untrimmed.
	InsertText string `json:"insert_text"`
	// Range is where the text is inserted. It is always empty (start == end) at the request position.
	Range Range `json:"range"`
}

// Response is sent from the daemon back to the editor plugin.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Items holds zero or one completion.
	Items []Item `json:"items"`
	// Error is set when the daemon cannot serve completions at all.
	// Completion failures (network, status, parsing, cancellation) never set it.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor plugin.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "not_configured", "invalid_request").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// CancelRequest asks the daemon to abort an in-flight completion request.
type CancelRequest struct {
	// Type is always "cancel".
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	RequestID int    `json:"request_id"`
}

// WarmRequest asks the daemon to load the model on the inference server ahead of the first completion.
type WarmRequest struct {
	// Type is always "warm".
	Type string `json:"type"`
}

// AckResponse answers CancelRequest and WarmRequest.
type AckResponse struct {
	// OK is true when the request was accepted.
	OK bool `json:"ok"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}

// ConfigRequest is sent from the client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default prompt template (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
