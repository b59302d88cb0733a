package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/Paranoid-AF/fimlet/generate"
	"golang.org/x/term"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

type entry struct {
	Request requestEntry `toml:"request"`
	Context contextEntry `toml:"context"`
	Result  resultEntry  `toml:"result"`
	Error   *errorEntry  `toml:"error,omitempty"`
	Items   []itemEntry  `toml:"items,omitempty"`
}

type requestEntry struct {
	Timestamp  time.Time `toml:"timestamp"`
	RequestID  int       `toml:"request_id"`
	SessionID  string    `toml:"session_id"`
	FileName   string    `toml:"file_name"`
	LanguageID string    `toml:"language_id"`
	Trigger    string    `toml:"trigger_kind"`
	Line       int       `toml:"line"`
	Character  int       `toml:"character"`
}

type contextEntry struct {
	Before string `toml:"before"`
	After  string `toml:"after"`
	Prompt string `toml:"prompt,omitempty"`
}

type resultEntry struct {
	Cached    bool   `toml:"cached"`
	ElapsedMS int64  `toml:"elapsed_ms"`
	Skipped   string `toml:"skipped,omitempty"`
}

type errorEntry struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

type itemEntry struct {
	InsertText string `toml:"insert_text"`
	Line       int    `toml:"line"`
	Character  int    `toml:"character"`
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, req *fimlet.Request, result *generate.CompleteResult) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(newEntry(req, result, time.Now())); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func newEntry(req *fimlet.Request, result *generate.CompleteResult, now time.Time) entry {
	e := entry{
		Request: requestEntry{
			Timestamp:  now.Truncate(time.Second),
			RequestID:  req.RequestID,
			SessionID:  req.SessionID,
			FileName:   req.FileName,
			LanguageID: req.LanguageID,
			Trigger:    string(req.TriggerKind),
			Line:       req.Line,
			Character:  req.Character,
		},
		Context: contextEntry{
			Before: result.Context.Before,
			After:  result.Context.After,
			Prompt: result.Prompt,
		},
		Result: resultEntry{
			Cached:    result.Cached,
			ElapsedMS: result.Elapsed.Milliseconds(),
		},
	}
	if result.Skipped != nil {
		e.Result.Skipped = result.Skipped.Error()
	}

	resp := result.Response
	if resp == nil {
		return e
	}
	if resp.Error != nil {
		e.Error = &errorEntry{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	for _, item := range resp.Items {
		e.Items = append(e.Items, itemEntry{
			InsertText: item.InsertText,
			Line:       item.Range.Start.Line,
			Character:  item.Range.Start.Character,
		})
	}
	return e
}
