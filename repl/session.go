package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/google/uuid"
)

// languageIDs maps file extensions to editor language identifiers.
var languageIDs = map[string]string{
	".c":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".go":   "go",
	".java": "java",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".lua":  "lua",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".sh":   "shellscript",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
}

// languageFor returns the language identifier for a file name, or "plaintext".
func languageFor(name string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(name))]; ok {
		return id
	}
	return "plaintext"
}

// session is the document being edited in the REPL: the committed lines above
// the line currently at the prompt.
type session struct {
	id         string
	fileName   string
	languageID string
	trigger    fimlet.TriggerKind
	lines      []string
	requestID  int
}

func newSession() *session {
	return &session{
		id:         uuid.NewString(),
		fileName:   "scratch.go",
		languageID: "go",
		trigger:    fimlet.TriggerInvoke,
	}
}

// request builds a completion request with the cursor on line at column col.
func (s *session) request(line string, col int) *fimlet.Request {
	s.requestID++
	text := strings.Join(append(append([]string{}, s.lines...), line), "\n")
	return &fimlet.Request{
		RequestID:   s.requestID,
		SessionID:   s.id,
		FileName:    s.fileName,
		LanguageID:  s.languageID,
		Text:        text,
		Line:        len(s.lines),
		Character:   col,
		TriggerKind: s.trigger,
	}
}

func (s *session) commit(line string) {
	s.lines = append(s.lines, line)
}

// load replaces the document with the contents of path.
func (s *session) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := strings.TrimSuffix(string(data), "\n")
	s.lines = strings.Split(text, "\n")
	s.fileName = path
	s.languageID = languageFor(path)
	return nil
}

// command runs a ":" command. It reports the message to show and whether the
// REPL should exit.
func (s *session) command(text string) (msg string, quit bool) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "q", "quit":
		return "", true

	case "file":
		if arg == "" {
			return "usage: :file <name>", false
		}
		s.fileName = arg
		s.languageID = languageFor(arg)
		return fmt.Sprintf("file: %s (%s)", s.fileName, s.languageID), false

	case "lang":
		if arg == "" {
			return "usage: :lang <id>", false
		}
		s.languageID = arg
		return "language: " + arg, false

	case "load":
		if err := s.load(arg); err != nil {
			return "error: " + err.Error(), false
		}
		return fmt.Sprintf("loaded %d lines from %s (%s)", len(s.lines), s.fileName, s.languageID), false

	case "auto":
		if s.trigger == fimlet.TriggerAutomatic {
			s.trigger = fimlet.TriggerInvoke
		} else {
			s.trigger = fimlet.TriggerAutomatic
		}
		return "trigger: " + string(s.trigger), false

	case "show":
		var b strings.Builder
		for i, l := range s.lines {
			fmt.Fprintf(&b, "%4d  %s\n", i, l)
		}
		if b.Len() == 0 {
			return "(empty document)", false
		}
		return strings.TrimSuffix(b.String(), "\n"), false

	case "clear":
		s.lines = nil
		return "document cleared", false
	}

	return "unknown command: :" + name, false
}

// ghostText is the part of a suggestion shown inline: its first line.
func ghostText(resp *fimlet.Response) string {
	if resp == nil || len(resp.Items) == 0 {
		return ""
	}
	first, _, _ := strings.Cut(resp.Items[0].InsertText, "\n")
	return strings.TrimSuffix(first, "\r")
}
