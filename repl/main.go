// Command fimlet-repl is an interactive test REPL for fimlet completions.
// It uses raw terminal input to track the cursor natively, shows the suggestion
// as ghost text, and writes structured TOML results to stdout.
//
// Usage:
//
//	./fimlet-repl             # interactive, TOML on screen
//	./fimlet-repl > log.toml  # prompt on screen, TOML to file
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Paranoid-AF/fimlet/generate"
)

const prompt = "> "

func main() {
	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()
	sess := newSession()

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "fimlet repl (session %s)\r\n", sess.id)
	fmt.Fprintf(tty, "\r\nkeys:\r\n")
	fmt.Fprintf(tty, "  Enter         complete at the cursor\r\n")
	fmt.Fprintf(tty, "  Tab           accept the ghost text\r\n")
	fmt.Fprintf(tty, "  Ctrl-N        commit the line to the document\r\n")
	fmt.Fprintf(tty, "\r\ncommands:\r\n")
	fmt.Fprintf(tty, "  :file <name>  set the file name (and language)\r\n")
	fmt.Fprintf(tty, "  :lang <id>    set the language id\r\n")
	fmt.Fprintf(tty, "  :load <path>  load a file as the lines above the cursor\r\n")
	fmt.Fprintf(tty, "  :auto         toggle automatic (debounced) trigger\r\n")
	fmt.Fprintf(tty, "  :show         print the document\r\n")
	fmt.Fprintf(tty, "  :clear        empty the document\r\n")
	fmt.Fprintf(tty, "  :quit         exit\r\n\r\n")

	engine := generate.NewEngine()
	defer engine.Close()

	go engine.Warm(context.Background())

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)

	var (
		text  string
		col   int
		ghost string
	)

	for {
		line, err := editor.ReadLine(prompt, text, col, ghost)
		text, col, ghost = "", 0, ""
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		if line.Commit {
			sess.commit(line.Text)
			continue
		}

		if strings.HasPrefix(line.Text, ":") {
			msg, quit := sess.command(line.Text)
			if quit {
				break
			}
			if msg != "" {
				fmt.Fprintf(tty, "%s\r\n\r\n", strings.ReplaceAll(msg, "\n", "\r\n"))
			}
			continue
		}

		req := sess.request(line.Text, line.Column)
		result := engine.CompleteVerbose(context.Background(), req)
		resp := result.Response

		// Show brief summary on tty.
		switch {
		case resp.Error != nil:
			fmt.Fprintf(tty, "error [%s]: %s\r\n", resp.Error.Code, resp.Error.Message)
		case result.Skipped != nil:
			fmt.Fprintf(tty, "(skipped: %v)\r\n", result.Skipped)
		case len(resp.Items) == 0:
			fmt.Fprintf(tty, "(no suggestion)\r\n")
		default:
			cached := ""
			if result.Cached {
				cached = " [cached]"
			}
			fmt.Fprintf(tty, "  %s%s (%v)\r\n", strings.ReplaceAll(resp.Items[0].InsertText, "\n", "⏎"), cached, result.Elapsed.Round(time.Millisecond))
		}
		fmt.Fprintf(tty, "\r\n")

		// TOML output to stdout (crlfWriter handles raw mode).
		if err := writeEntry(out, req, result); err != nil {
			fmt.Fprintf(tty, "write error: %v\r\n", err)
		}

		// Offer the same line again with the suggestion as ghost text.
		text, col, ghost = line.Text, line.Offset, ghostText(resp)
	}
}
