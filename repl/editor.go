package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Line is the result of one ReadLine call.
type Line struct {
	Text string
	// Column is the cursor position in Unicode code points.
	Column int
	// Offset is the cursor byte offset into Text.
	Offset int
	// Commit is set when the line was finished with Ctrl-N instead of Enter.
	Commit bool
}

// Editor is a minimal line editor with cursor tracking and ghost text.
// It reads from /dev/tty so it works even when stdout is redirected.
type Editor struct {
	tty      *os.File
	oldState *term.State
	buf      []byte
	pos      int // cursor byte offset into buf
	ghost    string
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{tty: tty, oldState: old}, nil
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the tty file for writing prompts/UI.
func (e *Editor) Tty() *os.File {
	return e.tty
}

// ReadLine displays the prompt and reads a line starting from initial, with the
// cursor at byte offset col of initial. ghost is shown dimmed at the cursor
// until Tab accepts it or any other key dismisses it.
// Returns io.EOF when the user presses Ctrl-D on empty input.
func (e *Editor) ReadLine(prompt, initial string, col int, ghost string) (Line, error) {
	e.buf = append(e.buf[:0], initial...)
	e.pos = min(max(col, 0), len(e.buf))
	e.ghost = ghost
	e.redraw(prompt)

	var esc [8]byte // buffer for escape sequences

	for {
		var b [1]byte
		_, err := e.tty.Read(b[:])
		if err != nil {
			return Line{}, err
		}

		if b[0] == 9 { // Tab accepts the ghost text
			if e.ghost != "" {
				e.insert([]byte(e.ghost))
				e.ghost = ""
			}
			e.redraw(prompt)
			continue
		}
		e.ghost = ""

		switch b[0] {
		case 3: // Ctrl-C
			fmt.Fprintf(e.tty, "\r\n")
			return Line{}, ErrInterrupt

		case 4: // Ctrl-D
			if len(e.buf) == 0 {
				fmt.Fprintf(e.tty, "\r\n")
				return Line{}, io.EOF
			}

		case 13, 10: // Enter
			fmt.Fprintf(e.tty, "\r\n")
			return e.line(false), nil

		case 14: // Ctrl-N
			fmt.Fprintf(e.tty, "\r\n")
			return e.line(true), nil

		case 127, 8: // Backspace / Ctrl-H
			if e.pos > 0 {
				_, size := prevRune(e.buf, e.pos)
				copy(e.buf[e.pos-size:], e.buf[e.pos:])
				e.buf = e.buf[:len(e.buf)-size]
				e.pos -= size
			}

		case 1: // Ctrl-A (Home)
			e.pos = 0

		case 5: // Ctrl-E (End)
			e.pos = len(e.buf)

		case 21: // Ctrl-U (clear line)
			e.buf = e.buf[:0]
			e.pos = 0

		case 27: // Escape sequence
			n, _ := e.tty.Read(esc[:1])
			if n == 0 || esc[0] != '[' {
				break
			}
			n, _ = e.tty.Read(esc[1:2])
			if n == 0 {
				break
			}
			switch esc[1] {
			case 'D': // Left
				if e.pos > 0 {
					_, size := prevRune(e.buf, e.pos)
					e.pos -= size
				}
			case 'C': // Right
				if e.pos < len(e.buf) {
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					e.pos += size
				}
			case 'H': // Home
				e.pos = 0
			case 'F': // End
				e.pos = len(e.buf)
			case '3': // Delete key: \x1b[3~
				e.tty.Read(esc[2:3]) // consume '~'
				if e.pos < len(e.buf) {
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					copy(e.buf[e.pos:], e.buf[e.pos+size:])
					e.buf = e.buf[:len(e.buf)-size]
				}
			case '1': // Home: \x1b[1~
				e.tty.Read(esc[2:3])
				e.pos = 0
			case '4': // End: \x1b[4~
				e.tty.Read(esc[2:3])
				e.pos = len(e.buf)
			}

		default: // Printable character
			if b[0] >= 32 {
				ch := []byte{b[0]}
				if b[0] >= 0xC0 {
					tmp := make([]byte, utf8RuneLen(b[0])-1)
					e.tty.Read(tmp)
					ch = append(ch, tmp...)
				}
				e.insert(ch)
			}
		}

		e.redraw(prompt)
	}
}

func (e *Editor) line(commit bool) Line {
	return Line{
		Text:   string(e.buf),
		Column: utf8.RuneCount(e.buf[:e.pos]),
		Offset: e.pos,
		Commit: commit,
	}
}

// insert places p at the cursor and moves the cursor past it.
func (e *Editor) insert(p []byte) {
	e.buf = append(e.buf, make([]byte, len(p))...)
	copy(e.buf[e.pos+len(p):], e.buf[e.pos:len(e.buf)-len(p)])
	copy(e.buf[e.pos:], p)
	e.pos += len(p)
}

// redraw clears the current line and redraws prompt, buffer and ghost text,
// leaving the terminal cursor at the edit position.
func (e *Editor) redraw(prompt string) {
	// \r = carriage return, \x1b[K = clear to end of line, \x1b[2m = dim
	fmt.Fprintf(e.tty, "\r\x1b[K%s%s", prompt, string(e.buf[:e.pos]))
	if e.ghost != "" {
		fmt.Fprintf(e.tty, "\x1b[2m%s\x1b[0m", e.ghost)
	}
	fmt.Fprint(e.tty, string(e.buf[e.pos:]))

	back := utf8.RuneCountInString(e.ghost) + utf8.RuneCount(e.buf[e.pos:])
	if back > 0 {
		fmt.Fprintf(e.tty, "\x1b[%dD", back)
	}
}

// prevRune returns the rune and byte size of the rune before pos.
func prevRune(buf []byte, pos int) (rune, int) {
	if pos <= 0 {
		return 0, 0
	}
	// Walk back to find the start of the rune
	i := pos - 1
	for i > 0 && !utf8.RuneStart(buf[i]) {
		i--
	}
	return utf8.DecodeRune(buf[i:pos])
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	}
	return 4
}
