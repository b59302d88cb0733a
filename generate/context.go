package generate

import (
	"strings"

	fimlet "github.com/Paranoid-AF/fimlet"
)

// Document is an immutable snapshot of an editor buffer.
type Document struct {
	FileName   string
	LanguageID string
	Text       string
}

// CursorContext is the bounded window of text around the cursor.
type CursorContext struct {
	// Before is the file header followed by the lines above the cursor and the
	// cursor line up to the cursor column.
	Before string
	// After is the cursor line from the cursor column followed by the lines below.
	After string
}

// ExtractContext derives the prefix/suffix window for pos.
// At most prefixLines lines above and suffixLines lines below the cursor line are
// included. Out-of-range positions are clamped into the document.
func ExtractContext(doc Document, pos fimlet.Position, prefixLines, suffixLines int) CursorContext {
	lines := strings.Split(doc.Text, "\n")
	last := len(lines) - 1

	line := min(max(pos.Line, 0), last)
	cur := []rune(lineContent(lines[line]))
	col := min(max(pos.Character, 0), len(cur))

	start := max(0, line-max(prefixLines, 0))
	end := min(last, line+max(suffixLines, 0))

	var before strings.Builder
	before.WriteString(fileHeader(doc))
	for i := start; i < line; i++ {
		before.WriteString(lines[i])
		before.WriteByte('\n')
	}
	before.WriteString(string(cur[:col]))

	var after strings.Builder
	if end == line {
		after.WriteString(string(cur[col:]))
	} else {
		// Keep the line terminator (including any \r) of every line but the last.
		after.WriteString(string([]rune(lines[line])[col:]))
		for i := line + 1; i < end; i++ {
			after.WriteByte('\n')
			after.WriteString(lines[i])
		}
		after.WriteByte('\n')
		after.WriteString(lineContent(lines[end]))
	}

	return CursorContext{Before: before.String(), After: after.String()}
}

// lineContent strips the carriage return of a CRLF line.
func lineContent(line string) string {
	return strings.TrimSuffix(line, "\r")
}

// fileHeader names the file (last path segment only) and the language.
func fileHeader(doc Document) string {
	name := doc.FileName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return "// file: " + name + "\n// language: " + doc.LanguageID + "\n\n"
}
