// Package defaults provides embedded default assets (prompt template and config).
package defaults

import _ "embed"

// DefaultPrompt is the fill-in-the-middle template. It has no trailing newline
// because everything after <|fim_middle|> would be read as generated text.
//
//go:embed default_prompt.tmpl
var DefaultPrompt string

//go:embed default_config.toml
var DefaultConfigTOML []byte
