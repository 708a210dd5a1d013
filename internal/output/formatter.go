// Package output provides formatters for generator results. It is
// extendable and for now provides two formats: human and JSON.
package output

import (
	"fmt"
	"strings"

	"migen/internal/generate"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// Formatter renders a generator result for the user.
type Formatter interface {
	FormatResult(*generate.Result) (string, error)
}

// NewFormatter creates a Formatter for the given name. An empty name
// defaults to human output.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatHuman:
		return humanFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'human' or 'json'", name)
	}
}
