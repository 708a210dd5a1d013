package output

import (
	"encoding/json"

	"migen/internal/generate"
	"migen/internal/migration"
)

type jsonFormatter struct{}

type resultSummary struct {
	Version    int `json:"version,omitempty"`
	Operations int `json:"operations"`
	Warnings   int `json:"warnings"`
}

type resultPayload struct {
	Format     string        `json:"format"`
	NoChanges  bool          `json:"noChanges"`
	Summary    resultSummary `json:"summary"`
	Path       string        `json:"path,omitempty"`
	Statements []string      `json:"statements,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

func (jsonFormatter) FormatResult(res *generate.Result) (string, error) {
	payload := resultPayload{
		Format:    string(FormatJSON),
		NoChanges: res.NoChanges,
		Warnings:  res.Warnings,
		Summary:   resultSummary{Warnings: len(res.Warnings)},
	}
	if res.File != nil {
		payload.Path = res.Path
		payload.Statements = migration.Statements(res.File.Operations)
		payload.Summary.Version = res.File.Version
		payload.Summary.Operations = len(res.File.Operations)
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
