// Package history reconstructs the ordered operation stream encoded by
// previously generated migration files. The file history is the durable
// source of truth: no live database is consulted. Only generator-authored
// filenames are visible; hand-written migrations outside the naming
// convention are ignored by design.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"migen/internal/core"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// fileRe matches generator-authored filenames: UTC timestamp prefix,
// zero-padded version suffix.
var fileRe = regexp.MustCompile(`^(\d{14})_(\d{6})\.sql$`)

// File is one discovered migration file with its Up statements split out.
type File struct {
	Path       string
	Version    int
	Statements []string
}

// History is the replayable result of reading a migration directory.
type History struct {
	Files       []*File
	Operations  []core.Operation
	LastVersion int

	// Warnings collects non-fatal conditions: unrecognized statement shapes,
	// files without an Up section, version gaps. The caller decides how to
	// surface them; generation always proceeds.
	Warnings []string
}

// Load reads and parses every generated migration under dir, in filename
// (timestamp) order. A missing directory is an empty history, not an error.
// Non-increasing versions are fatal; everything unparseable is a warning.
func Load(dir string) (*History, error) {
	files, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}

	h := &History{Files: files}
	for _, f := range files {
		if f.Version <= h.LastVersion {
			return nil, fmt.Errorf("history: %s: version %d does not increase over %d (corrupt or reordered history)",
				filepath.Base(f.Path), f.Version, h.LastVersion)
		}
		if h.LastVersion != 0 && f.Version != h.LastVersion+1 {
			h.Warnings = append(h.Warnings, fmt.Sprintf("%s: version gap: %d follows %d",
				filepath.Base(f.Path), f.Version, h.LastVersion))
		}
		h.LastVersion = f.Version

		if len(f.Statements) == 0 {
			h.Warnings = append(h.Warnings, fmt.Sprintf("%s: no statements in Up section; skipped", filepath.Base(f.Path)))
			continue
		}
		for _, stmt := range f.Statements {
			op, err := ParseStatement(stmt)
			if err != nil {
				h.Warnings = append(h.Warnings, fmt.Sprintf("%s: unrecognized statement skipped: %v", filepath.Base(f.Path), err))
				continue
			}
			h.Operations = append(h.Operations, op)
		}
	}

	return h, nil
}

// ReadDir discovers generated migration files under dir and splits each into
// Up statements. Files whose section structure cannot be read yield zero
// statements rather than failing discovery.
func ReadDir(dir string) ([]*File, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !fileRe.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]*File, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// ReadFile reads a single generated migration file.
func ReadFile(path string) (*File, error) {
	name := filepath.Base(path)
	m := fileRe.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("history: %q is not a generated migration filename", name)
	}
	version, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("history: %s: bad version: %w", name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", name, err)
	}

	return &File{
		Path:       path,
		Version:    version,
		Statements: splitStatements(upSection(string(data))),
	}, nil
}

// upSection extracts the body between the Up and Down markers. A file
// without an Up marker yields an empty body.
func upSection(content string) string {
	_, after, found := strings.Cut(content, upMarker)
	if !found {
		return ""
	}
	before, _, _ := strings.Cut(after, downMarker)
	return before
}

// splitStatements splits an Up body on semicolons outside single-quoted
// strings, dropping comment lines.
func splitStatements(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	joined := strings.Join(lines, "\n")

	var stmts []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(joined); i++ {
		ch := joined[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			current.WriteByte(ch)
		case ch == ';' && !inQuote:
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
