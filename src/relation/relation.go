// Package relation evaluates the tiny relation-text grammar into an
// ordered list of data-file paths: a single named file, or the
// lexicographically-sorted expansion of a glob into a "union" whose rows
// are read back to back under one shared schema. The glob expansion is
// grounded on kokes/smda's database/loader.go LoadSampleData, which walks
// fs.Glob(sampleDir, "*") and opens each match in turn.
package relation

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes a single-file relation from a glob union.
type Kind uint8

const (
	// File names exactly one data file.
	File Kind = iota
	// Union names a glob pattern expanding to one or more data files.
	Union
)

// Relation is a parsed relation-text definition: a name bound to either a
// single file path or a glob pattern.
type Relation struct {
	Name    string
	Kind    Kind
	Path    string // for Kind == File
	Pattern string // for Kind == Union
}

// SyntaxError reports relation-text that does not match
// `NAME = file "PATH"` or `NAME = union 'GLOB'`.
type SyntaxError struct {
	Text string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("relation text: syntax error: %q", e.Text)
}

// Parse parses one line-oriented relation-text definition:
// `NAME = file "PATH"` or `NAME = union 'GLOB'`. Leading/trailing
// whitespace and a trailing newline are ignored; exactly one relation is
// expected.
func Parse(text string) (*Relation, error) {
	line := strings.TrimSpace(text)
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[1] != "=" {
		return nil, &SyntaxError{Text: text}
	}
	name := fields[0]
	kindToken := fields[2]
	quoted := fields[3]

	var wantQuote byte
	switch kindToken {
	case "file":
		wantQuote = '"'
	case "union":
		wantQuote = '\''
	default:
		return nil, &SyntaxError{Text: text}
	}
	value, err := unquote(quoted, wantQuote)
	if err != nil {
		return nil, &SyntaxError{Text: text}
	}

	if kindToken == "file" {
		return &Relation{Name: name, Kind: File, Path: value}, nil
	}
	return &Relation{Name: name, Kind: Union, Pattern: value}, nil
}

func unquote(s string, quote byte) (string, error) {
	if len(s) < 2 || s[0] != quote || s[len(s)-1] != quote {
		return "", fmt.Errorf("expected a value quoted with %q", string(quote))
	}
	inner := s[1 : len(s)-1]
	// reuse strconv's escape handling for the double-quoted form; the
	// single-quoted glob form carries no escapes, so round-trip it as-is.
	if quote == '"' {
		unescaped, err := strconv.Unquote(`"` + inner + `"`)
		if err != nil {
			return "", err
		}
		return unescaped, nil
	}
	return inner, nil
}

// Paths expands the relation into the ordered list of data-file paths it
// names: a single path for Kind == File, or the sorted glob matches for
// Kind == Union. An empty union match set yields an empty (nil) slice and
// no error.
func (rel *Relation) Paths() ([]string, error) {
	if rel.Kind == File {
		return []string{rel.Path}, nil
	}
	matches, err := filepath.Glob(rel.Pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
