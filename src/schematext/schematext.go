// Package schematext parses the small line-oriented textual schema
// description into a *rowcodec.Schema: one "column"/"checksum"/"reorder"
// directive per line, comments and blank lines skipped. Grounded on
// kokes/smda's database/loader.go tsvReader, which drives a
// bufio.Scanner line-by-line and splits each line on a single
// delimiter; this package generalises that shape from "split on tab" to
// "trim comment, trim space, split on single space, dispatch on first
// token".
package schematext

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kokes/flatrow/src/compression"
	"github.com/kokes/flatrow/src/rowcodec"
)

// SchemaSyntaxError reports a line that could not be parsed, carrying its
// 1-based line number.
type SchemaSyntaxError struct {
	Line int
	Text string
}

func (e *SchemaSyntaxError) Error() string {
	return fmt.Sprintf("schema text: syntax error at line %d: %q", e.Line, e.Text)
}

// Parse reads schema-text from r and returns the finalized Schema it
// describes. Each line is processed independently:
//
//	column NAME TYPE [MEANING [COMPRESSION]]
//	checksum KIND
//	reorder
//
// A trailing "#" and everything after it is a comment; blank lines
// (after comment-stripping) are skipped. MEANING of "_" is the same as
// omitting it. Any other first token is a *SchemaSyntaxError.
func Parse(r io.Reader) (*rowcodec.Schema, error) {
	schema := rowcodec.NewSchema()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		switch fields[0] {
		case "column":
			if err := parseColumn(schema, lineNo, fields[1:]); err != nil {
				return nil, err
			}
		case "checksum":
			if len(fields) != 2 {
				return nil, &SchemaSyntaxError{Line: lineNo, Text: line}
			}
			kind, err := rowcodec.ParseChecksumKind(fields[1])
			if err != nil {
				return nil, err
			}
			schema.SetChecksum(kind)
		case "reorder":
			if len(fields) != 1 {
				return nil, &SchemaSyntaxError{Line: lineNo, Text: line}
			}
			schema.SetReorder()
		default:
			return nil, &SchemaSyntaxError{Line: lineNo, Text: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	schema.Finalize()
	return schema, nil
}

// parseColumn adds a column from its "column" line fields. The
// schema-text grammar, confirmed against
// original_source/oldpy/flatfile/parser.py's metadata_parse, carries no
// nullable token at all; every column declared through schema-text is
// nullable; a non-nullable column can only be built through the
// programmatic rowcodec.Schema.AddColumn API.
func parseColumn(schema *rowcodec.Schema, lineNo int, fields []string) error {
	if len(fields) < 2 || len(fields) > 4 {
		return &SchemaSyntaxError{Line: lineNo, Text: "column " + strings.Join(fields, " ")}
	}
	name := fields[0]
	typ, err := rowcodec.ParseColumnType(fields[1])
	if err != nil {
		return err
	}
	meaning := ""
	if len(fields) >= 3 && fields[2] != "_" {
		meaning = fields[2]
	}
	comp := compression.None
	if len(fields) == 4 {
		comp, err = compression.Parse(fields[3])
		if err != nil {
			return err
		}
	}
	return schema.AddColumn(name, typ, true, meaning, comp)
}

// Write renders schema as schema-text, the inverse of Parse. Columns are
// emitted in the finalized schema order (after any reorder), and no
// "reorder" line is written: FixedOffset is not round-tripped, since it is
// re-derived by Finalize on the next Parse. Non-nullable columns have no schema-text token (the
// grammar has none, per parseColumn above) and round-trip as nullable;
// callers that need to preserve non-nullable columns must build the
// Schema through the programmatic API instead.
func Write(w io.Writer, schema *rowcodec.Schema) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < schema.ColumnCount(); i++ {
		col := schema.Column(i)
		typeToken := col.Type.String()
		meaning := col.Meaning
		if meaning == "" {
			meaning = "_"
		}
		if col.Compression != compression.None {
			if _, err := fmt.Fprintf(bw, "column %s %s %s %s\n", col.Name, typeToken, meaning, col.Compression); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(bw, "column %s %s %s\n", col.Name, typeToken, meaning); err != nil {
				return err
			}
		}
	}
	if schema.Checksum() != rowcodec.ChecksumNone {
		if _, err := fmt.Fprintf(bw, "checksum %s\n", schema.Checksum()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
