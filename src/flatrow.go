// Package flatrow is the external interface of the row-oriented binary
// flat-file codec: it ties together rowcodec's schema and row framing,
// stream's sequential Reader/Writer state machines, the schematext
// companion-file convention that carries a schema out of band, and the
// relation package's single-file/union expansion, into the
// Reader/Writer/Appender surface a caller actually opens a file with.
//
// Grounded on kokes/smda's Database type (src/dataset.go), which is
// likewise the thin top-level object gluing together the package's
// lower-level pieces (column, database) behind a handful of
// constructors.
package flatrow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kokes/flatrow/src/relation"
	"github.com/kokes/flatrow/src/rowcodec"
	"github.com/kokes/flatrow/src/schematext"
	"github.com/kokes/flatrow/src/stream"
)

// OpenError reports a failure to open a named file or relation.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %q: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// UnionSchemaMismatchError reports a file within a union relation whose
// schema differs from the union's first file.
type UnionSchemaMismatchError struct {
	File string
	Err  error
}

func (e *UnionSchemaMismatchError) Error() string {
	return fmt.Sprintf("union member %q: schema mismatch: %v", e.File, e.Err)
}

func (e *UnionSchemaMismatchError) Unwrap() error {
	return e.Err
}

// schemaCompanionPath returns the schema-text companion file for a data
// file: a data file's schema is known out-of-band or inferred from a
// companion schema-text file.
func schemaCompanionPath(dataPath string) string {
	return dataPath + ".schema"
}

func writeSchemaCompanion(dataPath string, schema *rowcodec.Schema) error {
	f, err := os.Create(schemaCompanionPath(dataPath))
	if err != nil {
		return err
	}
	defer f.Close()
	return schematext.Write(f, schema)
}

func readSchemaCompanion(dataPath string) (*rowcodec.Schema, error) {
	f, err := os.Open(schemaCompanionPath(dataPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return schematext.Parse(f)
}

// ReaderOptions configures OpenReader.
type ReaderOptions struct {
	// Filename is a data-file path, or a compound "reldef-path:data-path"
	// naming a file holding relation-text plus a data path used to
	// resolve that relation's file/glob argument (see resolveReldefAgainst).
	Filename string
	// Schema, if non-nil, is the expected schema; the file's own schema
	// (read from each member's schema-text companion) is validated
	// against it column by column.
	Schema *rowcodec.Schema
	// Reldef, if non-empty, is inline relation-text, taking precedence
	// over Filename's compound form.
	Reldef string
}

// Reader reads rows from one or more underlying data files under a
// single schema, presenting them as one continuous stream. A
// single-file relation is just a union of one.
type Reader struct {
	schema   *rowcodec.Schema
	paths    []string
	idx      int
	curFile  *os.File
	cur      *stream.Reader
	validate *rowcodec.Schema
}

// OpenReader opens opts.Filename (or opts.Reldef) and returns a Reader
// positioned before the first row of the first file.
func OpenReader(opts ReaderOptions) (*Reader, error) {
	paths, err := resolvePaths(opts.Filename, opts.Reldef)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &OpenError{Path: opts.Filename, Err: fmt.Errorf("relation expands to no files")}
	}

	rd := &Reader{paths: paths, validate: opts.Schema}
	if err := rd.openNext(); err != nil {
		return nil, err
	}
	// Every further union member's schema is checked now, so a mismatch
	// fails the open rather than surfacing part-way through reading.
	for _, path := range paths[1:] {
		memberSchema, err := readSchemaCompanion(path)
		if err != nil {
			rd.Close()
			return nil, &OpenError{Path: schemaCompanionPath(path), Err: err}
		}
		if err := memberSchema.Validate(rd.schema); err != nil {
			rd.Close()
			return nil, &UnionSchemaMismatchError{File: path, Err: err}
		}
	}
	return rd, nil
}

// resolvePaths turns a Filename/Reldef pair into the ordered list of
// data-file paths to read.
func resolvePaths(filename, reldef string) ([]string, error) {
	var rel *relation.Relation
	var err error

	switch {
	case reldef != "":
		rel, err = relation.Parse(reldef)
		if err != nil {
			return nil, &OpenError{Path: filename, Err: err}
		}
	case strings.Contains(filename, ":"):
		reldefPath, dataPath := splitCompound(filename)
		text, readErr := os.ReadFile(reldefPath)
		if readErr != nil {
			return nil, &OpenError{Path: reldefPath, Err: readErr}
		}
		rel, err = relation.Parse(string(text))
		if err != nil {
			return nil, &OpenError{Path: reldefPath, Err: err}
		}
		rel = resolveReldefAgainst(rel, dataPath)
	default:
		return []string{filename}, nil
	}

	paths, err := rel.Paths()
	if err != nil {
		return nil, &OpenError{Path: filename, Err: err}
	}
	return paths, nil
}

// splitCompound splits "reldef-path:data-path" on its first colon.
func splitCompound(filename string) (reldefPath, dataPath string) {
	i := strings.IndexByte(filename, ':')
	return filename[:i], filename[i+1:]
}

// resolveReldefAgainst applies the compound form's data-path component:
// for a "file" relation it replaces the declared path outright; for a
// "union" relation it is used as the base directory a relative glob
// pattern is resolved against. The compound form is named but its exact
// interaction with the relation body is left open; this resolution is
// recorded in DESIGN.md.
func resolveReldefAgainst(rel *relation.Relation, dataPath string) *relation.Relation {
	if dataPath == "" {
		return rel
	}
	out := *rel
	switch rel.Kind {
	case relation.File:
		out.Path = dataPath
	case relation.Union:
		if !filepath.IsAbs(rel.Pattern) {
			out.Pattern = filepath.Join(dataPath, rel.Pattern)
		}
	}
	return &out
}

// openNext opens rd.paths[rd.idx] as the current underlying file,
// validating its schema, and advances rd.idx.
func (rd *Reader) openNext() error {
	path := rd.paths[rd.idx]
	rd.idx++

	f, err := os.Open(path)
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}

	fileSchema, err := readSchemaCompanion(path)
	if err != nil {
		f.Close()
		return &OpenError{Path: schemaCompanionPath(path), Err: err}
	}

	if rd.schema == nil {
		if rd.validate != nil {
			if err := fileSchema.Validate(rd.validate); err != nil {
				f.Close()
				return err
			}
		}
		rd.schema = fileSchema
	} else if err := fileSchema.Validate(rd.schema); err != nil {
		f.Close()
		return &UnionSchemaMismatchError{File: path, Err: err}
	}

	rd.curFile = f
	rd.cur = stream.NewReader(f, rd.schema)
	return nil
}

// Schema returns the schema rows are read against, adopted from the
// first file's schema-text companion (or validated against the caller's
// supplied schema).
func (rd *Reader) Schema() *rowcodec.Schema {
	return rd.schema
}

// RowStart advances to the next row, transparently moving to the next
// file in a union relation on inner EOF. It returns (false, nil) once
// every file is exhausted.
func (rd *Reader) RowStart() (bool, error) {
	for {
		ok, err := rd.cur.RowStart()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if rd.idx >= len(rd.paths) {
			return false, nil
		}
		rd.curFile.Close()
		if err := rd.openNext(); err != nil {
			return false, err
		}
	}
}

func (rd *Reader) RowEnd() error                  { return rd.cur.RowEnd() }
func (rd *Reader) IsNull(i int) (bool, error)      { return rd.cur.IsNull(i) }
func (rd *Reader) GetU32(i int) (uint32, error)    { return rd.cur.GetU32(i) }
func (rd *Reader) GetU64(i int) (uint64, error)    { return rd.cur.GetU64(i) }
func (rd *Reader) GetString(i int) (string, error) { return rd.cur.GetString(i) }

// Close releases the currently-open underlying file, if any. It is
// idempotent.
func (rd *Reader) Close() error {
	if rd.curFile == nil {
		return nil
	}
	err := rd.curFile.Close()
	rd.curFile = nil
	return err
}

// WriterOptions configures OpenWriter.
type WriterOptions struct {
	Filename string
	Schema   *rowcodec.Schema
}

// Writer wraps a stream.Writer bound to a newly-created file, and writes
// a schema-text companion alongside it so a later Reader or Appender can
// discover the file's schema out of band.
type Writer struct {
	sw *stream.Writer
}

// OpenWriter creates opts.Filename (truncating any existing file) and
// returns a Writer for opts.Schema, which must already be finalized.
func OpenWriter(opts WriterOptions) (*Writer, error) {
	f, err := os.Create(opts.Filename)
	if err != nil {
		return nil, &OpenError{Path: opts.Filename, Err: err}
	}
	if err := writeSchemaCompanion(opts.Filename, opts.Schema); err != nil {
		f.Close()
		return nil, &OpenError{Path: schemaCompanionPath(opts.Filename), Err: err}
	}
	return &Writer{sw: stream.NewWriter(f, opts.Schema)}, nil
}

func (w *Writer) RowStart() error                { return w.sw.RowStart() }
func (w *Writer) RowEnd() error                  { return w.sw.RowEnd() }
func (w *Writer) SetU32(i int, v uint32) error    { return w.sw.SetU32(i, v) }
func (w *Writer) SetU64(i int, v uint64) error    { return w.sw.SetU64(i, v) }
func (w *Writer) SetString(i int, v string) error { return w.sw.SetString(i, v) }

func (w *Writer) WriteRow(values []interface{}) error            { return w.sw.WriteRow(values) }
func (w *Writer) WriteDict(values map[string]interface{}) error { return w.sw.WriteDict(values) }

// Close flushes and releases the underlying file. Idempotent.
func (w *Writer) Close() error {
	return w.sw.Close()
}

// Appender opens an existing, non-empty data file for append, validating
// its on-disk schema (read from its schema-text companion) against the
// caller's expected schema and positioning at end-of-file; if the file is
// absent or zero-length it behaves like OpenWriter. It also tracks how
// many rows it has appended this session, so CloseDiscardIfEmpty can
// delete a file that ended up with nothing written to it. Grounded on
// kokes/smda's open-existing-or-create-new branch pattern in
// database/loader.go's validateHeaderAgainstSchema call site, adapted
// from CSV header comparison to schema-text comparison.
type Appender struct {
	sw          *stream.Writer
	schema      *rowcodec.Schema
	path        string
	rowsWritten int
	created     bool
}

// OpenAppender opens opts.Filename for append (or creates it) against
// opts.Schema.
func OpenAppender(opts WriterOptions) (*Appender, error) {
	info, statErr := os.Stat(opts.Filename)
	exists := statErr == nil && info.Size() > 0

	if !exists {
		f, err := os.Create(opts.Filename)
		if err != nil {
			return nil, &OpenError{Path: opts.Filename, Err: err}
		}
		if err := writeSchemaCompanion(opts.Filename, opts.Schema); err != nil {
			f.Close()
			return nil, &OpenError{Path: schemaCompanionPath(opts.Filename), Err: err}
		}
		return &Appender{
			sw:      stream.NewWriter(f, opts.Schema),
			schema:  opts.Schema, path: opts.Filename, created: true,
		}, nil
	}

	onDisk, err := readSchemaCompanion(opts.Filename)
	if err != nil {
		return nil, &OpenError{Path: schemaCompanionPath(opts.Filename), Err: err}
	}
	if opts.Schema != nil {
		if err := onDisk.Validate(opts.Schema); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(opts.Filename, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &OpenError{Path: opts.Filename, Err: err}
	}
	return &Appender{sw: stream.NewWriter(f, onDisk), schema: onDisk, path: opts.Filename}, nil
}

// Schema returns the schema rows are written against.
func (a *Appender) Schema() *rowcodec.Schema {
	return a.schema
}

func (a *Appender) RowStart() error { return a.sw.RowStart() }

// RowEnd commits the staged row and counts it towards rowsWritten, so
// CloseDiscardIfEmpty can tell whether this session appended anything.
func (a *Appender) RowEnd() error {
	if err := a.sw.RowEnd(); err != nil {
		return err
	}
	a.rowsWritten++
	return nil
}

func (a *Appender) SetU32(i int, v uint32) error    { return a.sw.SetU32(i, v) }
func (a *Appender) SetU64(i int, v uint64) error    { return a.sw.SetU64(i, v) }
func (a *Appender) SetString(i int, v string) error { return a.sw.SetString(i, v) }

// WriteRow appends one row and counts it towards rowsWritten.
func (a *Appender) WriteRow(values []interface{}) error {
	if err := a.sw.WriteRow(values); err != nil {
		return err
	}
	a.rowsWritten++
	return nil
}

// WriteDict appends one row, keyed by column name, and counts it towards
// rowsWritten.
func (a *Appender) WriteDict(values map[string]interface{}) error {
	if err := a.sw.WriteDict(values); err != nil {
		return err
	}
	a.rowsWritten++
	return nil
}

// RowsWritten returns how many rows this Appender session has written
// (not the total row count of the file, which may have pre-existing rows
// from earlier sessions).
func (a *Appender) RowsWritten() int {
	return a.rowsWritten
}

// Close flushes and releases the underlying file. Idempotent.
func (a *Appender) Close() error {
	return a.sw.Close()
}

// CloseDiscardIfEmpty closes the appender and, if this session appended
// zero rows and created the file fresh, deletes both the data file and
// its schema-text companion.
func (a *Appender) CloseDiscardIfEmpty() error {
	if err := a.Close(); err != nil {
		return err
	}
	if a.rowsWritten > 0 || !a.created {
		return nil
	}
	if err := os.Remove(a.path); err != nil {
		return err
	}
	return os.Remove(schemaCompanionPath(a.path))
}
