package rowcodec

import (
	"fmt"
	"sort"

	"github.com/kokes/flatrow/src/bitmap"
	"github.com/kokes/flatrow/src/compression"
)

// DuplicateColumnError reports a repeated column name passed to AddColumn.
type DuplicateColumnError struct {
	Name string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("duplicate column: %q", e.Name)
}

// CompressionOnNonStringError reports a non-none compression requested for
// a non-string column.
type CompressionOnNonStringError struct {
	Column string
}

func (e *CompressionOnNonStringError) Error() string {
	return fmt.Sprintf("column %q: compression only applies to string columns", e.Column)
}

// Column describes one column of a Schema: its name, wire type, whether it
// may be absent from a given row, an opaque caller tag, and (for string
// columns) its payload compression.
type Column struct {
	Name        string
	Type        ColumnType
	Nullable    bool
	Meaning     string
	Compression compression.Kind

	// FixedOffset is the byte offset of this column's slot within the
	// fixed area of a row in which every column is present, valid only
	// once the owning Schema is finalized. Absent columns take no bytes,
	// so in other rows the slot sits earlier.
	FixedOffset int
}

// Schema is an ordered, immutable-once-finalized sequence of Columns plus
// a file-level checksum choice. Mirrors kokes/smda's column.Schema, widened
// from a single-column descriptor to an ordered sequence, and given an
// add/finalize builder lifecycle instead of smda's all-at-once struct
// literal construction.
type Schema struct {
	columns   []Column
	byName    map[string]int
	checksum  ChecksumKind
	reorder   bool
	finalized bool

	headerWidth int
}

// NewSchema returns an empty, mutable Schema.
func NewSchema() *Schema {
	return &Schema{byName: make(map[string]int)}
}

// AddColumn appends a column to the schema. It fails with
// *DuplicateColumnError if name is already present, and with
// *CompressionOnNonStringError if a non-none compression is requested for
// a non-string column. It panics if called after Finalize, mirroring
// smda's "Schema" immutability-after-use contract: mutation is not
// permitted once the schema has been finalized.
func (s *Schema) AddColumn(name string, typ ColumnType, nullable bool, meaning string, comp compression.Kind) error {
	if s.finalized {
		panic("rowcodec: AddColumn called on a finalized schema")
	}
	if _, ok := s.byName[name]; ok {
		return &DuplicateColumnError{Name: name}
	}
	if comp != compression.None && typ != TypeString {
		return &CompressionOnNonStringError{Column: name}
	}
	s.byName[name] = len(s.columns)
	s.columns = append(s.columns, Column{
		Name:        name,
		Type:        typ,
		Nullable:    nullable,
		Meaning:     meaning,
		Compression: comp,
	})
	return nil
}

// SetChecksum sets the row-frame tail checksum algorithm.
func (s *Schema) SetChecksum(kind ChecksumKind) {
	if s.finalized {
		panic("rowcodec: SetChecksum called on a finalized schema")
	}
	s.checksum = kind
}

// SetReorder marks the schema for the deprecated non-string-before-string
// reordering at Finalize time. New code must not call this; it exists
// only so files written with the legacy layout can still be matched by a
// caller-supplied expected schema built the same deprecated way.
func (s *Schema) SetReorder() {
	if s.finalized {
		panic("rowcodec: SetReorder called on a finalized schema")
	}
	s.reorder = true
}

// Finalize computes each column's FixedOffset and the on-disk header
// width, then freezes the schema against further mutation. If reorder is
// true (deprecated, defaults to false, see SetReorder), non-string
// columns sorted by name are placed before string columns sorted by
// name, matching original_source/oldpy/flatfile/metadata.py's finalize.
func (s *Schema) Finalize() {
	if s.finalized {
		return
	}
	if s.reorder {
		nonstrings := make([]Column, 0, len(s.columns))
		strings_ := make([]Column, 0, len(s.columns))
		for _, c := range s.columns {
			if c.Type == TypeString {
				strings_ = append(strings_, c)
			} else {
				nonstrings = append(nonstrings, c)
			}
		}
		sort.Slice(nonstrings, func(i, j int) bool { return nonstrings[i].Name < nonstrings[j].Name })
		sort.Slice(strings_, func(i, j int) bool { return strings_[i].Name < strings_[j].Name })
		s.columns = append(nonstrings, strings_...)
		s.byName = make(map[string]int, len(s.columns))
		for i, c := range s.columns {
			s.byName[c.Name] = i
		}
	}

	offset := 0
	for i := range s.columns {
		s.columns[i].FixedOffset = offset
		offset += s.columns[i].Type.fixedWidth()
	}

	s.headerWidth = bitmap.HeaderWidth(len(s.columns))
	s.finalized = true
}

// ColumnCount returns the number of columns in the schema.
func (s *Schema) ColumnCount() int {
	return len(s.columns)
}

// Column returns the ith column, in schema order.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Columns returns a copy of the schema's columns, in schema order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Find returns the index of the column named name, or -1 if absent.
func (s *Schema) Find(name string) int {
	if idx, ok := s.byName[name]; ok {
		return idx
	}
	return -1
}

// Checksum returns the schema's checksum kind.
func (s *Schema) Checksum() ChecksumKind {
	return s.checksum
}

// HeaderWidth returns the on-disk byte width of the per-row presence
// header. Valid only once Finalize has run.
func (s *Schema) HeaderWidth() int {
	return s.headerWidth
}

// fixedAreaSize returns the total fixed-area bytes a row occupies when
// every column is present.
func (s *Schema) fixedAreaSize() int {
	total := 0
	for _, c := range s.columns {
		total += c.Type.fixedWidth()
	}
	return total
}

// SchemaMismatchError reports that a file's on-disk schema differs from a
// caller-supplied expected schema, naming the first differing position
// and reason.
type SchemaMismatchError struct {
	Reason string // one of "length", "name", "type", "nullable"
	Index  int
	Want   string
	Got    string
}

func (e *SchemaMismatchError) Error() string {
	if e.Reason == "length" {
		return fmt.Sprintf("schema mismatch: length differs (want %s, got %s)", e.Want, e.Got)
	}
	return fmt.Sprintf("schema mismatch at column %d: %s differs (want %s, got %s)", e.Index, e.Reason, e.Want, e.Got)
}

// Validate compares s (the file's own schema) against expected, failing
// with *SchemaMismatchError at the first differing position: length,
// then name/type/nullable column by column, matching the comparison order
// in original_source/py/flatfile/__init__.py's Reader._open.
func (s *Schema) Validate(expected *Schema) error {
	if len(s.columns) != len(expected.columns) {
		return &SchemaMismatchError{
			Reason: "length",
			Want:   fmt.Sprintf("%d", len(expected.columns)),
			Got:    fmt.Sprintf("%d", len(s.columns)),
		}
	}
	for i := range s.columns {
		got, want := s.columns[i], expected.columns[i]
		if got.Name != want.Name {
			return &SchemaMismatchError{Reason: "name", Index: i, Want: want.Name, Got: got.Name}
		}
		if got.Type != want.Type {
			return &SchemaMismatchError{Reason: "type", Index: i, Want: want.Type.String(), Got: got.Type.String()}
		}
		if got.Nullable != want.Nullable {
			return &SchemaMismatchError{
				Reason: "nullable", Index: i,
				Want: fmt.Sprintf("%v", want.Nullable), Got: fmt.Sprintf("%v", got.Nullable),
			}
		}
	}
	return nil
}
