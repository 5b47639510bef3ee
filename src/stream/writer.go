// Package stream implements the sequential, state-machine-driven writer
// and reader that sit on top of rowcodec's row framing: a Writer walks
// Idle → InRow → Idle via RowStart/RowEnd, buffering one row in memory
// at a time so a dropped or aborted row never leaves partial bytes in
// the underlying file. This single-row buffering discipline mirrors
// kokes/smda's database/loader.go, which always builds a complete
// in-memory stripe before it ever touches the output file.
package stream

import (
	"fmt"
	"io"

	"github.com/kokes/flatrow/src/rowcodec"
)

type writerState uint8

const (
	stateIdle writerState = iota
	stateInRow
)

// WriterStateError reports a Writer method called out of sequence, e.g.
// RowStart called twice without an intervening RowEnd.
type WriterStateError struct {
	Op    string
	State string
}

func (e *WriterStateError) Error() string {
	return fmt.Sprintf("stream writer: %s called while %s", e.Op, e.State)
}

func (s writerState) String() string {
	if s == stateInRow {
		return "in a row"
	}
	return "idle"
}

// Writer emits a sequence of rows to an underlying io.Writer, one row at
// a time.
type Writer struct {
	w       io.WriteCloser
	schema  *rowcodec.Schema
	builder *rowcodec.RowBuilder
	state   writerState
	closed  bool
}

// NewWriter returns a Writer that appends row frames for schema (which
// must already be finalized) to w.
func NewWriter(w io.WriteCloser, schema *rowcodec.Schema) *Writer {
	return &Writer{
		w:       w,
		schema:  schema,
		builder: rowcodec.NewRowBuilder(schema),
	}
}

// RowStart transitions Idle → InRow. It fails with *WriterStateError if
// the writer is already mid-row.
func (wr *Writer) RowStart() error {
	if wr.state != stateIdle {
		return &WriterStateError{Op: "RowStart", State: wr.state.String()}
	}
	wr.builder.Reset()
	wr.state = stateInRow
	return nil
}

func (wr *Writer) requireInRow(op string) error {
	if wr.state != stateInRow {
		return &WriterStateError{Op: op, State: wr.state.String()}
	}
	return nil
}

// SetU32 stages v for column i of the row currently in progress.
func (wr *Writer) SetU32(i int, v uint32) error {
	if err := wr.requireInRow("SetU32"); err != nil {
		return err
	}
	wr.builder.SetU32(i, v)
	return nil
}

// SetU64 stages v for column i of the row currently in progress.
func (wr *Writer) SetU64(i int, v uint64) error {
	if err := wr.requireInRow("SetU64"); err != nil {
		return err
	}
	wr.builder.SetU64(i, v)
	return nil
}

// SetString stages v for column i of the row currently in progress.
func (wr *Writer) SetString(i int, v string) error {
	if err := wr.requireInRow("SetString"); err != nil {
		return err
	}
	wr.builder.SetString(i, v)
	return nil
}

// RowEnd validates the staged row against the schema, frames it, and
// flushes it to the underlying writer, transitioning InRow → Idle. On
// any failure the row is discarded: nothing from it reaches the
// underlying stream, the staged values are cleared, and the writer
// returns to Idle so a fresh RowStart can begin the next row.
func (wr *Writer) RowEnd() error {
	if err := wr.requireInRow("RowEnd"); err != nil {
		return err
	}
	frame, err := wr.builder.Encode()
	if err != nil {
		wr.builder.Reset()
		wr.state = stateIdle
		return err
	}
	if _, err := wr.w.Write(frame); err != nil {
		wr.builder.Reset()
		wr.state = stateIdle
		return err
	}
	wr.state = stateIdle
	return nil
}

// UnknownColumnError reports a WriteDict key absent from the schema.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column: %q", e.Name)
}

// WriteRow is a convenience wrapper around RowStart/Set*/RowEnd:
// values[i] is assigned to column i in schema order; a nil entry (or an
// index past the end of values) leaves that column's slot unset.
// Supported value types are uint32, uint64, string, and nil.
func (wr *Writer) WriteRow(values []interface{}) error {
	if err := wr.RowStart(); err != nil {
		return err
	}
	for i := 0; i < wr.schema.ColumnCount() && i < len(values); i++ {
		if values[i] == nil {
			continue
		}
		if err := wr.setValue(i, values[i]); err != nil {
			return err
		}
	}
	return wr.RowEnd()
}

// WriteDict is a convenience wrapper around RowStart/Set*/RowEnd, keyed
// by column name rather than position. A key absent from the schema
// fails with *UnknownColumnError.
func (wr *Writer) WriteDict(values map[string]interface{}) error {
	if err := wr.RowStart(); err != nil {
		return err
	}
	for name, v := range values {
		if v == nil {
			continue
		}
		idx := wr.schema.Find(name)
		if idx < 0 {
			return &UnknownColumnError{Name: name}
		}
		if err := wr.setValue(idx, v); err != nil {
			return err
		}
	}
	return wr.RowEnd()
}

func (wr *Writer) setValue(i int, v interface{}) error {
	col := wr.schema.Column(i)
	switch val := v.(type) {
	case uint32:
		if col.Type != rowcodec.TypeU32 {
			return &rowcodec.ReaderTypeError{Column: col.Name, Expected: col.Type.String(), Got: "u32"}
		}
		wr.builder.SetU32(i, val)
	case uint64:
		if col.Type != rowcodec.TypeU64 {
			return &rowcodec.ReaderTypeError{Column: col.Name, Expected: col.Type.String(), Got: "u64"}
		}
		wr.builder.SetU64(i, val)
	case string:
		if col.Type != rowcodec.TypeString {
			return &rowcodec.ReaderTypeError{Column: col.Name, Expected: col.Type.String(), Got: "string"}
		}
		wr.builder.SetString(i, val)
	default:
		return fmt.Errorf("stream: unsupported value type %T for column %q", v, col.Name)
	}
	return nil
}

// Close flushes and releases the underlying stream. It is idempotent.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	wr.closed = true
	return wr.w.Close()
}
