package stream

import (
	"io"

	"github.com/kokes/flatrow/src/rowcodec"
)

type readerState uint8

const (
	readerIdle readerState = iota
	readerInRow
)

// ReaderStateError reports a Reader method called out of sequence, e.g.
// a getter called while Idle.
type ReaderStateError struct {
	Op    string
	State string
}

func (e *ReaderStateError) Error() string {
	return "stream reader: " + e.Op + " called while " + e.State
}

func (s readerState) string() string {
	if s == readerInRow {
		return "in a row"
	}
	return "idle"
}

// Reader consumes a sequence of row frames from an underlying io.Reader,
// one row at a time, against a fixed schema. The schema is supplied by
// the caller (or by a higher-level opener such as flatrow.OpenReader) rather
// than discovered on the wire: the row format carries no embedded
// schema.
type Reader struct {
	r       io.Reader
	schema  *rowcodec.Schema
	state   readerState
	current *rowcodec.Row
}

// NewReader returns a Reader for schema, which must already be
// finalized.
func NewReader(r io.Reader, schema *rowcodec.Schema) *Reader {
	return &Reader{r: r, schema: schema}
}

// Schema returns the schema this reader decodes rows against.
func (rd *Reader) Schema() *rowcodec.Schema {
	return rd.schema
}

// RowStart reads and eagerly decodes the next row frame, transitioning
// Idle → InRow. It returns (false, nil) at a clean end of stream, and a
// non-nil error for a truncated frame, checksum mismatch, or I/O
// failure, all of which are fatal for the stream.
func (rd *Reader) RowStart() (bool, error) {
	if rd.state != readerIdle {
		return false, &ReaderStateError{Op: "RowStart", State: rd.state.string()}
	}
	row, err := rowcodec.DecodeRow(rd.r, rd.schema)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rd.current = row
	rd.state = readerInRow
	return true, nil
}

// RowEnd transitions InRow → Idle. Since rows are decoded eagerly at
// RowStart, this never fails on well-formed use; it exists so stream
// readers mirror the writer's Idle/InRow symmetry.
func (rd *Reader) RowEnd() error {
	if rd.state != readerInRow {
		return &ReaderStateError{Op: "RowEnd", State: rd.state.string()}
	}
	rd.current = nil
	rd.state = readerIdle
	return nil
}

func (rd *Reader) requireInRow(op string) error {
	if rd.state != readerInRow {
		return &ReaderStateError{Op: op, State: rd.state.string()}
	}
	return nil
}

// IsNull reports whether column i is absent from the current row.
func (rd *Reader) IsNull(i int) (bool, error) {
	if err := rd.requireInRow("IsNull"); err != nil {
		return false, err
	}
	return rd.current.IsNull(i), nil
}

// GetU32 returns column i's value in the current row.
func (rd *Reader) GetU32(i int) (uint32, error) {
	if err := rd.requireInRow("GetU32"); err != nil {
		return 0, err
	}
	return rd.current.GetU32(i)
}

// GetU64 returns column i's value in the current row.
func (rd *Reader) GetU64(i int) (uint64, error) {
	if err := rd.requireInRow("GetU64"); err != nil {
		return 0, err
	}
	return rd.current.GetU64(i)
}

// GetString returns column i's value in the current row.
func (rd *Reader) GetString(i int) (string, error) {
	if err := rd.requireInRow("GetString"); err != nil {
		return "", err
	}
	return rd.current.GetString(i)
}
