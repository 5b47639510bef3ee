package rowcodec

import (
	"bytes"
	"encoding/binary"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"io"
	"math/big"
	"unicode/utf8"

	"github.com/kokes/flatrow/src/bitmap"
	"github.com/kokes/flatrow/src/compression"
)

var maxU128 = new(big.Int).Lsh(big.NewInt(1), 128)

type stagedValue struct {
	isSet bool
	u32   uint32
	u64   uint64
	u128  *big.Int
	str   string
}

// RowBuilder accumulates one row's worth of column values and frames
// them into the on-disk representation: a presence bitmap header, a
// fixed-width slot area, trailing variable-width string payloads, and an
// optional checksum tail. It is the encode-side counterpart of Row, and
// is reusable across rows via Reset, mirroring kokes/smda's chunk
// builders, which are likewise cleared and refilled rather than
// reallocated per chunk.
type RowBuilder struct {
	schema *Schema
	values []stagedValue
}

// NewRowBuilder returns a RowBuilder for schema, which must already be
// finalized.
func NewRowBuilder(schema *Schema) *RowBuilder {
	return &RowBuilder{schema: schema, values: make([]stagedValue, schema.ColumnCount())}
}

// Reset clears every staged value, readying the builder for the next row.
func (b *RowBuilder) Reset() {
	for i := range b.values {
		b.values[i] = stagedValue{}
	}
}

// SetU32 stages v for the column at index i. i must name a TypeU32
// column; this is a contract the caller (typically stream.Writer's
// schema-driven dispatch) is expected to uphold, not a value supplied by
// untrusted input.
func (b *RowBuilder) SetU32(i int, v uint32) {
	b.values[i] = stagedValue{isSet: true, u32: v}
}

// SetU64 stages v for the column at index i, which must name a TypeU64
// column.
func (b *RowBuilder) SetU64(i int, v uint64) {
	b.values[i] = stagedValue{isSet: true, u64: v}
}

// SetU128 stages v for the column at index i, which must name a TypeU128
// column. It fails with *ValueOutOfRangeError if v is negative or does
// not fit in 128 bits.
func (b *RowBuilder) SetU128(i int, v *big.Int) error {
	if v.Sign() < 0 || v.Cmp(maxU128) >= 0 {
		return &ValueOutOfRangeError{Column: b.schema.Column(i).Name, Max: new(big.Int).Sub(maxU128, big.NewInt(1)).String()}
	}
	b.values[i] = stagedValue{isSet: true, u128: new(big.Int).Set(v)}
	return nil
}

// SetString stages v for the column at index i, which must name a
// TypeString column.
func (b *RowBuilder) SetString(i int, v string) {
	b.values[i] = stagedValue{isSet: true, str: v}
}

func newHasher(kind ChecksumKind) hash.Hash32 {
	switch kind {
	case ChecksumAdler32:
		return adler32.New()
	case ChecksumCRC32:
		return crc32.NewIEEE()
	default:
		return nil
	}
}

func encodeU128LE(v *big.Int) [16]byte {
	var out [16]byte
	be := v.Bytes()
	for i, by := range be {
		out[len(be)-1-i] = by
	}
	return out
}

// Encode validates and frames the staged row, returning its on-disk
// bytes. A missing value for a non-nullable column fails with
// *NullOnNonNullableError; the builder is left with its staged values
// intact either way, so the caller decides whether to retry or Reset.
func (b *RowBuilder) Encode() ([]byte, error) {
	schema := b.schema
	n := schema.ColumnCount()
	bm := bitmap.NewBitmap(n)
	compressedStrings := make([][]byte, n)

	for i := 0; i < n; i++ {
		col := schema.Column(i)
		if !b.values[i].isSet {
			if !col.Nullable {
				return nil, &NullOnNonNullableError{Column: col.Name}
			}
			continue
		}
		bm.Set(i, true)
		if col.Type == TypeString && len(b.values[i].str) > 0 {
			compressed, err := compression.Compress(col.Compression, []byte(b.values[i].str))
			if err != nil {
				return nil, err
			}
			compressedStrings[i] = compressed
		}
	}

	buf := new(bytes.Buffer)
	hasher := newHasher(schema.Checksum())
	var dst io.Writer = buf
	if hasher != nil {
		dst = io.MultiWriter(buf, hasher)
	}

	if err := bitmap.EncodeHeader(dst, bm, n); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		if !bm.Get(i) {
			continue
		}
		col := schema.Column(i)
		switch col.Type {
		case TypeU32:
			if err := binary.Write(dst, binary.LittleEndian, b.values[i].u32); err != nil {
				return nil, err
			}
		case TypeU64:
			if err := binary.Write(dst, binary.LittleEndian, b.values[i].u64); err != nil {
				return nil, err
			}
		case TypeU128:
			word := encodeU128LE(b.values[i].u128)
			if _, err := dst.Write(word[:]); err != nil {
				return nil, err
			}
		case TypeString:
			if err := binary.Write(dst, binary.LittleEndian, uint32(len(compressedStrings[i]))); err != nil {
				return nil, err
			}
		}
	}

	for i := 0; i < n; i++ {
		if !bm.Get(i) || schema.Column(i).Type != TypeString {
			continue
		}
		if len(compressedStrings[i]) == 0 {
			continue
		}
		if _, err := dst.Write(compressedStrings[i]); err != nil {
			return nil, err
		}
	}

	if hasher != nil {
		var tail [4]byte
		binary.LittleEndian.PutUint32(tail[:], hasher.Sum32())
		if _, err := buf.Write(tail[:]); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Row is a single decoded record. DecodeRow parses the whole frame
// eagerly, so every getter below is an O(1) lookup into already-decoded
// storage rather than a fresh parse, the same eager-materialization
// shape kokes/smda's column chunks use once deserialized.
type Row struct {
	schema  *Schema
	present *bitmap.Bitmap
	u32vals []uint32
	u64vals []uint64
	strvals []string
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncatedFile
	}
	return err
}

// DecodeRow reads and frames one row from r against schema, which must
// already be finalized. It returns io.EOF, unwrapped, when r is
// exhausted exactly at a row boundary, the clean end-of-stream signal
// stream.Reader relies on to stop iterating. Any other short read is
// ErrTruncatedFile.
func DecodeRow(r io.Reader, schema *Schema) (*Row, error) {
	n := schema.ColumnCount()

	hasher := newHasher(schema.Checksum())
	var src io.Reader = r
	if hasher != nil {
		src = io.TeeReader(r, hasher)
	}

	bm, err := bitmap.DecodeHeader(src, n)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedFile
		}
		return nil, err
	}

	fixedSize := 0
	for i := 0; i < n; i++ {
		if bm.Get(i) {
			fixedSize += schema.Column(i).Type.fixedWidth()
		}
	}
	fixedBuf := make([]byte, fixedSize)
	if err := readFull(src, fixedBuf); err != nil {
		return nil, err
	}

	row := &Row{
		schema:  schema,
		present: bm,
		u32vals: make([]uint32, n),
		u64vals: make([]uint64, n),
		strvals: make([]string, n),
	}

	stringLens := make([]uint32, n)
	cursor := 0
	for i := 0; i < n; i++ {
		if !bm.Get(i) {
			continue
		}
		col := schema.Column(i)
		switch col.Type {
		case TypeU32:
			row.u32vals[i] = binary.LittleEndian.Uint32(fixedBuf[cursor:])
			cursor += 4
		case TypeU64:
			row.u64vals[i] = binary.LittleEndian.Uint64(fixedBuf[cursor:])
			cursor += 8
		case TypeU128:
			cursor += 16
		case TypeString:
			stringLens[i] = binary.LittleEndian.Uint32(fixedBuf[cursor:])
			cursor += 4
		}
	}

	for i := 0; i < n; i++ {
		if !bm.Get(i) || schema.Column(i).Type != TypeString {
			continue
		}
		col := schema.Column(i)
		l := stringLens[i]
		if l == 0 {
			row.strvals[i] = ""
			continue
		}
		payload := make([]byte, l)
		if err := readFull(src, payload); err != nil {
			return nil, err
		}
		raw, err := compression.Decompress(col.Compression, payload)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, &InvalidUtf8Error{Column: col.Name}
		}
		row.strvals[i] = string(raw)
	}

	if hasher != nil {
		var tail [4]byte
		if err := readFull(r, tail[:]); err != nil {
			return nil, err
		}
		expected := binary.LittleEndian.Uint32(tail[:])
		if actual := hasher.Sum32(); actual != expected {
			return nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
		}
	}

	return row, nil
}

// IsNull reports whether the column at index i was absent from this row.
func (row *Row) IsNull(i int) bool {
	return !row.present.Get(i)
}

// GetU32 returns the value of the column at index i, which must name a
// non-null TypeU32 column.
func (row *Row) GetU32(i int) (uint32, error) {
	col := row.schema.Column(i)
	if col.Type != TypeU32 {
		return 0, &ReaderTypeError{Column: col.Name, Expected: "u32", Got: col.Type.String()}
	}
	if row.IsNull(i) {
		return 0, &ReaderTypeError{Column: col.Name, Expected: "u32", Got: "null"}
	}
	return row.u32vals[i], nil
}

// GetU64 returns the value of the column at index i, which must name a
// non-null TypeU64 column.
func (row *Row) GetU64(i int) (uint64, error) {
	col := row.schema.Column(i)
	if col.Type != TypeU64 {
		return 0, &ReaderTypeError{Column: col.Name, Expected: "u64", Got: col.Type.String()}
	}
	if row.IsNull(i) {
		return 0, &ReaderTypeError{Column: col.Name, Expected: "u64", Got: "null"}
	}
	return row.u64vals[i], nil
}

// GetString returns the value of the column at index i, which must name
// a non-null TypeString column.
func (row *Row) GetString(i int) (string, error) {
	col := row.schema.Column(i)
	if col.Type != TypeString {
		return "", &ReaderTypeError{Column: col.Name, Expected: "string", Got: col.Type.String()}
	}
	if row.IsNull(i) {
		return "", &ReaderTypeError{Column: col.Name, Expected: "string", Got: "null"}
	}
	return row.strvals[i], nil
}

// GetU128 always fails with *UnsupportedTypeError: the u128 decode path
// is reserved, not implemented.
func (row *Row) GetU128(i int) (*big.Int, error) {
	col := row.schema.Column(i)
	if col.Type != TypeU128 {
		return nil, &ReaderTypeError{Column: col.Name, Expected: "u128", Got: col.Type.String()}
	}
	return nil, &UnsupportedTypeError{Column: col.Name, Type: TypeU128}
}
