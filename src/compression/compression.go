// Package compression implements the per-column string payload compression
// dispatch: a named algorithm transforms bytes on write, and the inverse
// transform recovers them on read. This mirrors the switch-to-constructor
// shape of writeCompressed/readCompressed in kokes/smda's database/loader.go
// and database/inference_format.go, extended from that teacher's
// gzip/snappy pair to the lz4/zlib/brotli vocabulary this format needs.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"compress/zlib"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

// Kind names a string-column compression algorithm.
type Kind uint8

const (
	// None is the identity transform and the schema default.
	None Kind = iota
	// LZ4 uses the self-framed LZ4 frame format.
	LZ4
	// Zlib uses deflate with a zlib wrapper at level 9.
	Zlib
	// Brotli uses brotli at its default quality.
	Brotli
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zlib:
		return "zlib"
	case Brotli:
		return "brotli"
	default:
		return fmt.Sprintf("compression.Kind(%d)", uint8(k))
	}
}

// InvalidCompressionError reports an unrecognised compression token.
type InvalidCompressionError struct {
	Token string
}

func (e *InvalidCompressionError) Error() string {
	return fmt.Sprintf("invalid compression: %q", e.Token)
}

// Parse maps a schema-text/API token to a Kind.
func Parse(token string) (Kind, error) {
	switch token {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zlib":
		return Zlib, nil
	case "brotli":
		return Brotli, nil
	default:
		return None, &InvalidCompressionError{Token: token}
	}
}

// Error reports a compression or decompression failure, with the
// algorithm and underlying cause attached so callers can tell which
// codec was responsible.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compression %v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var errUnknownKind = errors.New("unknown compression kind")

// Compress transforms data per kind, returning the bytes to store as the
// trailing payload.
func Compress(kind Kind, data []byte) ([]byte, error) {
	switch kind {
	case None:
		return data, nil
	case LZ4:
		buf := new(bytes.Buffer)
		zw := lz4.NewWriter(buf)
		if _, err := zw.Write(data); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		if err := zw.Close(); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return buf.Bytes(), nil
	case Zlib:
		buf := new(bytes.Buffer)
		zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
		if err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		if _, err := zw.Write(data); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		if err := zw.Close(); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return buf.Bytes(), nil
	case Brotli:
		buf := new(bytes.Buffer)
		bw := brotli.NewWriter(buf)
		if _, err := bw.Write(data); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		if err := bw.Close(); err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return buf.Bytes(), nil
	default:
		return nil, &Error{Kind: kind, Err: errUnknownKind}
	}
}

// Decompress is the inverse of Compress.
func Decompress(kind Kind, data []byte) ([]byte, error) {
	switch kind {
	case None:
		return data, nil
	case LZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return out, nil
	case Zlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return out, nil
	case Brotli:
		br := brotli.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(br)
		if err != nil {
			return nil, &Error{Kind: kind, Err: err}
		}
		return out, nil
	default:
		return nil, &Error{Kind: kind, Err: errUnknownKind}
	}
}
