package flatrow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kokes/flatrow/src/compression"
	"github.com/kokes/flatrow/src/rowcodec"
)

func buildSchema(t *testing.T, checksum rowcodec.ChecksumKind) *rowcodec.Schema {
	t.Helper()
	s := rowcodec.NewSchema()
	if err := s.AddColumn("a", rowcodec.TypeU32, false, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := s.AddColumn("b", rowcodec.TypeU32, false, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := s.AddColumn("c", rowcodec.TypeU32, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := s.AddColumn("d", rowcodec.TypeU64, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := s.AddColumn("e", rowcodec.TypeString, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	s.SetChecksum(checksum)
	s.Finalize()
	return s
}

// Writing N rows then appending M rows must read back as the
// concatenation of both in order.
func TestAppendEquivalence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.flat")
	schema := buildSchema(t, rowcodec.ChecksumNone)

	w, err := OpenWriter(WriterOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRow([]interface{}{uint32(1), uint32(2), nil, uint64(64), "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	ap, err := OpenAppender(WriterOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	if err := ap.WriteRow([]interface{}{uint32(2), uint32(4), uint32(5), nil, "world"}); err != nil {
		t.Fatal(err)
	}
	if err := ap.Close(); err != nil {
		t.Fatal(err)
	}

	rd, err := OpenReader(ReaderOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	ok, err := rd.RowStart()
	if err != nil || !ok {
		t.Fatalf("row 1: ok=%v err=%v", ok, err)
	}
	if v, _ := rd.GetU32(0); v != 1 {
		t.Errorf("row 1 a: got %d", v)
	}
	if null, _ := rd.IsNull(2); !null {
		t.Errorf("row 1 c: expected null")
	}
	if s, _ := rd.GetString(4); s != "hello" {
		t.Errorf("row 1 e: got %q", s)
	}
	if err := rd.RowEnd(); err != nil {
		t.Fatal(err)
	}

	ok, err = rd.RowStart()
	if err != nil || !ok {
		t.Fatalf("row 2: ok=%v err=%v", ok, err)
	}
	if v, _ := rd.GetU32(0); v != 2 {
		t.Errorf("row 2 a: got %d", v)
	}
	if null, _ := rd.IsNull(3); !null {
		t.Errorf("row 2 d: expected null")
	}
	if s, _ := rd.GetString(4); s != "world" {
		t.Errorf("row 2 e: got %q", s)
	}
	if err := rd.RowEnd(); err != nil {
		t.Fatal(err)
	}

	ok, err = rd.RowStart()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected clean EOF after 2 rows")
	}
}

// Reopening with an expected schema that differs only in a nullable flag
// fails with *rowcodec.SchemaMismatchError naming that column.
func TestSchemaMismatchOnNullable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.flat")
	onDisk := buildSchema(t, rowcodec.ChecksumNone)

	w, err := OpenWriter(WriterOptions{Filename: path, Schema: onDisk})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	expected := rowcodec.NewSchema()
	if err := expected.AddColumn("a", rowcodec.TypeU32, false, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := expected.AddColumn("b", rowcodec.TypeU32, false, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := expected.AddColumn("c", rowcodec.TypeU32, false /* differs: false, not true */, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := expected.AddColumn("d", rowcodec.TypeU64, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := expected.AddColumn("e", rowcodec.TypeString, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	expected.Finalize()

	_, err = OpenReader(ReaderOptions{Filename: path, Schema: expected})
	mismatch, ok := err.(*rowcodec.SchemaMismatchError)
	if !ok {
		t.Fatalf("expected *rowcodec.SchemaMismatchError, got %v", err)
	}
	if mismatch.Reason != "nullable" || mismatch.Index != 2 {
		t.Errorf("expected mismatch at column 2 reason nullable, got index=%d reason=%s", mismatch.Index, mismatch.Reason)
	}
}

// Flipping a byte in a checksummed row causes
// *rowcodec.ChecksumMismatchError for that row only.
func TestChecksumRejection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.flat")
	schema := buildSchema(t, rowcodec.ChecksumAdler32)

	w, err := OpenWriter(WriterOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRow([]interface{}{uint32(1), uint32(2), uint32(3), uint64(4), "x"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRow([]interface{}{uint32(5), uint32(6), uint32(7), uint64(8), "y"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// flip a byte inside row 2's fixed area (10 bytes before EOF, clear
	// of its 4-byte checksum tail and its 1-byte string payload), so row
	// 1 still reads cleanly and only row 2 fails its checksum.
	raw[len(raw)-10] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	rd, err := OpenReader(ReaderOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	ok, err := rd.RowStart()
	if err != nil || !ok {
		t.Fatalf("row 1 should read cleanly: ok=%v err=%v", ok, err)
	}
	if err := rd.RowEnd(); err != nil {
		t.Fatal(err)
	}

	_, err = rd.RowStart()
	if _, ok := err.(*rowcodec.ChecksumMismatchError); !ok {
		t.Fatalf("expected *rowcodec.ChecksumMismatchError for row 2, got %v", err)
	}
}

// A union over files {A, B} reads all of A's rows in order, then all of
// B's rows in order.
func TestUnionOrdering(t *testing.T) {
	dir := t.TempDir()
	schema := buildSchema(t, rowcodec.ChecksumNone)

	writeFile := func(name string, ids []uint32) {
		t.Helper()
		w, err := OpenWriter(WriterOptions{Filename: filepath.Join(dir, name), Schema: schema})
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range ids {
			if err := w.WriteRow([]interface{}{id, id, nil, nil, nil}); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("a.flat", []uint32{1, 2})
	writeFile("b.flat", []uint32{3, 4})

	reldef := `data = union '` + filepath.Join(dir, "*.flat") + `'`
	rd, err := OpenReader(ReaderOptions{Filename: "unused", Reldef: reldef, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	var got []uint32
	for {
		ok, err := rd.RowStart()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		v, err := rd.GetU32(0)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
		if err := rd.RowEnd(); err != nil {
			t.Fatal(err)
		}
	}
	want := []uint32{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestUnionSchemaMismatchNamesFile(t *testing.T) {
	dir := t.TempDir()
	schemaA := buildSchema(t, rowcodec.ChecksumNone)

	wA, err := OpenWriter(WriterOptions{Filename: filepath.Join(dir, "a.flat"), Schema: schemaA})
	if err != nil {
		t.Fatal(err)
	}
	if err := wA.Close(); err != nil {
		t.Fatal(err)
	}

	schemaB := rowcodec.NewSchema()
	if err := schemaB.AddColumn("only_one_column", rowcodec.TypeU32, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	schemaB.Finalize()
	wB, err := OpenWriter(WriterOptions{Filename: filepath.Join(dir, "b.flat"), Schema: schemaB})
	if err != nil {
		t.Fatal(err)
	}
	if err := wB.Close(); err != nil {
		t.Fatal(err)
	}

	reldef := `data = union '` + filepath.Join(dir, "*.flat") + `'`
	_, err = OpenReader(ReaderOptions{Filename: "unused", Reldef: reldef})
	mismatch, ok := err.(*UnionSchemaMismatchError)
	if !ok {
		t.Fatalf("expected *UnionSchemaMismatchError, got %v", err)
	}
	if filepath.Base(mismatch.File) != "b.flat" {
		t.Errorf("expected mismatch to name b.flat, got %q", mismatch.File)
	}
}

func TestCloseDiscardIfEmptyDeletesFreshEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.flat")
	schema := buildSchema(t, rowcodec.ChecksumNone)

	ap, err := OpenAppender(WriterOptions{Filename: path, Schema: schema})
	if err != nil {
		t.Fatal(err)
	}
	if err := ap.CloseDiscardIfEmpty(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %q to have been removed, stat err=%v", path, err)
	}
}
