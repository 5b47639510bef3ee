package schematext

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kokes/flatrow/src/compression"
	"github.com/kokes/flatrow/src/rowcodec"
)

func TestParseBasicSchema(t *testing.T) {
	text := `# a comment line
column a string _
column b string _ lz4
column c u32le
column d u64le
checksum adler32
`
	schema, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if schema.ColumnCount() != 4 {
		t.Fatalf("expected 4 columns, got %d", schema.ColumnCount())
	}
	if schema.Column(1).Compression != compression.LZ4 {
		t.Errorf("expected column b to have lz4 compression, got %v", schema.Column(1).Compression)
	}
	if schema.Column(2).Type != rowcodec.TypeU32 {
		t.Errorf("expected column c to be u32, got %v", schema.Column(2).Type)
	}
	if schema.Checksum() != rowcodec.ChecksumAdler32 {
		t.Errorf("expected adler32 checksum, got %v", schema.Checksum())
	}
}

func TestParseMeaningUnderscoreIsNone(t *testing.T) {
	schema, err := Parse(strings.NewReader("column a string _\n"))
	if err != nil {
		t.Fatal(err)
	}
	if schema.Column(0).Meaning != "" {
		t.Errorf("expected empty meaning, got %q", schema.Column(0).Meaning)
	}
}

func TestParseMeaningLiteral(t *testing.T) {
	schema, err := Parse(strings.NewReader("column a string identifier\n"))
	if err != nil {
		t.Fatal(err)
	}
	if schema.Column(0).Meaning != "identifier" {
		t.Errorf("expected meaning %q, got %q", "identifier", schema.Column(0).Meaning)
	}
}

func TestParseReorder(t *testing.T) {
	schema, err := Parse(strings.NewReader("column z string _\ncolumn a u32le\nreorder\n"))
	if err != nil {
		t.Fatal(err)
	}
	// reorder puts non-strings before strings, each sorted by name
	if schema.Column(0).Name != "a" {
		t.Errorf("expected column 0 to be 'a' after reorder, got %q", schema.Column(0).Name)
	}
	if schema.Column(1).Name != "z" {
		t.Errorf("expected column 1 to be 'z' after reorder, got %q", schema.Column(1).Name)
	}
}

func TestParseUnknownDirective(t *testing.T) {
	_, err := Parse(strings.NewReader("bogus thing\n"))
	if _, ok := err.(*SchemaSyntaxError); !ok {
		t.Fatalf("expected *SchemaSyntaxError, got %v", err)
	}
}

func TestParseInvalidType(t *testing.T) {
	_, err := Parse(strings.NewReader("column a nosuchtype\n"))
	if _, ok := err.(*rowcodec.InvalidTypeError); !ok {
		t.Fatalf("expected *rowcodec.InvalidTypeError, got %v", err)
	}
}

func TestWriteThenParseRoundTrips(t *testing.T) {
	schema := rowcodec.NewSchema()
	if err := schema.AddColumn("a", rowcodec.TypeString, true, "", compression.None); err != nil {
		t.Fatal(err)
	}
	if err := schema.AddColumn("b", rowcodec.TypeString, true, "", compression.LZ4); err != nil {
		t.Fatal(err)
	}
	if err := schema.AddColumn("c", rowcodec.TypeU32, true, "tag", compression.None); err != nil {
		t.Fatal(err)
	}
	schema.SetChecksum(rowcodec.ChecksumCRC32)
	schema.Finalize()

	buf := new(bytes.Buffer)
	if err := Write(buf, schema); err != nil {
		t.Fatal(err)
	}

	reparsed, err := Parse(buf)
	if err != nil {
		t.Fatalf("re-parsing written schema-text: %v", err)
	}
	if err := reparsed.Validate(schema); err != nil {
		t.Fatalf("round-tripped schema differs: %v", err)
	}
}
