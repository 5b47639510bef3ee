// Command flatrow is a small inspection tool for the row-oriented binary
// flat-file codec: it can print a file's schema, dump its rows as
// tab-separated text, or validate a schema-text file. It exists only to
// exercise the library end to end; the core is a library, not a CLI.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	flatrow "github.com/kokes/flatrow/src"
	"github.com/kokes/flatrow/src/rowcodec"
	"github.com/kokes/flatrow/src/schematext"
)

func main() {
	schemaText := flag.String("schema", "", "path to a schema-text file describing the data file")
	dump := flag.Bool("dump", false, "dump rows of the data file named by -read as tab-separated text")
	showSchema := flag.Bool("show-schema", false, "print the schema of the data file named by -read")
	reldef := flag.String("reldef", "", "inline relation-text, in place of a plain data-file path")
	read := flag.String("read", "", "data-file path (or reldef-path:data-path) to read")
	flag.Parse()

	if err := run(*read, *schemaText, *reldef, *dump, *showSchema); err != nil {
		log.Fatal(err)
	}
}

func run(readPath, schemaPath, reldef string, dump, showSchema bool) error {
	if readPath == "" {
		return fmt.Errorf("need a -read path")
	}

	var expected *rowcodec.Schema
	if schemaPath != "" {
		f, err := os.Open(schemaPath)
		if err != nil {
			return err
		}
		defer f.Close()
		expected, err = schematext.Parse(f)
		if err != nil {
			return err
		}
	}

	rd, err := flatrow.OpenReader(flatrow.ReaderOptions{Filename: readPath, Schema: expected, Reldef: reldef})
	if err != nil {
		return err
	}
	defer rd.Close()

	if showSchema {
		return schematext.Write(os.Stdout, rd.Schema())
	}
	if dump {
		return dumpRows(rd)
	}
	return schematext.Write(os.Stdout, rd.Schema())
}

func dumpRows(rd *flatrow.Reader) error {
	bw := bufio.NewWriter(os.Stdout)
	defer bw.Flush()

	schema := rd.Schema()
	for {
		ok, err := rd.RowStart()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for i := 0; i < schema.ColumnCount(); i++ {
			if i > 0 {
				if _, err := bw.WriteString("\t"); err != nil {
					return err
				}
			}
			if err := writeCell(bw, rd, schema.Column(i), i); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
		if err := rd.RowEnd(); err != nil {
			return err
		}
	}
}

func writeCell(bw *bufio.Writer, rd *flatrow.Reader, col rowcodec.Column, i int) error {
	null, err := rd.IsNull(i)
	if err != nil {
		return err
	}
	if null {
		_, err := bw.WriteString("\\N")
		return err
	}
	switch col.Type {
	case rowcodec.TypeU32:
		v, err := rd.GetU32(i)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(bw, "%d", v)
		return err
	case rowcodec.TypeU64:
		v, err := rd.GetU64(i)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(bw, "%d", v)
		return err
	case rowcodec.TypeString:
		v, err := rd.GetString(i)
		if err != nil {
			return err
		}
		_, err = bw.WriteString(v)
		return err
	default:
		_, err := fmt.Fprintf(bw, "<%s unsupported>", col.Type)
		return err
	}
}
