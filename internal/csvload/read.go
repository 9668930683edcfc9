package csvload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/querychat/querychat/internal/storage"
)

const DefaultEncoding = "ISO-8859-1"

// Table is a decoded CSV file: the header row, the inferred column types and
// the raw data rows.
type Table struct {
	Columns []string
	Types   []ColumnType
	Rows    [][]string
}

// LookupEncoding resolves an IANA or WHATWG encoding label.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// ReadCSV decodes r from the named encoding, reads the header and all rows
// and infers the column types.
func ReadCSV(r io.Reader, encodingName string) (Table, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return Table{}, err
	}
	reader := csv.NewReader(transform.NewReader(r, enc.NewDecoder()))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("csv has no header row")
		}
		return Table{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read csv: %w", err)
		}
		if len(record) > len(header) {
			return Table{}, fmt.Errorf("csv line %d: expected %d fields, saw %d", line, len(header), len(record))
		}
		rows = append(rows, record)
	}

	return Table{
		Columns: header,
		Types:   InferTypes(len(header), rows),
		Rows:    rows,
	}, nil
}

type ObjectOpener interface {
	Open(ctx context.Context, uri storage.ObjectURI) (io.ReadCloser, error)
}

// OpenSource opens a local path or an s3://bucket/key URI. opener may be nil
// when only local paths are expected.
func OpenSource(ctx context.Context, path string, opener ObjectOpener) (io.ReadCloser, error) {
	if !storage.IsObjectURI(path) {
		return os.Open(path)
	}
	uri, err := storage.ParseObjectURI(path)
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, fmt.Errorf("object storage is not configured for %s", path)
	}
	return opener.Open(ctx, uri)
}
