package salesdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/transform"

	"github.com/querychat/querychat/internal/csvload"
	"github.com/querychat/querychat/internal/storage"
)

// Write emits a header and rows records as CSV in the named encoding.
func Write(w io.Writer, g *Generator, rows int, encodingName string) error {
	enc, err := csvload.LookupEncoding(encodingName)
	if err != nil {
		return err
	}
	encoded := transform.NewWriter(w, enc.NewEncoder())
	writer := csv.NewWriter(encoded)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < rows; i++ {
		if err := writer.Write(g.NextRecord().Fields()); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return encoded.Close()
}

// Upload renders the dataset in memory and stores it under key.
func Upload(ctx context.Context, store storage.ObjectStore, key string, g *Generator, rows int, encodingName string) (storage.ObjectInfo, error) {
	var buf bytes.Buffer
	if err := Write(&buf, g, rows, encodingName); err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{ContentType: "text/csv"})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return info, nil
}
