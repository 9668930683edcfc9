package retrieval

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/querychat/querychat/internal/storage"
)

type snapshotRow struct {
	ID     int64     `parquet:"id"`
	Text   string    `parquet:"text"`
	Vector []float32 `parquet:"vector"`
}

// SnapshotWriter persists the embedded snippet collection as one Parquet
// object. Snapshots are never read back.
type SnapshotWriter struct {
	store storage.ObjectStore
	key   string
}

func NewSnapshotWriter(store storage.ObjectStore, key string) (*SnapshotWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("snapshot key is required")
	}
	return &SnapshotWriter{store: store, key: key}, nil
}

type SnapshotResult struct {
	Object storage.ObjectInfo
	// Written is false when the stored object already had identical content.
	Written bool
}

// Write uploads the snapshot unless the object at the key already carries
// the same MD5 ETag.
func (w *SnapshotWriter) Write(ctx context.Context, snippets []Snippet) (SnapshotResult, error) {
	data, err := encodeSnapshot(snippets)
	if err != nil {
		return SnapshotResult{}, err
	}
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	existing, err := w.store.Stat(ctx, w.key)
	switch {
	case err == nil && strings.EqualFold(strings.Trim(existing.ETag, `"`), etag):
		return SnapshotResult{Object: existing}, nil
	case err != nil && !errors.Is(err, storage.ErrObjectNotFound):
		return SnapshotResult{}, fmt.Errorf("stat schema snapshot: %w", err)
	}

	info, err := w.store.Put(ctx, w.key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("write schema snapshot: %w", err)
	}
	return SnapshotResult{Object: info, Written: true}, nil
}

func encodeSnapshot(snippets []Snippet) ([]byte, error) {
	rows := make([]snapshotRow, len(snippets))
	for i, snippet := range snippets {
		rows[i] = snapshotRow{ID: int64(snippet.ID), Text: snippet.Text, Vector: snippet.Vector}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[snapshotRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
