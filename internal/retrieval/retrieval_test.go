package retrieval

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/querychat/querychat/internal/schema"
	"github.com/querychat/querychat/internal/storage"
)

// keywordEmbedder scores each text against a fixed vocabulary so that
// questions land next to the columns they mention.
type keywordEmbedder struct {
	vocabulary []string
	calls      int
	err        error
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vector := make([]float32, len(e.vocabulary))
		for j, word := range e.vocabulary {
			if strings.Contains(lower, word) {
				vector[j] = 1
			}
		}
		out[i] = vector
	}
	return out, nil
}

func salesEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocabulary: []string{"sales", "revenue", "country", "customer", "year", "quantity", "product", "order"}}
}

func schemaTexts(t *testing.T) []string {
	t.Helper()
	catalog, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() error = %v", err)
	}
	return catalog.Snippets()
}

func TestRetrieveReturnsAtMostKFromCollection(t *testing.T) {
	texts := schemaTexts(t)
	retriever, err := Build(context.Background(), Config{
		Embedder: salesEmbedder(),
		Index:    NewMemoryIndex(),
		Texts:    texts,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if retriever.TopK() != 5 {
		t.Fatalf("TopK() = %d", retriever.TopK())
	}

	matches, err := retriever.Retrieve(context.Background(), "What is the total sales revenue per country?", 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 5 {
		t.Fatalf("matches = %d, want 5", len(matches))
	}
	known := map[string]bool{}
	for _, text := range texts {
		known[text] = true
	}
	for i, match := range matches {
		if !known[match.Snippet.Text] {
			t.Fatalf("match %d outside collection: %q", i, match.Snippet.Text)
		}
		if i > 0 && match.Distance < matches[i-1].Distance {
			t.Fatalf("matches not ordered by distance: %+v", matches)
		}
	}
	if !strings.Contains(matches[0].Snippet.Text, "Column: SALES") {
		t.Fatalf("closest match = %q", matches[0].Snippet.Text)
	}
}

func TestRetrieveHonorsExplicitK(t *testing.T) {
	retriever, err := Build(context.Background(), Config{
		Embedder: salesEmbedder(),
		Index:    NewMemoryIndex(),
		Texts:    schemaTexts(t),
		TopK:     5,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	matches, err := retriever.Retrieve(context.Background(), "customer", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	matches, err = retriever.Retrieve(context.Background(), "customer", 50)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 8 {
		t.Fatalf("matches = %d, want whole collection", len(matches))
	}
}

func TestBuildPropagatesEmbeddingFailure(t *testing.T) {
	cause := errors.New("embedding quota exceeded")
	_, err := Build(context.Background(), Config{
		Embedder: &keywordEmbedder{err: cause},
		Index:    NewMemoryIndex(),
		Texts:    []string{"a"},
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestBuildRequiresSnippets(t *testing.T) {
	if _, err := Build(context.Background(), Config{Embedder: salesEmbedder(), Index: NewMemoryIndex()}); err == nil {
		t.Fatal("expected error without snippets")
	}
}

func TestBuildWritesParquetSnapshot(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	snapshot, err := NewSnapshotWriter(store, "faiss_index_store/schema.parquet")
	if err != nil {
		t.Fatalf("NewSnapshotWriter() error = %v", err)
	}
	texts := schemaTexts(t)
	if _, err := Build(context.Background(), Config{
		Embedder: salesEmbedder(),
		Index:    NewMemoryIndex(),
		Texts:    texts,
		Snapshot: snapshot,
	}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, ok := store.objects["faiss_index_store/schema.parquet"]
	if !ok {
		t.Fatal("snapshot not written")
	}
	reader := parquet.NewGenericReader[snapshotRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]snapshotRow, len(texts))
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != len(texts) {
		t.Fatalf("read rows = %d", count)
	}
	if rows[2].Text != texts[2] || rows[2].ID != 2 {
		t.Fatalf("row 2 = %+v", rows[2])
	}
	if len(rows[0].Vector) != 8 {
		t.Fatalf("vector dims = %d", len(rows[0].Vector))
	}
}

func TestSnapshotWriterSkipsIdenticalSnapshot(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	snapshot, err := NewSnapshotWriter(store, "schema/snippets.parquet")
	if err != nil {
		t.Fatalf("NewSnapshotWriter() error = %v", err)
	}
	snippets := []Snippet{
		{ID: 0, Text: "Table: sales_table, Column: SALES", Vector: []float32{1, 0}},
		{ID: 1, Text: "Table: sales_table, Column: COUNTRY", Vector: []float32{0, 1}},
	}

	first, err := snapshot.Write(context.Background(), snippets)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !first.Written {
		t.Fatal("first Write() should upload")
	}
	second, err := snapshot.Write(context.Background(), snippets)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if second.Written || store.puts != 1 {
		t.Fatalf("second Write() written = %v puts = %d, want unchanged", second.Written, store.puts)
	}
	if second.Object.Size != first.Object.Size {
		t.Fatalf("sizes = %d / %d", first.Object.Size, second.Object.Size)
	}

	snippets[1].Vector = []float32{0.5, 0.5}
	third, err := snapshot.Write(context.Background(), snippets)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !third.Written || store.puts != 2 {
		t.Fatalf("changed Write() written = %v puts = %d", third.Written, store.puts)
	}
}

func TestSnapshotWriterPropagatesStatFailure(t *testing.T) {
	snapshot, err := NewSnapshotWriter(failingStatStore{&memoryStore{objects: map[string][]byte{}}}, "schema/snippets.parquet")
	if err != nil {
		t.Fatalf("NewSnapshotWriter() error = %v", err)
	}
	if _, err := snapshot.Write(context.Background(), []Snippet{{Text: "x", Vector: []float32{1}}}); err == nil {
		t.Fatal("expected stat failure")
	}
}

type failingStatStore struct{ *memoryStore }

func (failingStatStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("access denied")
}

func TestJoinTexts(t *testing.T) {
	got := JoinTexts([]Match{
		{Snippet: Snippet{Text: "Table: sales_table, Column: SALES, Description: x"}},
		{Snippet: Snippet{Text: "Table: sales_table, Column: COUNTRY, Description: y"}},
	})
	want := "Table: sales_table, Column: SALES, Description: x\nTable: sales_table, Column: COUNTRY, Description: y"
	if got != want {
		t.Fatalf("JoinTexts() = %q", got)
	}
}

func TestMemoryIndexRejectsDimensionMismatch(t *testing.T) {
	index := NewMemoryIndex()
	if err := index.Add(context.Background(), []Snippet{{ID: 0, Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := index.Add(context.Background(), []Snippet{{ID: 1, Vector: []float32{1}}}); err == nil {
		t.Fatal("expected dimension mismatch on Add")
	}
	if _, err := index.Search(context.Background(), []float32{1, 0, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch on Search")
	}
}

func TestMemoryIndexUsesSquaredDistance(t *testing.T) {
	index := NewMemoryIndex()
	if err := index.Add(context.Background(), []Snippet{
		{ID: 0, Text: "far", Vector: []float32{3, 4}},
		{ID: 1, Text: "near", Vector: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	matches, err := index.Search(context.Background(), []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if matches[0].Snippet.Text != "near" || matches[0].Distance != 1 || matches[1].Distance != 25 {
		t.Fatalf("Search() = %+v", matches)
	}
}

type memoryStore struct {
	objects map[string][]byte
	puts    int
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.puts++
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ETag: md5Hex(data)}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ETag: `"` + md5Hex(data) + `"`}, nil
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
