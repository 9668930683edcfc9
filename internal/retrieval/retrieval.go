// Package retrieval finds the schema snippets closest to a question in
// embedding space.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/observability"
)

const DefaultTopK = 5

type Snippet struct {
	ID     int       `json:"id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"-"`
}

type Match struct {
	Snippet  Snippet `json:"snippet"`
	Distance float64 `json:"distance"`
}

// Index is a nearest-neighbour index over snippet vectors. Search never
// returns more than k matches and orders them by increasing distance.
type Index interface {
	Add(ctx context.Context, snippets []Snippet) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Close() error
}

type Config struct {
	Embedder llm.Embedder
	Index    Index
	Texts    []string
	TopK     int
	Snapshot *SnapshotWriter
	Logger   *slog.Logger
}

type Retriever struct {
	embedder llm.Embedder
	index    Index
	snippets []Snippet
	topK     int
	logger   *slog.Logger
}

// Build embeds every text, loads the index and, when configured, writes a
// snapshot of the collection. It runs once per process start.
func Build(ctx context.Context, cfg Config) (*Retriever, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if len(cfg.Texts) == 0 {
		return nil, fmt.Errorf("at least one schema snippet is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	vectors, err := cfg.Embedder.Embed(ctx, cfg.Texts)
	if err != nil {
		return nil, fmt.Errorf("embed schema snippets: %w", err)
	}
	if len(vectors) != len(cfg.Texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d snippets", len(vectors), len(cfg.Texts))
	}

	snippets := make([]Snippet, len(cfg.Texts))
	for i, text := range cfg.Texts {
		snippets[i] = Snippet{ID: i, Text: text, Vector: vectors[i]}
	}
	if err := cfg.Index.Add(ctx, snippets); err != nil {
		return nil, fmt.Errorf("index schema snippets: %w", err)
	}

	if cfg.Snapshot != nil {
		result, err := cfg.Snapshot.Write(ctx, snippets)
		if err != nil {
			return nil, err
		}
		event := "schema_snapshot_unchanged"
		if result.Written {
			event = "schema_snapshot_written"
		}
		logger.InfoContext(ctx, event,
			slog.String("key", result.Object.Key),
			slog.Int64("bytes", result.Object.Size),
		)
	}

	logger.InfoContext(ctx, "schema_index_built",
		slog.Int("snippets", len(snippets)),
		slog.Int("dimensions", len(vectors[0])),
		slog.Int("top_k", topK),
	)
	return &Retriever{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		snippets: snippets,
		topK:     topK,
		logger:   logger,
	}, nil
}

// TopK is the default number of snippets returned per question.
func (r *Retriever) TopK() int { return r.topK }

func (r *Retriever) Snippets() []Snippet {
	out := make([]Snippet, len(r.snippets))
	copy(out, r.snippets)
	return out
}

// Retrieve returns at most k snippets closest to question. k <= 0 uses the
// configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]Match, error) {
	if k <= 0 {
		k = r.topK
	}
	start := time.Now()
	defer func() { observability.ObserveRetrieval(time.Since(start)) }()

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vectors))
	}
	matches, err := r.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search schema index: %w", err)
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (r *Retriever) Close() error {
	return r.index.Close()
}

// JoinTexts renders matches as the schema block passed to the query prompt,
// one snippet per line.
func JoinTexts(matches []Match) string {
	lines := make([]string, len(matches))
	for i, match := range matches {
		lines[i] = match.Snippet.Text
	}
	return strings.Join(lines, "\n")
}
