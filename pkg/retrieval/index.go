package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/dgraph-io/ristretto"
)

type Config struct {
	Logger   *slog.Logger
	Embedder Embedder

	BatchSize      int
	Concurrency    int
	EmbedTimeout   time.Duration
	QueryCacheSize int64 // Number of question embeddings kept; 0 uses the default
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1_000
	}
	return nil
}

// Index is an exact L2 nearest-neighbor index. It is safe for concurrent
// searches and cannot be modified after it is built.
type Index struct {
	log     *slog.Logger
	cfg     Config
	dim     int
	texts   []string
	vectors [][]float32
	cache   *ristretto.Cache
}

// Build embeds texts in batches on a bounded worker pool and returns the
// index. Vectors keep the order of texts.
func Build(ctx context.Context, cfg Config, texts []string) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate index config: %w", err)
	}
	start := time.Now()

	pool := pond.NewResultPool[[][]float32](cfg.Concurrency)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for lo := 0; lo < len(texts); lo += cfg.BatchSize {
		batch := texts[lo:min(lo+cfg.BatchSize, len(texts))]
		group.SubmitErr(func() ([][]float32, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.EmbedTimeout)
			defer cancel()
			vecs, err := cfg.Embedder.Embed(ctx, batch)
			if err != nil {
				return nil, err
			}
			if len(vecs) != len(batch) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
			}
			return vecs, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to embed rows: %w", err)
	}
	vectors := make([][]float32, 0, len(texts))
	for _, r := range results {
		vectors = append(vectors, r...)
	}

	ix, err := newIndex(cfg, texts, vectors)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("retrieval: index built", "rows", len(texts), "dimensions", ix.dim, "duration", time.Since(start))
	return ix, nil
}

// FromVectors builds an index from precomputed vectors.
func FromVectors(cfg Config, texts []string, vectors [][]float32) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate index config: %w", err)
	}
	return newIndex(cfg, texts, vectors)
}

func newIndex(cfg Config, texts []string, vectors [][]float32) (*Index, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("got %d texts and %d vectors", len(texts), len(vectors))
	}
	dim := cfg.Embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.QueryCacheSize * 10,
		MaxCost:     cfg.QueryCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	return &Index{
		log:     cfg.Logger,
		cfg:     cfg,
		dim:     dim,
		texts:   slices.Clone(texts),
		vectors: vectors,
		cache:   cache,
	}, nil
}

func (ix *Index) Len() int {
	return len(ix.texts)
}

func (ix *Index) Dimensions() int {
	return ix.dim
}

func (ix *Index) Close() {
	ix.cache.Close()
}

// RetrieveSimilar embeds question and returns its topK nearest row texts.
func (ix *Index) RetrieveSimilar(ctx context.Context, question string, topK int) ([]Hit, error) {
	vec, err := ix.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return ix.Search(vec, topK)
}

func (ix *Index) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	if v, ok := ix.cache.Get(question); ok {
		return v.([]float32), nil
	}

	ctx, cancel := context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
	defer cancel()
	vecs, err := ix.cfg.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vecs) == 0 {
		return nil, ErrEmptyEmbedding
	}

	ix.cache.Set(question, vecs[0], 1)
	ix.cache.Wait()
	return vecs[0], nil
}

// Search returns the min(k, Len()) nearest vectors to query by L2 distance,
// nearest first. Equal distances keep insertion order.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 || len(ix.vectors) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = Hit{Index: i, Text: ix.texts[i], Distance: l2(query, v)}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return hits[:min(k, len(hits))], nil
}

// l2 returns the Euclidean distance between a and b.
func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
