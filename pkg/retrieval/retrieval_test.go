package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/malbeclabs/assetbot/internal/logger"
	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder returns preset vectors by text and counts calls.
type fixedEmbedder struct {
	dim     int
	vectors map[string][]float32
	calls   atomic.Int32
	err     error
}

func (f *fixedEmbedder) Dimensions() int { return f.dim }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, errors.New("unknown text " + t)
		}
		out[i] = v
	}
	return out, nil
}

func testIndex(t *testing.T, emb Embedder, texts []string, vectors [][]float32) *Index {
	t.Helper()
	ix, err := FromVectors(Config{Logger: logger.Discard(), Embedder: emb}, texts, vectors)
	require.NoError(t, err)
	t.Cleanup(ix.Close)
	return ix
}

func TestRetrieval_Index_Search(t *testing.T) {
	t.Parallel()

	texts := []string{"a", "b", "c", "d", "e"}
	vectors := [][]float32{{5, 0}, {1, 0}, {3, 0}, {0, 2}, {10, 10}}
	ix := testIndex(t, &fixedEmbedder{dim: 2}, texts, vectors)

	t.Run("top 3 in non-decreasing distance", func(t *testing.T) {
		t.Parallel()

		hits, err := ix.Search([]float32{0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		require.Equal(t, "b", hits[0].Text)
		require.Equal(t, "d", hits[1].Text)
		require.Equal(t, "c", hits[2].Text)
		for i := 1; i < len(hits); i++ {
			require.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
		}
		require.InDelta(t, 1.0, hits[0].Distance, 1e-6)
	})

	t.Run("k larger than corpus returns everything once", func(t *testing.T) {
		t.Parallel()

		hits, err := ix.Search([]float32{0, 0}, 50)
		require.NoError(t, err)
		require.Len(t, hits, len(texts))
		seen := map[int]bool{}
		for _, h := range hits {
			require.False(t, seen[h.Index], "duplicate hit %d", h.Index)
			seen[h.Index] = true
		}
	})

	t.Run("non-positive k", func(t *testing.T) {
		t.Parallel()

		hits, err := ix.Search([]float32{0, 0}, 0)
		require.NoError(t, err)
		require.Empty(t, hits)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		t.Parallel()

		_, err := ix.Search([]float32{0, 0, 0}, 3)
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestRetrieval_Index_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	texts := []string{"first", "second", "third", "fourth"}
	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	ix := testIndex(t, &fixedEmbedder{dim: 2}, texts, vectors)

	hits, err := ix.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, []int{hits[0].Index, hits[1].Index, hits[2].Index})
}

func TestRetrieval_Index_RetrieveSimilar(t *testing.T) {
	t.Parallel()

	emb := &fixedEmbedder{dim: 2, vectors: map[string][]float32{
		"row one":  {0, 0},
		"row two":  {1, 1},
		"question": {1, 1},
	}}
	ix, err := Build(context.Background(), Config{Logger: logger.Discard(), Embedder: emb, BatchSize: 1}, []string{"row one", "row two"})
	require.NoError(t, err)
	t.Cleanup(ix.Close)
	require.Equal(t, 2, ix.Len())
	buildCalls := emb.calls.Load()
	require.Equal(t, int32(2), buildCalls)

	hits, err := ix.RetrieveSimilar(context.Background(), "question", 1)
	require.NoError(t, err)
	require.Equal(t, []Hit{{Index: 1, Text: "row two", Distance: 0}}, hits)

	_, err = ix.RetrieveSimilar(context.Background(), "question", 1)
	require.NoError(t, err)
	require.LessOrEqual(t, emb.calls.Load(), buildCalls+2)
}

func TestRetrieval_Build_Errors(t *testing.T) {
	t.Parallel()

	t.Run("embedder failure", func(t *testing.T) {
		t.Parallel()

		emb := &fixedEmbedder{dim: 2, err: errors.New("model offline")}
		_, err := Build(context.Background(), Config{Logger: logger.Discard(), Embedder: emb}, []string{"x"})
		require.ErrorContains(t, err, "model offline")
	})

	t.Run("wrong dimensions", func(t *testing.T) {
		t.Parallel()

		emb := &fixedEmbedder{dim: 3, vectors: map[string][]float32{"x": {1, 2}}}
		_, err := Build(context.Background(), Config{Logger: logger.Discard(), Embedder: emb}, []string{"x"})
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("missing embedder", func(t *testing.T) {
		t.Parallel()

		_, err := Build(context.Background(), Config{Logger: logger.Discard()}, nil)
		require.Error(t, err)
	})
}

func TestRetrieval_HashEmbedder(t *testing.T) {
	t.Parallel()

	emb := NewHashEmbedder(4096)
	texts := []string{
		"equipment_id: EQ-3115 | location: Warehouse 4",
		"equipment_id: EQ-2001 | location: Site B",
		"equipment_id: EQ-7777 | location: Dock 9",
	}
	ix, err := Build(context.Background(), Config{Logger: logger.Discard(), Embedder: emb, BatchSize: 2, Concurrency: 2}, texts)
	require.NoError(t, err)
	t.Cleanup(ix.Close)

	again, err := emb.Embed(context.Background(), texts[:1])
	require.NoError(t, err)
	first, err := emb.Embed(context.Background(), texts[:1])
	require.NoError(t, err)
	require.Equal(t, first, again)

	hits, err := ix.RetrieveSimilar(context.Background(), "Where is EQ-3115 located? warehouse", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, texts[0], hits[0].Text)
}

func TestRetrieval_RowText(t *testing.T) {
	t.Parallel()

	got := RowText(
		[]string{"Equipment ID", "Location", "Cost", "Notes", "uploaded_file_data"},
		store.Row{"Equipment ID": "EQ-3115", "Location": "Warehouse 4", "Cost": 12.5, "Notes": nil, "uploaded_file_data": []byte{1, 2}},
	)
	require.Equal(t, "equipment_id: EQ-3115 | location: Warehouse 4 | cost: 12.5 | notes: ", got)
}

func TestRetrieval_LoadRowTexts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "assets.db")
	w, err := store.OpenWriter(ctx, store.WriterConfig{Logger: logger.Discard(), Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	sheet, err := store.ReadCSV(strings.NewReader("Equipment ID,Location\nEQ-1,A\nEQ-2,B\n"))
	require.NoError(t, err)
	_, err = w.LoadSheet(ctx, sheet, "filled_asset_data")
	require.NoError(t, err)

	s, err := store.Open(ctx, store.Config{Logger: logger.Discard(), Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	texts, err := LoadRowTexts(ctx, s, "filled_asset_data")
	require.NoError(t, err)
	require.Equal(t, []string{
		"equipment_id: EQ-1 | location: A | uploaded_file_name:  | uploaded_file_type:  | uploaded_file_data:  | upload_date: ",
		"equipment_id: EQ-2 | location: B | uploaded_file_name:  | uploaded_file_type:  | uploaded_file_data:  | upload_date: ",
	}, texts)
}

func TestRetrieval_OllamaEmbedder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "all-minilm", req.Model)
		out := ollamaEmbedResponse{}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	emb, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Dimensions: 3})
	require.NoError(t, err)
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[1])

	bad, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	_, err = bad.Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewOllamaEmbedder(OllamaConfig{})
	require.Error(t, err)
}
