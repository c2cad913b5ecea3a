package semindex_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge/semindex"
	embmock "github.com/ATAboukhadra/T30-Mazad/pkg/provider/embeddings/mock"
)

const testDims = 4

// testDSN returns the integration database DSN from the environment, or
// skips the test when MAZAD_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MAZAD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAZAD_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// axisEmbedder maps a few known words onto unit axes so cosine distance is
// predictable in tests.
func axisEmbedder() *embmock.Provider {
	axes := map[string]int{
		"John Smith":    0,
		"Jane Kowalski": 1,
		"defender":      0,
		"midfielder":    1,
	}
	return &embmock.Provider{
		DimensionsValue: testDims,
		ModelIDValue:    "test-embed",
		EmbedFunc: func(text string) []float32 {
			vec := make([]float32, testDims)
			lower := strings.ToLower(text)
			for word, axis := range axes {
				if strings.Contains(lower, strings.ToLower(word)) {
					vec[axis] = 1
				}
			}
			return vec
		},
	}
}

func TestIndexAndRetrieve(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	ix, err := semindex.Open(ctx, dsn, axisEmbedder())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(ix.Close)

	store, err := knowledge.New([]knowledge.Record{
		{ID: "1", Name: "John Smith", Position: "Defender"},
		{ID: "2", Name: "Jane Kowalski", Position: "Midfielder"},
	})
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}

	if err := ix.IndexStore(ctx, store); err != nil {
		t.Fatalf("IndexStore: %v", err)
	}
	// Idempotent: a second index run upserts instead of failing.
	if err := ix.IndexStore(ctx, store); err != nil {
		t.Fatalf("IndexStore (again): %v", err)
	}

	results, err := ix.Retrieve(ctx, "which defender cleared the ball", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Retrieve returned %d results, want 1", len(results))
	}
	if results[0].Record.ID != "1" {
		t.Errorf("top result = %s, want record 1 (the defender)", results[0].Record.ID)
	}
}

func TestRetrieve_ZeroTopK(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	ix, err := semindex.Open(ctx, dsn, axisEmbedder())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(ix.Close)

	results, err := ix.Retrieve(ctx, "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if results != nil {
		t.Errorf("Retrieve(topK 0) = %v, want nil", results)
	}
}
