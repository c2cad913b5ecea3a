// Package semindex is the optional semantic retrieval layer over the player
// knowledge base: each record is embedded into a pgvector-backed PostgreSQL
// table, and commentary questions retrieve the nearest records by cosine
// distance. It complements the lexical ranking in the knowledge store for
// questions that describe a player without naming them.
package semindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/embeddings"
)

// Index is the pgvector-backed semantic index. All methods are safe for
// concurrent use.
type Index struct {
	pool *pgxpool.Pool
	emb  embeddings.Provider
}

// Result pairs a retrieved record with its cosine distance to the query.
type Result struct {
	Record   knowledge.Record
	Distance float64
}

// Open connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and runs Migrate with the provider's dimensionality.
func Open(ctx context.Context, dsn string, emb embeddings.Provider) (*Index, error) {
	if emb == nil {
		return nil, fmt.Errorf("semindex: embeddings provider must not be nil")
	}
	dims := emb.Dimensions()
	if dims <= 0 {
		return nil, fmt.Errorf("semindex: provider %q reports no dimensions", emb.ModelID())
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("semindex: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("semindex: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("semindex: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, err
	}
	return &Index{pool: pool, emb: emb}, nil
}

// Close releases the connection pool.
func (ix *Index) Close() {
	ix.pool.Close()
}

// IndexStore embeds every record in store and upserts it. Existing rows with
// the same id are replaced, so re-indexing after a knowledge base update is
// a single call.
func (ix *Index) IndexStore(ctx context.Context, store *knowledge.Store) error {
	records := store.Records()
	if len(records) == 0 {
		return nil
	}

	summaries := make([]string, len(records))
	for i, rec := range records {
		summaries[i] = recordSummary(rec)
	}
	vecs, err := ix.emb.EmbedBatch(ctx, summaries)
	if err != nil {
		return fmt.Errorf("semindex: embed records: %w", err)
	}

	const q = `
		INSERT INTO players (id, name, summary, record, embedding, model_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
		    name       = EXCLUDED.name,
		    summary    = EXCLUDED.summary,
		    record     = EXCLUDED.record,
		    embedding  = EXCLUDED.embedding,
		    model_id   = EXCLUDED.model_id,
		    updated_at = now()`

	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("semindex: marshal record %q: %w", rec.ID, err)
		}
		_, err = ix.pool.Exec(ctx, q,
			rec.ID,
			rec.Name,
			summaries[i],
			payload,
			pgvector.NewVector(vecs[i]),
			ix.emb.ModelID(),
		)
		if err != nil {
			return fmt.Errorf("semindex: index record %q: %w", rec.ID, err)
		}
	}
	return nil
}

// Retrieve embeds query and returns the topK records closest by cosine
// distance, most similar first.
func (ix *Index) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := ix.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semindex: embed query: %w", err)
	}

	const q = `
		SELECT record, embedding <=> $1 AS distance
		FROM   players
		ORDER  BY distance
		LIMIT  $2`

	rows, err := ix.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("semindex: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			payload []byte
			r       Result
		)
		if err := row.Scan(&payload, &r.Distance); err != nil {
			return Result{}, err
		}
		if err := json.Unmarshal(payload, &r.Record); err != nil {
			return Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("semindex: scan rows: %w", err)
	}
	return results, nil
}

// recordSummary renders the text that gets embedded for a record: the name
// forms plus the attributes a commentary question could describe.
func recordSummary(rec knowledge.Record) string {
	parts := []string{strings.Join(rec.Names(), ", ")}
	if rec.Position != "" {
		parts = append(parts, rec.Position)
	}
	if rec.Nationality != "" {
		parts = append(parts, rec.Nationality)
	}
	if len(rec.Clubs) > 0 {
		parts = append(parts, "clubs: "+strings.Join(rec.Clubs, ", "))
	}
	if len(rec.Leagues) > 0 {
		parts = append(parts, "leagues: "+strings.Join(rec.Leagues, ", "))
	}
	return strings.Join(parts, ". ")
}
