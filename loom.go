// Package loom assembles relevance-ranked knowledge contexts from a
// pgvector-backed document store. It wires vector retrieval, promotion-aware
// ranking, link-graph expansion, and supersession tracking behind a single
// Engine.
package loom

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomkit/loom/assembler"
	"github.com/loomkit/loom/config"
	"github.com/loomkit/loom/knowledge"
	"github.com/loomkit/loom/linkgraph"
	"github.com/loomkit/loom/postgres"
	"github.com/loomkit/loom/retrieval"
	"github.com/loomkit/loom/supersession"
)

// Engine is the top-level entry point. It owns the connection pool and the
// in-memory link graph; everything else is stateless over them.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	pool      *pgxpool.Pool
	store     *postgres.Store
	graph     *linkgraph.Graph
	tracker   *supersession.Tracker
	assembler *assembler.Assembler
	defaults  knowledge.RetrievalOptions
	logger    *slog.Logger
}

// Open connects to PostgreSQL, rebuilds the link graph from durable link
// rows, and returns a ready Engine. The caller owns Close.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	engine, err := NewEngine(ctx, pool, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	// Open created the pool, so Close tears it down.
	engine.pool = pool
	return engine, nil
}

// NewEngine wires an Engine over an existing pool. The pool stays owned by
// the caller; Close does not touch it.
func NewEngine(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tenant := cfg.Tenant()

	store, err := postgres.NewStore(pool, tenant, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	graph := linkgraph.New(logger)

	tracker, err := supersession.NewTracker(store, store, cfg.MaxChainDepth, logger)
	if err != nil {
		return nil, fmt.Errorf("creating supersession tracker: %w", err)
	}

	boosts := retrieval.Boosts{
		Critical:  float32(cfg.CriticalBoost),
		Important: float32(cfg.ImportantBoost),
	}
	retriever, err := retrieval.New(store, tenant, boosts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	asm, err := assembler.New(retriever, graph, tracker, store, tenant, logger)
	if err != nil {
		return nil, fmt.Errorf("creating assembler: %w", err)
	}

	engine := &Engine{
		store:     store,
		graph:     graph,
		tracker:   tracker,
		assembler: asm,
		defaults:  cfg.RetrievalOptions(),
		logger:    logger.With("component", "engine"),
	}

	if err := engine.RebuildGraph(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

// Close releases the connection pool if the Engine owns it.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// Defaults returns the configured retrieval options, for callers that want
// to tweak a field or two before a query.
func (e *Engine) Defaults() knowledge.RetrievalOptions { return e.defaults }

// Graph exposes the in-memory link graph for inspection (cycle enumeration,
// edge queries). Mutations should go through the indexing hooks instead.
func (e *Engine) Graph() *linkgraph.Graph { return e.graph }

// Tracker exposes the supersession tracker for chain queries and validation.
func (e *Engine) Tracker() *supersession.Tracker { return e.tracker }

// AssembleContext runs the full pipeline: direct retrieval, critical
// injection, link expansion, supersession annotation, dedup, and ordering.
// A zero-value opts uses the configured defaults.
func (e *Engine) AssembleContext(ctx context.Context, queryEmbedding []float32, opts knowledge.RetrievalOptions) (*assembler.Context, error) {
	return e.assembler.AssembleContext(ctx, queryEmbedding, e.withDefaults(opts))
}

// RetrieveRelevantDocuments performs plain threshold-filtered, boost-ranked
// retrieval with no link expansion or critical injection.
func (e *Engine) RetrieveRelevantDocuments(ctx context.Context, queryEmbedding []float32, opts knowledge.RetrievalOptions) (retrieval.Result, error) {
	return e.assembler.RetrieveRelevantDocuments(ctx, queryEmbedding, e.withDefaults(opts))
}

// RetrieveWithLinkedDocuments performs retrieval plus link expansion, without
// critical injection or supersession annotation.
func (e *Engine) RetrieveWithLinkedDocuments(ctx context.Context, queryEmbedding []float32, opts knowledge.RetrievalOptions) (retrieval.Result, []knowledge.LinkedDocument, error) {
	return e.assembler.RetrieveWithLinkedDocuments(ctx, queryEmbedding, e.withDefaults(opts))
}

func (e *Engine) withDefaults(opts knowledge.RetrievalOptions) knowledge.RetrievalOptions {
	if opts.IsZero() {
		return e.defaults
	}
	return opts
}

// IndexInput describes one document for IndexDocument. Links lists outgoing
// link target paths; SupersededPath optionally names the older document this
// one replaces.
type IndexInput struct {
	Document       postgres.Document
	Links          []string
	SupersededPath string
}

// IndexDocument upserts the document, replaces its durable and in-memory
// outgoing links, and registers its supersession declaration. A cyclic
// supersession declaration is logged and dropped; the document itself still
// indexes.
func (e *Engine) IndexDocument(ctx context.Context, in IndexInput) (uuid.UUID, error) {
	id, err := e.store.UpsertDocument(ctx, in.Document)
	if err != nil {
		return uuid.Nil, err
	}

	if err := e.store.ReplaceLinks(ctx, in.Document.Path, in.Links); err != nil {
		return uuid.Nil, err
	}
	e.graph.OnDocumentIndexed(in.Document.Path, in.Links)

	if err := e.tracker.OnDocumentIndexed(ctx, id, in.SupersededPath); err != nil {
		return uuid.Nil, fmt.Errorf("registering supersession for %q: %w", in.Document.Path, err)
	}

	// A newly indexed document may be the target other documents declared
	// before it existed.
	if resolved, err := e.tracker.ResolveDangling(ctx); err != nil {
		e.logger.Warn("resolving dangling supersessions failed", "error", err)
	} else if resolved > 0 {
		e.logger.Debug("resolved dangling supersessions", "count", resolved)
	}

	return id, nil
}

// DeleteDocument removes the document at path along with its link rows,
// graph vertex, and supersession membership. Deleting an unknown path is a
// no-op.
func (e *Engine) DeleteDocument(ctx context.Context, path string) error {
	id, found, err := e.store.LookupByPath(ctx, path)
	if err != nil {
		return err
	}

	if found {
		if err := e.tracker.OnDocumentDeleted(ctx, id); err != nil {
			return fmt.Errorf("removing %q from supersession chain: %w", path, err)
		}
	}
	if err := e.store.DeleteByPath(ctx, path); err != nil {
		return err
	}
	if err := e.store.DeleteLinks(ctx, path); err != nil {
		return err
	}
	e.graph.OnDocumentDeleted(path)
	return nil
}

// RebuildGraph reloads the in-memory link graph from durable link rows.
func (e *Engine) RebuildGraph(ctx context.Context) error {
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return fmt.Errorf("loading links: %w", err)
	}
	e.graph.OnFullRebuild(links)
	e.logger.Debug("link graph rebuilt",
		"vertices", e.graph.VertexCount(), "edges", e.graph.EdgeCount())
	return nil
}

// Validate reports structural problems across the knowledge base: link
// cycles plus supersession chain issues.
func (e *Engine) Validate(ctx context.Context) ([][]string, []supersession.Issue, error) {
	cycles := e.graph.EnumerateCycles()
	issues, err := e.tracker.ValidateAllChains(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cycles, issues, nil
}
