package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/loomkit/loom/knowledge"
	"github.com/loomkit/loom/retrieval"
)

// VectorDimension is the embedding width the documents table is declared
// with. Embeddings of any other width are rejected at write time.
const VectorDimension = 768

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, path, title, summary, content, char_count, doc_type, promotion, updated_at`

// Store provides tenant-scoped access to documents, links, and supersession
// relationships. A Store never sees rows belonging to another tenant.
type Store struct {
	pool   *pgxpool.Pool
	tenant knowledge.TenantID
	logger *slog.Logger
}

// NewStore creates a Store bound to one tenant.
func NewStore(pool *pgxpool.Pool, tenant knowledge.TenantID, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if tenant.Project == "" {
		return nil, fmt.Errorf("tenant project is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:   pool,
		tenant: tenant,
		logger: logger.With("component", "postgres"),
	}, nil
}

// Tenant returns the tenant this store is bound to.
func (s *Store) Tenant() knowledge.TenantID { return s.tenant }

// Document is the write-side representation used by UpsertDocument.
// CharCount is derived from Content.
type Document struct {
	Path      string
	Title     string
	Summary   string
	Content   string
	DocType   string
	Promotion knowledge.PromotionLevel
	Embedding []float32
}

// UpsertDocument inserts the document or replaces it when the tenant already
// holds the path. Returns the document's id.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (uuid.UUID, error) {
	if doc.Path == "" {
		return uuid.Nil, fmt.Errorf("document path is required")
	}
	if len(doc.Embedding) != VectorDimension {
		return uuid.Nil, fmt.Errorf("embedding has %d dimensions, want %d", len(doc.Embedding), VectorDimension)
	}
	promotion := doc.Promotion
	if promotion == "" {
		promotion = knowledge.PromotionStandard
	}
	if !promotion.Valid() {
		return uuid.Nil, fmt.Errorf("invalid promotion level %q", promotion)
	}

	vec := pgvector.NewVector(doc.Embedding)
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (project, branch, path_hash, path, title, summary, content, char_count, doc_type, promotion, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (project, branch, path_hash, path) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			char_count = EXCLUDED.char_count,
			doc_type = EXCLUDED.doc_type,
			promotion = EXCLUDED.promotion,
			embedding = EXCLUDED.embedding,
			updated_at = now()
		RETURNING id`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash,
		doc.Path, doc.Title, doc.Summary, doc.Content,
		utf8.RuneCountInString(doc.Content), doc.DocType, string(promotion), vec,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting document %q: %w", doc.Path, err)
	}

	s.logger.Debug("upserted document", "path", doc.Path, "id", id)
	return id, nil
}

// DeleteByPath removes the document at path. Supersession rows referencing it
// are cleaned up by foreign keys; link rows are the caller's concern.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE project = $1 AND branch = $2 AND path_hash = $3 AND path = $4`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash, path)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", path, err)
	}
	return nil
}

// Search performs cosine-similarity search ordered by descending score.
// Implements retrieval.VectorSearcher. The filter's tenant takes precedence
// over the store's own so a retriever constructed for another tenant cannot
// silently read this one's rows.
func (s *Store) Search(ctx context.Context, embedding []float32, topN int, filter knowledge.SearchFilter) ([]retrieval.Match, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("query embedding has %d dimensions, want %d", len(embedding), VectorDimension)
	}
	if topN <= 0 {
		return nil, nil
	}

	tenant := filter.Tenant
	if tenant == (knowledge.TenantID{}) {
		tenant = s.tenant
	}

	vec := pgvector.NewVector(embedding)
	var sb strings.Builder
	sb.WriteString(`SELECT ` + documentCols + `, 1 - (embedding <=> $1) AS score
		FROM documents
		WHERE project = $2 AND branch = $3 AND path_hash = $4`)
	args := []any{vec, tenant.Project, tenant.Branch, tenant.PathHash}

	if filter.MinPromotion != "" && filter.MinPromotion != knowledge.PromotionStandard {
		levels := knowledge.PromotionsAtOrAbove(filter.MinPromotion)
		tags := make([]string, len(levels))
		for i, l := range levels {
			tags[i] = string(l)
		}
		args = append(args, tags)
		fmt.Fprintf(&sb, " AND promotion = ANY($%d)", len(args))
	}
	if len(filter.DocTypes) > 0 {
		args = append(args, filter.DocTypes)
		fmt.Fprintf(&sb, " AND doc_type = ANY($%d)", len(args))
	}

	args = append(args, topN)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []retrieval.Match
	for rows.Next() {
		var (
			doc   knowledge.RetrievedDocument
			score float64
		)
		if err := scanDocument(rows, &doc, &score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		matches = append(matches, retrieval.Match{Document: doc, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return matches, nil
}

// GetByPaths returns the documents among paths that exist for the tenant.
// Unknown paths are silently absent. Implements part of
// assembler.DocumentRepository.
func (s *Store) GetByPaths(ctx context.Context, tenant knowledge.TenantID, paths []string) ([]knowledge.RetrievedDocument, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+`
		FROM documents
		WHERE project = $1 AND branch = $2 AND path_hash = $3 AND path = ANY($4)`,
		tenant.Project, tenant.Branch, tenant.PathHash, paths)
	if err != nil {
		return nil, fmt.Errorf("fetching documents by path: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListCritical returns every critical-promotion document for the tenant,
// ordered by path for deterministic assembly.
func (s *Store) ListCritical(ctx context.Context, tenant knowledge.TenantID) ([]knowledge.RetrievedDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+`
		FROM documents
		WHERE project = $1 AND branch = $2 AND path_hash = $3 AND promotion = $4
		ORDER BY path`,
		tenant.Project, tenant.Branch, tenant.PathHash, string(knowledge.PromotionCritical))
	if err != nil {
		return nil, fmt.Errorf("listing critical documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// LookupByPath resolves a path to its document id. Implements
// supersession.PathResolver.
func (s *Store) LookupByPath(ctx context.Context, path string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM documents
		WHERE project = $1 AND branch = $2 AND path_hash = $3 AND path = $4`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash, path).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolving path %q: %w", path, err)
	}
	return id, true, nil
}

// scanDocument scans one documentCols row. extra receives trailing columns
// such as the similarity score; pass none for plain document selects.
func scanDocument(row pgx.Row, doc *knowledge.RetrievedDocument, extra ...any) error {
	var promotion string
	targets := []any{
		&doc.ID, &doc.Path, &doc.Title, &doc.Summary, &doc.Content,
		&doc.CharCount, &doc.DocType, &promotion, &doc.UpdatedAt,
	}
	targets = append(targets, extra...)
	if err := row.Scan(targets...); err != nil {
		return err
	}
	// Stored tags are kept verbatim; the retriever decides how to treat
	// unrecognized ones.
	doc.Promotion = knowledge.PromotionLevel(promotion)
	return nil
}

func collectDocuments(rows pgx.Rows) ([]knowledge.RetrievedDocument, error) {
	var docs []knowledge.RetrievedDocument
	for rows.Next() {
		var doc knowledge.RetrievedDocument
		if err := scanDocument(rows, &doc); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return docs, nil
}
