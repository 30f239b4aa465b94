package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loomkit/loom/supersession"
)

// The methods below implement supersession.Repository. Relationship rows are
// keyed by the superseding document's id; tenant scoping rides on the foreign
// key into documents.

// Upsert inserts or replaces the relationship declared by rel.DocumentID.
func (s *Store) Upsert(ctx context.Context, rel supersession.Relationship) error {
	if rel.DocumentID == uuid.Nil {
		return fmt.Errorf("relationship document id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO supersessions (document_id, superseded_path, superseded_document_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE SET
			superseded_path = EXCLUDED.superseded_path,
			superseded_document_id = EXCLUDED.superseded_document_id,
			updated_at = now()`,
		rel.DocumentID, rel.SupersededPath, nullableUUID(rel.SupersededDocumentID))
	if err != nil {
		return fmt.Errorf("upserting supersession for %s: %w", rel.DocumentID, err)
	}
	return nil
}

// GetByDocumentID returns the relationship declared by documentID, or
// (nil, nil) when the document supersedes nothing.
func (s *Store) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*supersession.Relationship, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT document_id, superseded_path, superseded_document_id
		FROM supersessions
		WHERE document_id = $1`, documentID)
	return scanRelationship(row)
}

// GetBySupersededID returns the relationship whose resolved target is
// supersededID, or (nil, nil) when nothing supersedes it.
func (s *Store) GetBySupersededID(ctx context.Context, supersededID uuid.UUID) (*supersession.Relationship, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT document_id, superseded_path, superseded_document_id
		FROM supersessions
		WHERE superseded_document_id = $1`, supersededID)
	return scanRelationship(row)
}

// Delete removes the relationship declared by documentID, if any.
func (s *Store) Delete(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM supersessions WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting supersession for %s: %w", documentID, err)
	}
	return nil
}

// List returns every relationship belonging to the tenant, for offline chain
// validation.
func (s *Store) List(ctx context.Context) ([]supersession.Relationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.document_id, r.superseded_path, r.superseded_document_id
		FROM supersessions r
		JOIN documents d ON d.id = r.document_id
		WHERE d.project = $1 AND d.branch = $2 AND d.path_hash = $3
		ORDER BY r.document_id`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash)
	if err != nil {
		return nil, fmt.Errorf("listing supersessions: %w", err)
	}
	defer rows.Close()

	var rels []supersession.Relationship
	for rows.Next() {
		rel, err := scanRelationshipValues(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning supersession row: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading supersession rows: %w", err)
	}
	return rels, nil
}

func scanRelationship(row pgx.Row) (*supersession.Relationship, error) {
	rel, err := scanRelationshipValues(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching supersession: %w", err)
	}
	return &rel, nil
}

func scanRelationshipValues(row pgx.Row) (supersession.Relationship, error) {
	var (
		rel    supersession.Relationship
		target *uuid.UUID
	)
	if err := row.Scan(&rel.DocumentID, &rel.SupersededPath, &target); err != nil {
		return supersession.Relationship{}, err
	}
	if target != nil {
		rel.SupersededDocumentID = uuid.NullUUID{UUID: *target, Valid: true}
	}
	return rel, nil
}

// nullableUUID converts a uuid.NullUUID to a driver-friendly value.
func nullableUUID(id uuid.NullUUID) any {
	if !id.Valid {
		return nil
	}
	return id.UUID
}
