package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReplaceLinks atomically replaces the outgoing links of sourcePath with
// targets. Duplicate and self-referential targets are dropped. The durable
// rows mirror the in-memory graph so it can be rebuilt on startup.
func (s *Store) ReplaceLinks(ctx context.Context, sourcePath string, targets []string) error {
	if sourcePath == "" {
		return fmt.Errorf("source path is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning link transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("link transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `
		DELETE FROM document_links
		WHERE project = $1 AND branch = $2 AND path_hash = $3 AND source_path = $4`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash, sourcePath); err != nil {
		return fmt.Errorf("clearing links for %q: %w", sourcePath, err)
	}

	seen := make(map[string]struct{}, len(targets))
	batch := &pgx.Batch{}
	for _, target := range targets {
		if target == "" || target == sourcePath {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		batch.Queue(`
			INSERT INTO document_links (project, branch, path_hash, source_path, target_path)
			VALUES ($1, $2, $3, $4, $5)`,
			s.tenant.Project, s.tenant.Branch, s.tenant.PathHash, sourcePath, target)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting links for %q: %w", sourcePath, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing link transaction: %w", err)
	}
	return nil
}

// DeleteLinks removes every link row touching path, in either direction.
func (s *Store) DeleteLinks(ctx context.Context, path string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM document_links
		WHERE project = $1 AND branch = $2 AND path_hash = $3
		  AND (source_path = $4 OR target_path = $4)`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash, path)
	if err != nil {
		return fmt.Errorf("deleting links for %q: %w", path, err)
	}
	return nil
}

// AllLinks returns the tenant's full adjacency as source path to targets,
// for rebuilding the in-memory graph.
func (s *Store) AllLinks(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_path, target_path
		FROM document_links
		WHERE project = $1 AND branch = $2 AND path_hash = $3
		ORDER BY source_path, target_path`,
		s.tenant.Project, s.tenant.Branch, s.tenant.PathHash)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}
		links[source] = append(links[source], target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading link rows: %w", err)
	}
	return links, nil
}
