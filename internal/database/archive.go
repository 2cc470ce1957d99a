package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
)

// Archive writes built snapshots to Postgres. It is write-only: nothing in
// the service reads snapshots back from it.
type Archive struct {
	db   *DB
	keep int
}

// NewArchive creates an archive that retains the newest keep snapshots per
// resource; keep <= 0 retains everything.
func NewArchive(db *DB, keep int) *Archive {
	return &Archive{db: db, keep: keep}
}

// ArchiveSnapshot stores the snapshot header and all its rows in one
// transaction. Archiving the same snapshot twice is a no-op.
func (a *Archive) ArchiveSnapshot(ctx context.Context, s *pipeline.Snapshot) error {
	quality, err := json.Marshal(s.Report.CountsByKind())
	if err != nil {
		return fmt.Errorf("failed to marshal quality counts: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, resource_id, fetched_at, built_at, record_count, page_count, quality
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (snapshot_id) DO NOTHING
	`, s.ID.String(), s.ResourceID, s.FetchedAt, s.BuiltAt, s.Table.Len(), s.Pages, string(quality))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("observations", observationColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	id := s.ID.String()
	for _, row := range s.Table.Rows() {
		if _, err := stmt.ExecContext(ctx, observationValues(id, row)...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy record %d: %w", row.RecordID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	a.db.logger.Info("archived snapshot",
		"snapshot_id", id, "resource_id", s.ResourceID, "records", s.Table.Len())

	if a.keep > 0 {
		pruned, err := a.Prune(ctx, s.ResourceID, a.keep)
		if err != nil {
			return err
		}
		if pruned > 0 {
			a.db.logger.Info("pruned archived snapshots", "resource_id", s.ResourceID, "deleted", pruned)
		}
	}
	return nil
}

// Prune deletes all but the newest keep snapshots of resourceID.
func (a *Archive) Prune(ctx context.Context, resourceID string, keep int) (int64, error) {
	res, err := a.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE resource_id = $1 AND snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots
			WHERE resource_id = $1
			ORDER BY fetched_at DESC
			LIMIT $2
		)
	`, resourceID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
