package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/bilidown/internal/storage"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(dbConn *sql.DB) *RunRepository {
	return &RunRepository{db: dbConn}
}

var _ storage.RunRepository = (*RunRepository)(nil)

// RecordRun inserts the record, replacing an earlier record with the same run id.
func (r *RunRepository) RecordRun(ctx context.Context, rec storage.RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, input, title, output_path, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			title = excluded.title,
			output_path = excluded.output_path,
			status = excluded.status,
			error = excluded.error,
			finished_at = excluded.finished_at
	`,
		rec.RunID, rec.Input, rec.Title, rec.OutputPath, rec.Status, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339), rec.FinishedAt.UTC().Format(time.RFC3339),
	)

	return err
}

// RecentRuns returns up to limit runs, newest first.
func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, input, title, output_path, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []storage.RunRecord

	for rows.Next() {
		var (
			rec                 storage.RunRecord
			startedAt, finished string
		)

		if err := rows.Scan(&rec.RunID, &rec.Input, &rec.Title, &rec.OutputPath, &rec.Status, &rec.Error, &startedAt, &finished); err != nil {
			return nil, err
		}

		// Unparseable timestamps are left zero rather than failing the listing.
		rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finished)

		runs = append(runs, rec)
	}

	return runs, rows.Err()
}
