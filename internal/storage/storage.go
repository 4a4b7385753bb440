package storage

import (
	"context"
	"time"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is the outcome of one download run.
type RunRecord struct {
	RunID      string
	Input      string
	Title      string
	OutputPath string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type RunReadRepository interface {
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

type RunWriteRepository interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

type RunRepository interface {
	RunReadRepository
	RunWriteRepository
}
