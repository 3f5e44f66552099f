package repo

import (
	"context"
	"errors"

	"github.com/animus-labs/whlobf/internal/domain"
)

var ErrNotFound = errors.New("not_found")

type RunFilter struct {
	Source    string
	Succeeded *bool
	Limit     int
}

// RunReportRepository persists pipeline run reports. Insert is idempotent on
// the run id and reports whether a new row was written.
type RunReportRepository interface {
	Insert(ctx context.Context, report domain.RunReport) (bool, error)
	Get(ctx context.Context, runID string) (domain.RunReport, error)
	List(ctx context.Context, filter RunFilter) ([]domain.RunReport, error)
}
