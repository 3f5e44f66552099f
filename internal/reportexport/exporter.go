package reportexport

import (
	"context"

	"github.com/animus-labs/whlobf/internal/domain"
)

// Exporter sends run reports to external systems.
type Exporter interface {
	Export(ctx context.Context, report domain.RunReport) error
}

// NoopExporter drops every report.
type NoopExporter struct{}

func (NoopExporter) Export(ctx context.Context, report domain.RunReport) error {
	return nil
}
