package reportexport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/animus-labs/whlobf/internal/domain"
)

// NDJSONExporter writes run reports as newline-delimited JSON, one report
// per line.
type NDJSONExporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewNDJSONExporter(w io.Writer) *NDJSONExporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONExporter{enc: enc}
}

func (e *NDJSONExporter) Export(ctx context.Context, report domain.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(exportReportFromDomain(report))
}

type exportStage struct {
	Name       string `json:"name"`
	Executed   bool   `json:"executed"`
	Succeeded  bool   `json:"succeeded"`
	Failure    string `json:"failure,omitempty"`
	StdoutPath string `json:"stdout_path,omitempty"`
	StderrPath string `json:"stderr_path,omitempty"`
}

type exportReport struct {
	RunID       string        `json:"run_id"`
	Source      string        `json:"source"`
	Output      string        `json:"output,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	FailedStage string        `json:"failed_stage,omitempty"`
	StartedAt   string        `json:"started_at"`
	FinishedAt  string        `json:"finished_at"`
	Stages      []exportStage `json:"stages"`
}

func exportReportFromDomain(report domain.RunReport) exportReport {
	stages := make([]exportStage, 0, len(report.Stages))
	for _, s := range report.Stages {
		stages = append(stages, exportStage{
			Name:       s.Name,
			Executed:   s.Executed,
			Succeeded:  s.Succeeded,
			Failure:    string(s.Failure),
			StdoutPath: s.StdoutPath,
			StderrPath: s.StderrPath,
		})
	}
	out := exportReport{
		RunID:      report.RunID,
		Source:     report.Source,
		Output:     report.Output,
		Succeeded:  report.Succeeded,
		StartedAt:  report.StartedAt.UTC().Format(timeFormatRFC3339Nano),
		FinishedAt: report.FinishedAt.UTC().Format(timeFormatRFC3339Nano),
		Stages:     stages,
	}
	if failed, ok := report.FailedStage(); ok {
		out.FailedStage = failed.Name
	}
	return out
}

const timeFormatRFC3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
