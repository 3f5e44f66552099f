package reportexport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/whlobf/internal/domain"
)

func TestNDJSONExporterWritesOneLinePerReport(t *testing.T) {
	var buf bytes.Buffer
	exp := NewNDJSONExporter(&buf)
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	reports := []domain.RunReport{
		{
			RunID:      "run-1",
			Source:     "a.py",
			Succeeded:  false,
			StartedAt:  started,
			FinishedAt: started.Add(time.Second),
			Stages: []domain.StageRecord{
				{Name: "prep", Executed: true, Succeeded: true},
				{Name: "transpile", Executed: true, Failure: domain.StageFailureError},
				{Name: "compile"},
			},
		},
		{RunID: "run-2", Source: "b.py", Succeeded: true, Output: "b.so"},
	}
	for _, r := range reports {
		if err := exp.Export(context.Background(), r); err != nil {
			t.Fatalf("Export() err=%v", err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(lines))
	}
	var first exportReport
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.FailedStage != "transpile" || first.StartedAt != "2026-10-01T12:00:00Z" || len(first.Stages) != 3 {
		t.Fatalf("first=%+v", first)
	}
	if first.Stages[1].Failure != "error" || first.Stages[2].Executed {
		t.Fatalf("stages=%+v", first.Stages)
	}
	if !strings.Contains(lines[1], `"output":"b.so"`) || strings.Contains(lines[1], "failed_stage") {
		t.Fatalf("second=%s", lines[1])
	}
}

func TestNDJSONExporterHonorsCancellation(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewNDJSONExporter(&buf).Export(ctx, domain.RunReport{RunID: "x"}); err == nil {
		t.Fatalf("Export() err=nil on cancelled context")
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %q after cancellation", buf.String())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Format: "csv"}).Validate(); err == nil {
		t.Fatalf("Validate() err=nil for csv")
	}
	t.Setenv("WHLOBF_REPORT_DESTINATION", "-")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if !cfg.Enabled() || cfg.Format != "ndjson" {
		t.Fatalf("cfg=%+v", cfg)
	}
}
