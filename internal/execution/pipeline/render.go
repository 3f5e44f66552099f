package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

const gapLine = "---"

// Render formats a report for humans. Executed stages always show their
// stderr log; stdout is included only when verbose.
func Render(report domain.RunReport, verbose bool) string {
	lines := make([]string, 0, len(report.Stages)*12)
	for _, stage := range report.Stages {
		lines = append(lines, renderStage(stage, verbose), "", "")
	}
	return strings.Join(lines, "\n")
}

func renderStage(stage domain.StageRecord, verbose bool) string {
	status := fmt.Sprintf("executed=%t, succeeded=%t", stage.Executed, stage.Succeeded)
	if stage.Failure != domain.StageFailureNone {
		status += ", failure=" + string(stage.Failure)
	}
	lines := []string{"###", "Stage: " + stage.Name, status, "###"}

	if !stage.Executed {
		lines = append(lines, gapLine, "NOT EXECUTED", gapLine)
		return strings.Join(lines, "\n")
	}
	if verbose {
		lines = append(lines, gapLine, ">>> STDOUT", gapLine, readLog(stage.StdoutPath), gapLine)
	}
	lines = append(lines, gapLine, ">>> STDERR", gapLine, readLog(stage.StderrPath), gapLine)
	return strings.Join(lines, "\n")
}

func readLog(path string) string {
	if strings.TrimSpace(path) == "" {
		return "NO MESSAGE"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("UNREADABLE LOG (%v)", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "NO MESSAGE"
	}
	return text
}
