package domain

import "time"

// StageFailure classifies why an executed stage did not succeed.
type StageFailure string

const (
	StageFailureNone    StageFailure = ""
	StageFailureError   StageFailure = "error"
	StageFailurePanic   StageFailure = "panic"
	StageFailureTimeout StageFailure = "timeout"
)

// StageRecord tracks execution and captured output for one named step.
// Skipped stages have Executed=false and no log paths.
type StageRecord struct {
	Name       string       `json:"name"`
	Executed   bool         `json:"executed"`
	Succeeded  bool         `json:"succeeded"`
	Failure    StageFailure `json:"failure,omitempty"`
	StdoutPath string       `json:"stdout_path,omitempty"`
	StderrPath string       `json:"stderr_path,omitempty"`
	StartedAt  time.Time    `json:"started_at,omitzero"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
}

// RunReport is the structured outcome of one pipeline run over one source file.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Output     string        `json:"output,omitempty"`
	Succeeded  bool          `json:"succeeded"`
	Stages     []StageRecord `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// FailedStage returns the first executed stage that did not succeed.
func (r RunReport) FailedStage() (StageRecord, bool) {
	for _, stage := range r.Stages {
		if stage.Executed && !stage.Succeeded {
			return stage, true
		}
	}
	return StageRecord{}, false
}
