package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/repo"
)

const defaultListLimit = 100

type RunReportStore struct {
	db DB
}

const (
	insertRunQuery = `INSERT INTO obfuscation_runs (
		run_id,
		source,
		output,
		succeeded,
		failed_stage,
		started_at,
		finished_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (run_id) DO NOTHING
	RETURNING run_id`

	insertStageQuery = `INSERT INTO obfuscation_stages (
		run_id,
		position,
		name,
		executed,
		succeeded,
		failure,
		stdout_path,
		stderr_path,
		started_at,
		finished_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (run_id, position) DO NOTHING`

	selectRunQuery = `SELECT run_id, source, output, succeeded, started_at, finished_at
	 FROM obfuscation_runs
	 WHERE run_id = $1`

	listStagesByRunQuery = `SELECT name, executed, succeeded, failure, stdout_path, stderr_path, started_at, finished_at
	 FROM obfuscation_stages
	 WHERE run_id = $1
	 ORDER BY position ASC`
)

func NewRunReportStore(db DB) *RunReportStore {
	if db == nil {
		return nil
	}
	return &RunReportStore{db: db}
}

// Insert writes the run and its stages. Inserting a run id that already
// exists is a no-op reported as false; stage rows missing from an earlier
// partial insert are filled in.
func (s *RunReportStore) Insert(ctx context.Context, report domain.RunReport) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("run report store not initialized")
	}
	runID := strings.TrimSpace(report.RunID)
	if runID == "" {
		return false, fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(report.Source) == "" {
		return false, fmt.Errorf("source is required")
	}

	var failedStage string
	if failed, ok := report.FailedStage(); ok {
		failedStage = failed.Name
	}

	created := true
	var inserted string
	err := s.db.QueryRowContext(
		ctx,
		insertRunQuery,
		runID,
		report.Source,
		nullIfEmpty(report.Output),
		report.Succeeded,
		nullIfEmpty(failedStage),
		normalizeTime(report.StartedAt),
		normalizeTime(report.FinishedAt),
	).Scan(&inserted)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("insert run: %w", err)
		}
		created = false
	}

	for i, stage := range report.Stages {
		if _, err := s.db.ExecContext(
			ctx,
			insertStageQuery,
			runID,
			i,
			stage.Name,
			stage.Executed,
			stage.Succeeded,
			nullIfEmpty(string(stage.Failure)),
			nullIfEmpty(stage.StdoutPath),
			nullIfEmpty(stage.StderrPath),
			nullTime(stage.StartedAt),
			nullTime(stage.FinishedAt),
		); err != nil {
			return created, fmt.Errorf("insert stage %s: %w", stage.Name, err)
		}
	}
	return created, nil
}

func (s *RunReportStore) Get(ctx context.Context, runID string) (domain.RunReport, error) {
	if s == nil || s.db == nil {
		return domain.RunReport{}, fmt.Errorf("run report store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.RunReport{}, fmt.Errorf("run id is required")
	}
	report, err := scanRun(s.db.QueryRowContext(ctx, selectRunQuery, runID))
	if err != nil {
		return domain.RunReport{}, err
	}
	stages, err := s.listStages(ctx, runID)
	if err != nil {
		return domain.RunReport{}, err
	}
	report.Stages = stages
	return report, nil
}

func (s *RunReportStore) List(ctx context.Context, filter repo.RunFilter) ([]domain.RunReport, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run report store not initialized")
	}
	query, args := buildListRunsQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.RunReport, 0)
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range reports {
		stages, err := s.listStages(ctx, reports[i].RunID)
		if err != nil {
			return nil, err
		}
		reports[i].Stages = stages
	}
	return reports, nil
}

func buildListRunsQuery(filter repo.RunFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT run_id, source, output, succeeded, started_at, finished_at FROM obfuscation_runs`)
	var (
		where []string
		args  []any
	)
	if source := strings.TrimSpace(filter.Source); source != "" {
		args = append(args, source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Succeeded != nil {
		args = append(args, *filter.Succeeded)
		where = append(where, fmt.Sprintf("succeeded = $%d", len(args)))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY started_at DESC, run_id ASC LIMIT $%d", len(args))
	return b.String(), args
}

func (s *RunReportStore) listStages(ctx context.Context, runID string) ([]domain.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, listStagesByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	stages := make([]domain.StageRecord, 0)
	for rows.Next() {
		var (
			stage                  domain.StageRecord
			failure                sql.NullString
			stdoutPath, stderrPath sql.NullString
			startedAt, finishedAt  sql.NullTime
		)
		if err := rows.Scan(
			&stage.Name,
			&stage.Executed,
			&stage.Succeeded,
			&failure,
			&stdoutPath,
			&stderrPath,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stage.Failure = domain.StageFailure(failure.String)
		stage.StdoutPath = stdoutPath.String
		stage.StderrPath = stderrPath.String
		if startedAt.Valid {
			stage.StartedAt = startedAt.Time.UTC()
		}
		if finishedAt.Valid {
			stage.FinishedAt = finishedAt.Time.UTC()
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner runScanner) (domain.RunReport, error) {
	var report domain.RunReport
	var output sql.NullString
	if err := scanner.Scan(
		&report.RunID,
		&report.Source,
		&output,
		&report.Succeeded,
		&report.StartedAt,
		&report.FinishedAt,
	); err != nil {
		return domain.RunReport{}, handleNotFound(err)
	}
	report.Output = output.String
	report.StartedAt = report.StartedAt.UTC()
	report.FinishedAt = report.FinishedAt.UTC()
	return report, nil
}
