package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunRepo — репозиторий выполнений, отчётов и артефактов.
type RunRepo struct {
	db DB
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(db DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, workflow, event, status, started_at, finished_at, error, created_at`

// Create создаёт run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, workflow, event, status, started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.Workflow,
		string(run.Event),
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.db.QueryRow(ctx, query, id))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Workflow string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// normalize ограничивает Limit разумными пределами.
func (f RunFilter) normalize() RunFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = 50
	case f.Limit > 500:
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List возвращает runs, начиная с самых новых.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	filter = filter.normalize()

	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR workflow = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.Workflow),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Update обновляет статус и время выполнения run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, r.db, run)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateRun(ctx context.Context, db execer, run *domain.Run) error {
	query := `
		UPDATE runs
		SET status = $2, started_at = $3, finished_at = $4, error = $5
		WHERE id = $1
	`
	result, err := db.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveReport атомарно сохраняет итог выполнения: статус run,
// отчёт и записанные артефакты.
func (r *RunRepo) SaveReport(ctx context.Context, run *domain.Run, report *domain.WorkflowReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateRun(ctx, tx, run); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO run_reports (run_id, status, failed_jobs, cancelled, report)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status, failed_jobs = EXCLUDED.failed_jobs,
		    cancelled = EXCLUDED.cancelled, report = EXCLUDED.report
	`,
		report.RunID,
		string(report.Status),
		nonNil(report.FailedJobs),
		report.Cancelled,
		body,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	batch := &pgx.Batch{}
	for _, a := range report.Artifacts() {
		row := newArtifactRow(report.RunID, a)
		batch.Queue(`
			INSERT INTO artifacts (run_id, job_id, name, path, uri, digest, size_bytes, files, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, job_id, name) DO NOTHING
		`, row.args()...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert artifacts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

// GetReport возвращает сохранённый отчёт выполнения.
func (r *RunRepo) GetReport(ctx context.Context, runID uuid.UUID) (*domain.WorkflowReport, error) {
	var body []byte
	err := r.db.QueryRow(ctx, `SELECT report FROM run_reports WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var report domain.WorkflowReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// ListArtifacts возвращает артефакты выполнения, отсортированные по job и имени.
func (r *RunRepo) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]domain.Artifact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT job_id, name, path, uri, digest, size_bytes, files, recorded_at
		FROM artifacts
		WHERE run_id = $1
		ORDER BY job_id, name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var row artifactRow
		if err := rows.Scan(&row.JobID, &row.Name, &row.Path, &row.URI, &row.Digest, &row.Size, &row.Files, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, row.toDomain())
	}
	return artifacts, rows.Err()
}

// --- Helpers ---

// scanRun сканирует одну строку в Run. Подходит и для pgx.Row, и для pgx.Rows.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run      domain.Run
		event    string
		status   string
		runError *string
	)

	err := row.Scan(
		&run.ID,
		&run.Workflow,
		&event,
		&status,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Event = domain.Event(event)
	run.Status = domain.RunStatus(status)
	if runError != nil {
		run.Error = *runError
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
