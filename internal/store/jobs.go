package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskloom/pkg/models"
)

// ErrNotFound indicates no job with the requested id exists.
var ErrNotFound = errors.New("job not found")

// JobSummary is the listing view of a persisted job.
type JobSummary struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    models.JobStatus `json:"status"`
	TaskCount int              `json:"taskCount"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// SaveJob upserts the job record and replaces its task records. Called at
// run start and again at completion, so a crash mid-run still leaves the
// job visible with its initial snapshot.
func (s *Store) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var timeoutMS sql.NullInt64
	if job.Timeout > 0 {
		timeoutMS = sql.NullInt64{Int64: job.Timeout.Milliseconds(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, name, status, abort_on_failure, max_tasks, max_depth, timeout_ms, verbose, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			abort_on_failure = excluded.abort_on_failure,
			max_tasks = excluded.max_tasks,
			max_depth = excluded.max_depth,
			timeout_ms = excluded.timeout_ms,
			verbose = excluded.verbose,
			updated_at = excluded.updated_at`,
		job.ID, job.Name, string(job.Status), job.AbortOnFailure, job.MaxTasks, job.MaxDepth,
		timeoutMS, job.Verbose, formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE job_id = ?`, job.ID); err != nil {
		return fmt.Errorf("clear tasks for job %s: %w", job.ID, err)
	}

	for _, task := range job.Tasks {
		input, err := jsonColumn(task.Input)
		if err != nil {
			return fmt.Errorf("marshal input for task %s: %w", task.ID, err)
		}
		output, err := jsonColumn(task.Output)
		if err != nil {
			return fmt.Errorf("marshal output for task %s: %w", task.ID, err)
		}
		audit, err := jsonColumn(task.Audit)
		if err != nil {
			return fmt.Errorf("marshal audit for task %s: %w", task.ID, err)
		}
		dependsOn, err := jsonColumn(task.DependsOn)
		if err != nil {
			return fmt.Errorf("marshal dependsOn for task %s: %w", task.ID, err)
		}
		var completedAt sql.NullString
		if task.CompletedAt != nil {
			completedAt = sql.NullString{String: formatTime(*task.CompletedAt), Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (job_id, id, service, command, input, output, audit, depends_on, depth, status, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, task.ID, task.Service, task.Command, input, output, audit, dependsOn,
			task.Depth, string(task.Status), formatTime(task.StartedAt), completedAt)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}

	return tx.Commit()
}

// GetJob loads a job and all of its tasks.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job := &models.Job{ID: id, Tasks: make(map[string]*models.Task)}
	var (
		status    string
		timeoutMS sql.NullInt64
		createdAt string
		updatedAt string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT name, status, abort_on_failure, max_tasks, max_depth, timeout_ms, verbose, created_at, updated_at
		FROM jobs WHERE id = ?`, id).
		Scan(&job.Name, &status, &job.AbortOnFailure, &job.MaxTasks, &job.MaxDepth, &timeoutMS, &job.Verbose, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	job.Status = models.JobStatus(status)
	if timeoutMS.Valid {
		job.Timeout = time.Duration(timeoutMS.Int64) * time.Millisecond
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for job %s: %w", id, err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for job %s: %w", id, err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, service, command, input, output, audit, depends_on, depth, status, started_at, completed_at
		FROM tasks WHERE job_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load tasks for job %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		task := &models.Task{}
		var (
			input, output, audit, dependsOn sql.NullString
			taskStatus                      string
			startedAt                       string
			completedAt                     sql.NullString
		)
		if err := rows.Scan(&task.ID, &task.Service, &task.Command, &input, &output, &audit,
			&dependsOn, &task.Depth, &taskStatus, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task for job %s: %w", id, err)
		}

		task.Status = models.TaskStatus(taskStatus)
		if task.Input, err = unmarshalColumn[map[string]any](input); err != nil {
			return nil, fmt.Errorf("unmarshal input for task %s: %w", task.ID, err)
		}
		if task.Output, err = unmarshalColumn[map[string]any](output); err != nil {
			return nil, fmt.Errorf("unmarshal output for task %s: %w", task.ID, err)
		}
		if task.Audit, err = unmarshalColumn[map[string]any](audit); err != nil {
			return nil, fmt.Errorf("unmarshal audit for task %s: %w", task.ID, err)
		}
		if task.DependsOn, err = unmarshalColumn[[]string](dependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal dependsOn for task %s: %w", task.ID, err)
		}
		if task.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at for task %s: %w", task.ID, err)
		}
		if completedAt.Valid {
			done, err := parseTime(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse completed_at for task %s: %w", task.ID, err)
			}
			task.CompletedAt = &done
		}

		job.Tasks[task.ID] = task
	}
	return job, rows.Err()
}

// ListJobs returns job summaries, most recently updated first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT j.id, j.name, j.status, j.created_at, j.updated_at,
		       (SELECT COUNT(*) FROM tasks t WHERE t.job_id = j.id)
		FROM jobs j
		ORDER BY j.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var (
			summary              JobSummary
			status               string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &status, &createdAt, &updatedAt, &summary.TaskCount); err != nil {
			return nil, fmt.Errorf("scan job summary: %w", err)
		}
		summary.Status = models.JobStatus(status)
		if summary.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if summary.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// DeleteJob removes a job and its tasks.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
