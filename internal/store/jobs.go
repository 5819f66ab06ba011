package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/randomparity/vpo/internal/domain"
)

// InsertJob enqueues a new job and returns it. Insertion is accepted
// unconditionally; the worker count bounds the work rate.
func (d *DB) InsertJob(ctx context.Context, kind domain.JobKind, filePath, policyName string, priority int) (domain.Job, error) {
	job := domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		FilePath:  filePath,
		Priority:  priority,
		Status:    domain.JobQueued,
		CreatedAt: NowUTC(),
	}
	if policyName != "" {
		job.PolicyName = sql.NullString{String: policyName, Valid: true}
	}

	_, err := d.write.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, file_path, policy_name, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), job.FilePath, job.PolicyName, job.Priority, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// GetJob loads one job by id.
func (d *DB) GetJob(ctx context.Context, id string) (domain.Job, error) {
	var job domain.Job
	if err := d.read.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status    string
	Kind      string
	Since     string
	Search    string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

var jobSortColumns = map[string]string{
	"created_at":   "created_at",
	"completed_at": "completed_at",
	"priority":     "priority",
	"status":       "status",
}

// ListJobs queries jobs with the HTTP layer's filter surface. Runs on the
// read pool.
func (d *DB) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	var clauses []string
	var args []any

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Since != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since)
	}
	if filter.Search != "" {
		clauses = append(clauses, "file_path LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}

	query := "SELECT * FROM jobs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	sortCol, ok := jobSortColumns[filter.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortCol, order)

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	var jobs []domain.Job
	if err := d.read.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJobProgress records a running job's progress.
func (d *DB) UpdateJobProgress(ctx context.Context, id string, percent float64, detailJSON string) error {
	detail := sql.NullString{String: detailJSON, Valid: detailJSON != ""}
	_, err := d.write.ExecContext(ctx, `
		UPDATE jobs SET progress_percent = ?, progress_json = ?
		WHERE id = ? AND status = 'running'`,
		percent, detail, id,
	)
	return err
}

