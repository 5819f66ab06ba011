package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randomparity/vpo/internal/domain"
)

// InsertPlan persists an evaluated Plan linked to its job, in pending
// state.
func (d *DB) InsertPlan(ctx context.Context, jobID string, plan domain.Plan) (int64, error) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return 0, fmt.Errorf("marshal plan: %w", err)
	}
	res, err := d.write.ExecContext(ctx, `
		INSERT INTO plans (job_id, file_path, status, plan_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, plan.FilePath, string(domain.PlanPending), string(payload), NowUTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPlan loads one plan record and rehydrates the Plan payload.
func (d *DB) GetPlan(ctx context.Context, id int64) (domain.PlanRecord, domain.Plan, error) {
	var rec domain.PlanRecord
	if err := d.read.GetContext(ctx, &rec, `SELECT * FROM plans WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PlanRecord{}, domain.Plan{}, domain.ErrNotFound
		}
		return domain.PlanRecord{}, domain.Plan{}, err
	}
	var plan domain.Plan
	if err := json.Unmarshal([]byte(rec.PlanJSON), &plan); err != nil {
		return domain.PlanRecord{}, domain.Plan{}, fmt.Errorf("%w: plan %d payload: %v", domain.ErrIntegrity, id, err)
	}
	return rec, plan, nil
}

// TransitionPlan moves a plan record between statuses, enforcing the
// permitted lifecycle with a status CAS: terminal states are immutable.
func (d *DB) TransitionPlan(ctx context.Context, id int64, from, to domain.PlanStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: plan transition %s -> %s not permitted", domain.ErrIntegrity, from, to)
	}
	res, err := d.write.ExecContext(ctx, `
		UPDATE plans SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), NowUTC(), id, string(from),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: plan %d is not in state %s", domain.ErrIntegrity, id, from)
	}
	return nil
}

// ListPlansForJob returns a job's plan records newest first.
func (d *DB) ListPlansForJob(ctx context.Context, jobID string) ([]domain.PlanRecord, error) {
	var recs []domain.PlanRecord
	err := d.read.SelectContext(ctx, &recs,
		`SELECT * FROM plans WHERE job_id = ? ORDER BY id DESC`, jobID)
	return recs, err
}
