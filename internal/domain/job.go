package domain

import "database/sql"

type JobKind string

const (
	JobScan      JobKind = "scan"
	JobApply     JobKind = "apply"
	JobTranscode JobKind = "transcode"
	JobMove      JobKind = "move"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is one a job cannot leave except by
// an explicit requeue.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Mutating reports whether jobs of this kind rewrite the target file.
// Scans only read; the queue may run them concurrently with anything.
func (k JobKind) Mutating() bool {
	return k != JobScan
}

// Job is one persistent unit of work. Timestamps are stored as ISO-8601
// UTC strings in the store and surface here as nullable strings so the
// coordination columns round-trip exactly.
type Job struct {
	ID              string          `db:"id" json:"id"`
	Kind            JobKind         `db:"kind" json:"kind"`
	FilePath        string          `db:"file_path" json:"filePath"`
	PolicyName      sql.NullString  `db:"policy_name" json:"policyName,omitempty"`
	Priority        int             `db:"priority" json:"priority"`
	Status          JobStatus       `db:"status" json:"status"`
	CreatedAt       string          `db:"created_at" json:"createdAt"`
	StartedAt       sql.NullString  `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt     sql.NullString  `db:"completed_at" json:"completedAt,omitempty"`
	WorkerPID       sql.NullInt64   `db:"worker_pid" json:"workerPid,omitempty"`
	WorkerHeartbeat sql.NullString  `db:"worker_heartbeat" json:"workerHeartbeat,omitempty"`
	ProgressPercent float64         `db:"progress_percent" json:"progressPercent"`
	ProgressJSON    sql.NullString  `db:"progress_json" json:"progressDetail,omitempty"`
	ErrorMessage    sql.NullString  `db:"error_message" json:"errorMessage,omitempty"`
	OutputPath      sql.NullString  `db:"output_path" json:"outputPath,omitempty"`
	BackupPath      sql.NullString  `db:"backup_path" json:"backupPath,omitempty"`
}

type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
	PlanExecuted PlanStatus = "executed"
	PlanFailed   PlanStatus = "failed"
)

// planTransitions encodes the permitted plan-record lifecycle; terminal
// states have no outgoing edges.
var planTransitions = map[PlanStatus][]PlanStatus{
	PlanPending:  {PlanApproved, PlanRejected},
	PlanApproved: {PlanExecuted, PlanFailed},
}

// CanTransition reports whether a plan record may move between statuses.
func (s PlanStatus) CanTransition(to PlanStatus) bool {
	for _, next := range planTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PlanRecord is the persisted form of a Plan, linked to its job.
type PlanRecord struct {
	ID        int64          `db:"id" json:"id"`
	JobID     string         `db:"job_id" json:"jobId"`
	FilePath  string         `db:"file_path" json:"filePath"`
	Status    PlanStatus     `db:"status" json:"status"`
	PlanJSON  string         `db:"plan_json" json:"-"`
	CreatedAt string         `db:"created_at" json:"createdAt"`
	UpdatedAt sql.NullString `db:"updated_at" json:"updatedAt,omitempty"`
}
