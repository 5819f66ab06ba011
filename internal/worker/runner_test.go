package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/queue"
	"github.com/randomparity/vpo/internal/store"
)

func testRunner(t *testing.T) (*Runner, *store.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "library.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return &Runner{
		DB:        db,
		Queue:     queue.New(db, nil),
		PolicyDir: filepath.Join(dir, "policies"),
		LogDir:    "",
	}, db
}

func TestRunnerFailsUnknownKind(t *testing.T) {
	r, _ := testRunner(t)
	status, opts := r.Run(context.Background(), domain.Job{ID: "j1", Kind: domain.JobKind("bogus")})
	if status != domain.JobFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if opts.ErrorMessage == "" {
		t.Error("error message missing")
	}
}

func TestRunnerFailsApplyWithoutPolicy(t *testing.T) {
	r, _ := testRunner(t)
	job := domain.Job{ID: "j2", Kind: domain.JobApply, FilePath: "/library/movie.mkv"}
	status, opts := r.Run(context.Background(), job)
	if status != domain.JobFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if opts.ErrorMessage == "" {
		t.Error("error message missing")
	}
}

func TestRunnerFailsApplyWithMissingPolicyFile(t *testing.T) {
	r, _ := testRunner(t)
	job := domain.Job{ID: "j3", Kind: domain.JobApply, FilePath: "/library/movie.mkv"}
	job.PolicyName.String = "does-not-exist"
	job.PolicyName.Valid = true

	status, _ := r.Run(context.Background(), job)
	if status != domain.JobFailed {
		t.Errorf("status = %s, want failed", status)
	}
}

func TestRunnerFailsMoveWithoutDestination(t *testing.T) {
	r, _ := testRunner(t)
	job := domain.Job{ID: "j4", Kind: domain.JobMove, FilePath: "/library/movie.mkv"}
	status, _ := r.Run(context.Background(), job)
	if status != domain.JobFailed {
		t.Errorf("status = %s, want failed", status)
	}
}
