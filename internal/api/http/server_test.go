package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/queue"
	"github.com/randomparity/vpo/internal/store"
)

func testServer(t *testing.T, opts ...ServerOption) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "library.db"), time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewServer(db, append([]ServerOption{WithQueue(queue.New(db, nil))}, opts...)...)
	t.Cleanup(s.Close)
	return s, db
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthHealthy(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHealthDuringShutdownReturns503(t *testing.T) {
	s, _ := testServer(t)
	s.BeginShutdown()
	rec := doRequest(s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health during shutdown = %d, want 503", rec.Code)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s, _ := testServer(t)

	body, _ := json.Marshal(map[string]any{
		"kind":     "apply",
		"filePath": "/library/movie.mkv",
		"policy":   "default",
	})
	rec := doRequest(s, http.MethodPost, "/api/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.Job
	_ = json.NewDecoder(rec.Body).Decode(&created)
	if created.ID == "" || created.Status != domain.JobQueued {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(s, http.MethodGet, "/api/jobs/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/jobs?status=queued&search=movie", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var listing struct {
		Jobs []domain.Job `json:"jobs"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&listing)
	if len(listing.Jobs) != 1 {
		t.Errorf("listing = %+v", listing)
	}
}

func TestCreateJobRejectsUnknownKind(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(map[string]any{"kind": "explode", "filePath": "/x.mkv"})
	rec := doRequest(s, http.MethodPost, "/api/jobs", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("create = %d, want 400", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(s, http.MethodGet, "/api/jobs/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get = %d, want 404", rec.Code)
	}
}

func TestCancelRunningJobConflicts(t *testing.T) {
	s, db := testServer(t)
	ctx := context.Background()

	job, err := db.InsertJob(ctx, domain.JobApply, "/x.mkv", "default", 100)
	if err != nil {
		t.Fatal(err)
	}
	q := queue.New(db, nil)
	if _, err := q.ClaimNext(ctx, 42); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel running = %d, want 409", rec.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	s, db := testServer(t)
	ctx := context.Background()

	_ = db.InsertProcessingStats(ctx, domain.ProcessingStats{
		FilePath: "/a.mkv", InputBytes: 1000, OutputBytes: 400,
		Encoder: "libx265", EncoderType: domain.EncoderSoftware,
	})

	for _, path := range []string{"/api/stats/summary", "/api/stats/recent", "/api/stats/trends"} {
		rec := doRequest(s, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestLibraryFileDetail(t *testing.T) {
	s, db := testServer(t)
	ctx := context.Background()

	id, err := db.UpsertFile(ctx, domain.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "mkv",
		Tracks: []domain.Track{
			{Index: 0, Kind: domain.TrackVideo, Codec: "h264", Language: "und"},
		},
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, http.MethodGet, "/api/library/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("library detail = %d (id %d): %s", rec.Code, id, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/library/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file = %d, want 404", rec.Code)
	}
}

func TestBasicAuthEnforced(t *testing.T) {
	s, _ := testServer(t, WithAuthToken("sekrit"))

	rec := doRequest(s, http.MethodGet, "/api/jobs", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.SetBasicAuth("anyone", "sekrit")
	okRec := httptest.NewRecorder()
	s.ServeHTTP(okRec, req)
	if okRec.Code != http.StatusOK {
		t.Fatalf("authenticated = %d, want 200", okRec.Code)
	}

	// Health stays reachable for probes.
	rec = doRequest(s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health with auth enabled = %d", rec.Code)
	}
}
