package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/orchestrator"
	"github.com/tcooper/warden/internal/process"
	"github.com/tcooper/warden/internal/workspace"
)

type stubAllocator struct{}

func (stubAllocator) Create(ctx context.Context, jobID string, wctx workspace.Context) (*workspace.Workspace, error) {
	return nil, &workspace.QuotaError{Kind: "count", Limit: 0, Current: 0}
}
func (stubAllocator) Cleanup(id string) (bool, error) { return false, nil }

type stubRunner struct{}

func (stubRunner) Execute(ctx context.Context, spec process.Spec) (*process.Result, error) {
	return &process.Result{ExitCode: 0}, nil
}

func newTestServer(t *testing.T) (*Server, *job.Store) {
	t.Helper()
	store := job.NewStore()
	engine := orchestrator.New(orchestrator.Options{
		Workspaces:     stubAllocator{},
		Processes:      stubRunner{},
		Store:          store,
		AgentBinary:    "agent",
		MaxRetries:     3,
		DefaultTimeout: time.Minute,
	})
	return &Server{Engine: engine, Store: store}, store
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	s, store := newTestServer(t)
	j := job.New("job-1", job.Request{Type: job.RequestSingleIssue}, 3, time.Minute)
	if err := store.Put(j); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var jobs []job.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestListJobsHistory(t *testing.T) {
	s, store := newTestServer(t)
	j := job.New("job-2", job.Request{Type: job.RequestSingleIssue}, 3, time.Minute)
	if err := store.Put(j); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Finalize("job-2", job.StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs?history=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var history []job.Summary
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != job.StatusCompleted {
		t.Errorf("history = %+v", history)
	}
}

func TestGetJob(t *testing.T) {
	s, store := newTestServer(t)
	j := job.New("job-3", job.Request{Type: job.RequestPullRequest}, 3, time.Minute)
	if err := store.Put(j); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/job-3")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got job.Job
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Request.Type != job.RequestPullRequest {
		t.Errorf("job = %+v", got)
	}

	resp, err = http.Get(srv.URL + "/v1/jobs/missing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing job status = %d", resp.StatusCode)
	}
}

func TestKillUnknownJob(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs/nope/kill", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSubmitJobValidation(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs", "application/json",
		strings.NewReader(`{"type": "bogus"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/jobs", "application/json",
		strings.NewReader(`{"type": "single-issue", "item_number": 4}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

// The accepted response carries the job id so the submitter can poll
// /v1/jobs/{id} or kill the job it just created.
func TestSubmitJobReturnsID(t *testing.T) {
	s, store := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs", "application/json",
		strings.NewReader(`{"type": "single-issue", "item_number": 7}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	id := body["job_id"]
	if id == "" {
		t.Fatalf("response missing job_id: %v", body)
	}

	// The job is registered before the response is written, so it is
	// immediately observable by id, active or already in history.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.Get(id); err == nil {
			break
		}
		if _, ok := store.Lookup(id); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never appeared in the store", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap orchestrator.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Started < 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEventsDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/x/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
