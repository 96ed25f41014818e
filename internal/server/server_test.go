package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vidpipe/internal/config"
	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/provider"
	"vidpipe/internal/server"
	"vidpipe/internal/services/upload"
	"vidpipe/internal/testsupport"
)

type runnerFunc func(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error) {
	return f(ctx, job, sink)
}

func publishingRunner(release <-chan struct{}) runnerFunc {
	return func(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error) {
		if release != nil {
			<-release
		}
		sink.Publish(progress.State{Stage: progress.StageEditing, Status: progress.StatusCompleted, Progress: 60})
		sink.Publish(progress.State{Stage: progress.StageUpload, Status: progress.StatusCompleted, Progress: 100, URL: "https://v.example/" + job.ID})
		return pipeline.Result{URL: "https://v.example/" + job.ID}, nil
	}
}

type fakeBackends struct {
	reset []string
}

func (f *fakeBackends) Status(time.Time) []provider.BackendStatus {
	return []provider.BackendStatus{{ID: "gpt-4", Available: true, DailyUsed: 10, DailyLimit: 100, MonthlyLimit: 1000, WithinBudget: true}}
}

func (f *fakeBackends) Reset(id string) error {
	if id != "gpt-4" {
		return provider.ErrUnknownBackend
	}
	f.reset = append(f.reset, id)
	return nil
}

func newTestServer(t *testing.T, cfg *config.Config, runner jobs.Runner) (*httptest.Server, *jobs.Manager, *fakeBackends) {
	t.Helper()
	manager := jobs.NewManager(runner, jobs.WithPlatforms(upload.LimitsFromConfig(cfg.Upload)))
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })
	backends := &fakeBackends{}
	srv := server.New(cfg, manager, server.WithBackends(backends))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, manager, backends
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func validJobBody() map[string]any {
	return map[string]any{
		"media":  map[string]any{"locator": "/media/in.mp4", "title": "Demo"},
		"upload": map[string]any{"platform": "youtube", "visibility": "unlisted"},
	}
}

func createJob(t *testing.T, base string) string {
	t.Helper()
	resp := postJSON(t, base+"/api/jobs", validJobBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var created struct{ ID string }
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("decode created: %v %+v", err, created)
	}
	return created.ID
}

func TestCreateJobAndFetchResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ts, manager, _ := newTestServer(t, cfg, publishingRunner(nil))

	id := createJob(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := manager.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/jobs/" + id + "/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	defer resp.Body.Close()
	var result struct {
		Status string
		URL    string
	}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK || result.URL != "https://v.example/"+id {
		t.Fatalf("unexpected result %d %+v", resp.StatusCode, result)
	}

	listResp, err := http.Get(ts.URL + "/api/jobs?status=completed&limit=5")
	if err != nil {
		t.Fatalf("GET jobs: %v", err)
	}
	defer listResp.Body.Close()
	var list struct{ Jobs []jobs.Record }
	_ = json.NewDecoder(listResp.Body).Decode(&list)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != id {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCreateJobRejectsInvalidOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ts, _, _ := newTestServer(t, cfg, publishingRunner(nil))

	body := validJobBody()
	body["upload"] = map[string]any{"platform": "myspace", "visibility": "secret"}
	resp := postJSON(t, ts.URL+"/api/jobs", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var failure struct{ Kind string }
	_ = json.NewDecoder(resp.Body).Decode(&failure)
	if failure.Kind != jobs.KindValidation {
		t.Fatalf("expected validation kind, got %q", failure.Kind)
	}
}

func TestCopyrightRejectionReportsContentPolicy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := runnerFunc(func(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error) {
		sink.Publish(progress.State{Stage: progress.StageCopyright, Status: progress.StatusFailed, Progress: 75})
		return pipeline.Result{}, &pipeline.StageError{Stage: progress.StageCopyright, Err: &pipeline.CopyrightGateError{Issues: []string{"trademark"}}}
	})
	ts, manager, _ := newTestServer(t, cfg, runner)

	id := createJob(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = manager.Wait(ctx, id)

	resp, err := http.Get(ts.URL + "/api/jobs/" + id + "/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	defer resp.Body.Close()
	var failure struct {
		Kind   string
		Issues []string
	}
	_ = json.NewDecoder(resp.Body).Decode(&failure)
	if resp.StatusCode != http.StatusUnprocessableEntity || failure.Kind != "content_policy" {
		t.Fatalf("expected 422 content_policy, got %d %+v", resp.StatusCode, failure)
	}
	if len(failure.Issues) != 1 || failure.Issues[0] != "trademark" {
		t.Fatalf("unexpected issues %v", failure.Issues)
	}
}

func TestEventsStreamEndsWithCompletionFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	release := make(chan struct{})
	ts, _, _ := newTestServer(t, cfg, publishingRunner(release))

	id := createJob(t, ts.URL)
	resp, err := http.Get(ts.URL + "/api/jobs/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	close(release)

	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			frames = append(frames, line)
		}
	}
	if len(frames) < 2 {
		t.Fatalf("expected progress and final frames, got %v", frames)
	}
	var final struct {
		Completed bool
		URL       string
	}
	if err := json.Unmarshal([]byte(frames[len(frames)-1]), &final); err != nil {
		t.Fatalf("decode final frame: %v", err)
	}
	if !final.Completed || final.URL != "https://v.example/"+id {
		t.Fatalf("unexpected final frame %+v", final)
	}
}

func TestWebSocketStreamsProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	release := make(chan struct{})
	ts, _, _ := newTestServer(t, cfg, publishingRunner(release))

	id := createJob(t, ts.URL)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	close(release)

	var last map[string]any
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				break
			}
			t.Fatalf("read: %v", err)
		}
		last = frame
	}
	if last["completed"] != true {
		t.Fatalf("expected completion frame, got %v", last)
	}
}

func TestTokenAuthGuardsAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithToken("sekret"))
	ts, _, _ := newTestServer(t, cfg, publishingRunner(nil))

	resp, err := http.Get(ts.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", resp.StatusCode)
	}
}

func TestMultipartUploadSavesFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var locator string
	runner := runnerFunc(func(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error) {
		locator = job.Media.Locator
		return pipeline.Result{URL: "u"}, nil
	})
	ts, manager, _ := newTestServer(t, cfg, runner)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("options", `{"upload":{"platform":"vimeo"}}`)
	part, _ := mw.CreateFormFile("file", "holiday clip.mp4")
	_, _ = part.Write([]byte("fake video bytes"))
	_ = mw.Close()

	resp, err := http.Post(ts.URL+"/api/jobs", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var created struct{ ID string }
	_ = json.NewDecoder(resp.Body).Decode(&created)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := manager.Wait(ctx, created.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Title != "holiday clip" {
		t.Fatalf("expected title from filename, got %q", rec.Title)
	}
	data, err := os.ReadFile(locator)
	if err != nil || string(data) != "fake video bytes" {
		t.Fatalf("uploaded file not saved: %v %q", err, data)
	}
}

func TestBackendViewsAndReset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ts, _, backends := newTestServer(t, cfg, publishingRunner(nil))

	resp, err := http.Post(ts.URL+"/api/backends/gpt-4/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(backends.reset) != 1 {
		t.Fatalf("reset failed: %d %v", resp.StatusCode, backends.reset)
	}

	resp, err = http.Post(ts.URL+"/api/backends/unknown/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/quota")
	if err != nil {
		t.Fatalf("GET quota: %v", err)
	}
	defer resp.Body.Close()
	var quota struct {
		DailyLimit int64
		Backends   []struct {
			ID        string
			DailyUsed int64
		}
	}
	_ = json.NewDecoder(resp.Body).Decode(&quota)
	if quota.DailyLimit != 100 || len(quota.Backends) != 1 || quota.Backends[0].DailyUsed != 10 {
		t.Fatalf("unexpected quota view %+v", quota)
	}
}

func TestUnknownJobIs404(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ts, _, _ := newTestServer(t, cfg, publishingRunner(nil))
	resp, err := http.Get(ts.URL + "/api/jobs/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestLogsEndpointFiltersByJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	hub := logging.NewStreamHub(16)
	hub.Publish(logging.LogEvent{Message: "stage started", JobID: "job-a", Component: "pipeline"})
	hub.Publish(logging.LogEvent{Message: "stage started", JobID: "job-b", Component: "pipeline"})
	hub.Publish(logging.LogEvent{Message: "upload progress", JobID: "job-a", Component: "upload"})

	manager := jobs.NewManager(publishingRunner(nil))
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })
	ts := httptest.NewServer(server.New(cfg, manager, server.WithLogHub(hub)).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/logs?tail=1&job=job-a")
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()
	var page server.LogResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(page.Events) != 2 || page.Events[1].Message != "upload progress" {
		t.Fatalf("unexpected events: %+v", page.Events)
	}
	if page.Next != 3 {
		t.Fatalf("expected cursor 3, got %d", page.Next)
	}

	resp2, err := http.Get(ts.URL + "/api/logs?since=1&component=upload")
	if err != nil {
		t.Fatalf("GET logs since: %v", err)
	}
	defer resp2.Body.Close()
	page = server.LogResponse{}
	if err := json.NewDecoder(resp2.Body).Decode(&page); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Component != "upload" {
		t.Fatalf("unexpected component page: %+v", page.Events)
	}
}
