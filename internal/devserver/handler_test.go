package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shelfscan/internal/devserver"
	"shelfscan/internal/entity"
)

// ---- helpers ----

func newTestServer(t *testing.T, stepDelay time.Duration) (http.Handler, context.CancelFunc) {
	t.Helper()
	table := devserver.NewJobTable()
	sim := devserver.NewSimulator(table, 1, stepDelay, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go sim.Run(ctx)

	h := devserver.NewHandler(table, sim)
	return devserver.Routes(h, zerolog.Nop()), cancel
}

func submitImage(t *testing.T, router http.Handler, payload []byte, query string) entity.CreateJobResponse {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "shelf.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/infer/image"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp entity.CreateJobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func getJSON(t *testing.T, router http.Handler, path string, wantCode int, out any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != wantCode {
		t.Fatalf("GET %s: expected %d, got %d, body=%s", path, wantCode, rr.Code, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: invalid json: %v, body=%s", path, err, rr.Body.String())
		}
	}
}

// ---- tests ----

func TestHTTP_SubmitImage_201_AndJobQueued(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour) // pipeline effectively frozen
	defer cancel()

	resp := submitImage(t, router, []byte("jpeg"), "")
	if resp.JobID == "" || resp.Status != entity.StatusQueued {
		t.Fatalf("unexpected submit response: %#v", resp)
	}

	var st entity.JobStatusResponse
	getJSON(t, router, "/v1/jobs/"+resp.JobID, http.StatusOK, &st)
	if st.JobID != resp.JobID || st.Status != entity.StatusQueued {
		t.Fatalf("unexpected status: %#v", st)
	}
}

func TestHTTP_SubmitImage_400_WithoutFileField(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/v1/infer/image", bytes.NewBufferString("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=oops")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_GetJob_404_WhenUnknown(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	getJSON(t, router, "/v1/jobs/unknown-id", http.StatusNotFound, nil)
}

func TestHTTP_GetJobResults_409_BeforeSucceeded(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	resp := submitImage(t, router, []byte("jpeg"), "")
	getJSON(t, router, "/v1/jobs/"+resp.JobID+"/results", http.StatusConflict, nil)
}

func TestHTTP_JobRunsToCompletion(t *testing.T) {
	router, cancel := newTestServer(t, time.Millisecond)
	defer cancel()

	resp := submitImage(t, router, []byte("jpeg"), "?planogram_id=plano-1")

	deadline := time.Now().Add(2 * time.Second)
	var st entity.JobStatusResponse
	for {
		getJSON(t, router, "/v1/jobs/"+resp.JobID, http.StatusOK, &st)
		if st.Status == entity.StatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never succeeded, last status %#v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	var result entity.JobResult
	getJSON(t, router, "/v1/jobs/"+resp.JobID+"/results", http.StatusOK, &result)
	if result.TotalImages != 1 || len(result.Images) != 1 {
		t.Fatalf("unexpected result shape: %#v", result)
	}
	if len(result.Images[0].Objects) == 0 {
		t.Fatal("expected synthetic detections")
	}
	if result.Images[0].Compliance == nil || result.Images[0].Planogram == nil {
		t.Fatal("planogram-scoped job must carry compliance data")
	}
}

func TestHTTP_EmptyUploadFails(t *testing.T) {
	router, cancel := newTestServer(t, time.Millisecond)
	defer cancel()

	resp := submitImage(t, router, nil, "")

	deadline := time.Now().Add(2 * time.Second)
	var st entity.JobStatusResponse
	for {
		getJSON(t, router, "/v1/jobs/"+resp.JobID, http.StatusOK, &st)
		if st.Status == entity.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed, last status %#v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHTTP_ListJobs_EnvelopeAndScope(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	a := submitImage(t, router, []byte("jpeg"), "?planogram_id=plano-1")
	submitImage(t, router, []byte("jpeg"), "?planogram_id=plano-2")

	var all struct {
		Jobs []entity.Job `json:"jobs"`
	}
	getJSON(t, router, "/v1/jobs", http.StatusOK, &all)
	if len(all.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all.Jobs))
	}

	var scoped struct {
		Jobs []entity.Job `json:"jobs"`
	}
	getJSON(t, router, "/v1/jobs?planogram_id=plano-1", http.StatusOK, &scoped)
	if len(scoped.Jobs) != 1 || scoped.Jobs[0].JobID != a.JobID {
		t.Fatalf("scope filter broken: %#v", scoped.Jobs)
	}
}

func TestHTTP_DeleteJob(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	resp := submitImage(t, router, []byte("jpeg"), "")

	req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+resp.JobID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	getJSON(t, router, "/v1/jobs/"+resp.JobID, http.StatusNotFound, nil)

	req = httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+resp.JobID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete should 404, got %d", rr.Code)
	}
}

func TestHTTP_FilesEndpointServesUpload(t *testing.T) {
	router, cancel := newTestServer(t, time.Hour)
	defer cancel()

	resp := submitImage(t, router, []byte("jpegbytes"), "")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+resp.JobID+"/files/input/shelf.jpg", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if string(body) != "jpegbytes" {
		t.Fatalf("expected uploaded bytes back, got %q", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/"+resp.JobID+"/files/bogus/shelf.jpg", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown kind should 404, got %d", rr.Code)
	}
}
