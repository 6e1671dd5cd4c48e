package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shelfscan/internal/apiclient"
	"shelfscan/internal/entity"
)

func newClient(t *testing.T, baseURL string) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Options{JobsBaseURL: baseURL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	return c
}

func TestNew_EmptyHostIsValidationError(t *testing.T) {
	_, err := apiclient.New(apiclient.Options{})
	var ve *apiclient.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSubmitImage_SendsMultipartFileField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/infer/image" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing multipart field file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if string(body) != "jpegbytes" || header.Filename != "shelf.jpg" {
			t.Errorf("upload mangled: %q %q", body, header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"job_id":"abc123","status":"QUEUED"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	resp, err := c.SubmitImage(context.Background(), strings.NewReader("jpegbytes"), "shelf.jpg")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.JobID != "abc123" || resp.Status != entity.StatusQueued {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestSubmitImage_UnreachableHostIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // now nothing listens there

	c := newClient(t, url)
	_, err := c.SubmitImage(context.Background(), strings.NewReader("x"), "shelf.jpg")
	var ne *apiclient.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestGetJobStatus_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/jobs/known":
			w.Write([]byte(`{"job_id":"known","status":"RUNNING","stage":"detecting"}`))
		case "/v1/jobs/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	st, err := c.GetJobStatus(context.Background(), "known")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if st.Status != entity.StatusRunning || st.Stage != "detecting" {
		t.Fatalf("unexpected status: %#v", st)
	}

	_, err = c.GetJobStatus(context.Background(), "missing")
	if !errors.Is(err, apiclient.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	var nf *apiclient.NotFoundError
	if !errors.As(err, &nf) || nf.JobID != "missing" {
		t.Fatalf("expected NotFoundError for missing, got %v", err)
	}

	_, err = c.GetJobStatus(context.Background(), "broken")
	var se *apiclient.ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected ServerError{500}, got %v", err)
	}
}

func TestGetJobResults_EarlyCallSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"job not finished"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := c.GetJobResults(context.Background(), "j1")
	var se *apiclient.ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusConflict {
		t.Fatalf("expected ServerError{409}, got %v", err)
	}
}

func TestListJobs_AcceptsBothResponseShapes(t *testing.T) {
	bodies := []string{
		`[{"job_id":"j1","status":"RUNNING"},{"job_id":"j2","status":"SUCCEEDED"}]`,
		`{"jobs":[{"job_id":"j1","status":"RUNNING"},{"job_id":"j2","status":"SUCCEEDED"}]}`,
	}

	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/jobs" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(body))
		}))

		c := newClient(t, srv.URL)
		jobs, err := c.ListJobs(context.Background(), "")
		srv.Close()
		if err != nil {
			t.Fatalf("body %s: expected nil error, got %v", body, err)
		}
		if len(jobs) != 2 || jobs[0].JobID != "j1" || jobs[1].JobID != "j2" {
			t.Fatalf("body %s: wrong jobs %#v", body, jobs)
		}
	}
}

func TestListJobs_PassesPlanogramScope(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	if _, err := c.ListJobs(context.Background(), "plano-1"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "planogram_id=plano-1" {
		t.Fatalf("scope filter not sent, query=%q", gotQuery)
	}
}

func TestDeleteJob_MapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/v1/jobs/j1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	if err := c.DeleteJob(context.Background(), "j1"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := c.DeleteJob(context.Background(), "ghost"); !errors.Is(err, apiclient.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestImageURL_Resolution(t *testing.T) {
	c := newClient(t, "https://infer.example.com")
	got := c.ImageURL("j1", apiclient.FileAnnotated, "shelf.jpg")
	want := "https://infer.example.com/v1/jobs/j1/files/annotated/shelf.jpg"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
