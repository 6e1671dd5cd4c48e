package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shelfscan/internal/entity"
)

const apiPrefix = "/v1"

// FileKind selects which stored artifact of a job the files endpoint serves.
type FileKind string

const (
	FileInput     FileKind = "input"
	FileAnnotated FileKind = "annotated"
	FileCrops     FileKind = "crops"
)

// Options configures the inference API client.
type Options struct {
	// JobsBaseURL is the host handling job operations, without the /v1 prefix.
	JobsBaseURL string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Client is a stateless wrapper over the remote inference API. It holds no
// mutable state beyond the resolved base URL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func New(opts Options) (*Client, error) {
	if opts.JobsBaseURL == "" {
		return nil, &ValidationError{Field: "jobs host", Reason: "must not be empty"}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: opts.JobsBaseURL + apiPrefix,
		client:  httpClient,
		logger:  opts.Logger,
	}, nil
}

// SubmitImage uploads one image as multipart field "file" and returns the
// server-assigned job id with its initial status.
func (c *Client) SubmitImage(ctx context.Context, image io.Reader, filename string) (*entity.CreateJobResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := c.baseURL + "/infer/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out entity.CreateJobResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("job_id", out.JobID).Str("status", string(out.Status)).Msg("image submitted")
	return &out, nil
}

// GetJobStatus fetches the current lifecycle status of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*entity.JobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var out entity.JobStatusResponse
	if err := c.do(req, &out); err != nil {
		return nil, notFoundAs(err, jobID)
	}
	return &out, nil
}

// GetJobResults fetches the structured result of a job. Valid only once the
// status endpoint reported SUCCEEDED; an earlier call surfaces whatever the
// server answers, typically a ServerError with a 4xx code.
func (c *Client) GetJobResults(ctx context.Context, jobID string) (*entity.JobResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/results", nil)
	if err != nil {
		return nil, err
	}
	var out entity.JobResult
	if err := c.do(req, &out); err != nil {
		return nil, notFoundAs(err, jobID)
	}
	return &out, nil
}

// listJobsEnvelope accepts the {jobs:[...]} response form.
type listJobsEnvelope struct {
	Jobs []entity.Job `json:"jobs"`
}

// ListJobs returns the server's job list, optionally scoped to a planogram.
// Both deployed response shapes are accepted: a raw array and {"jobs":[...]}.
func (c *Client) ListJobs(ctx context.Context, planogramID string) ([]entity.Job, error) {
	url := c.baseURL + "/jobs"
	if planogramID != "" {
		url += "?planogram_id=" + planogramID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.doRaw(req)
	if err != nil {
		return nil, err
	}

	var jobs []entity.Job
	if err := json.Unmarshal(raw, &jobs); err == nil {
		return jobs, nil
	}
	var env listJobsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse job list: %w", err)
	}
	return env.Jobs, nil
}

// DeleteJob asks the server to delete a job. Callers must keep their local
// record until this returns nil.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return notFoundAs(err, jobID)
	}
	return nil
}

// ImageURL resolves a server-relative result path to an absolute URL on the
// files endpoint.
func (c *Client) ImageURL(jobID string, kind FileKind, filename string) string {
	return fmt.Sprintf("%s/jobs/%s/files/%s/%s", c.baseURL, jobID, kind, filename)
}

// FetchImage downloads raw image bytes from a files-endpoint URL.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.doRaw(req)
}

// do executes the request and decodes a JSON body into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	raw, err := c.doRaw(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: truncate(body, 256)}
	}
	return body, nil
}

// notFoundAs converts a 404 ServerError into a NotFoundError for operations
// that reference a job id.
func notFoundAs(err error, jobID string) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*ServerError); ok && se.StatusCode == http.StatusNotFound {
		return &NotFoundError{JobID: jobID}
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
