package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shelfscan/internal/entity"
	"shelfscan/internal/poller"
	"shelfscan/internal/store"
)

// API is the slice of the inference client the controller needs.
type API interface {
	SubmitImage(ctx context.Context, image io.Reader, filename string) (*entity.CreateJobResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*entity.JobStatusResponse, error)
	GetJobResults(ctx context.Context, jobID string) (*entity.JobResult, error)
	ListJobs(ctx context.Context, planogramID string) ([]entity.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Controller drives the job lifecycle: submission, polling, result fetch,
// reconciliation and deletion. It is the only component that mutates the
// store through business rules.
type Controller struct {
	api       API
	jobs      *store.Store
	scheduler *poller.Scheduler
	logger    zerolog.Logger

	// pollTimeout bounds each status/result request so one hung call cannot
	// stall a job's visible progress past the next tick.
	pollTimeout time.Duration

	closeOnce sync.Once
}

func New(api API, jobs *store.Store, scheduler *poller.Scheduler, logger zerolog.Logger) *Controller {
	return &Controller{
		api:         api,
		jobs:        jobs,
		scheduler:   scheduler,
		logger:      logger,
		pollTimeout: 30 * time.Second,
	}
}

// SubmitNewJob uploads one image and starts tracking the returned job. On
// failure nothing is inserted; no partial job is ever visible. Concurrent
// submissions are independent, each produces its own job.
func (c *Controller) SubmitNewJob(ctx context.Context, image io.Reader, filename, localImagePath, planogramID string) (string, error) {
	resp, err := c.api.SubmitImage(ctx, image, filename)
	if err != nil {
		return "", err
	}

	job := entity.Job{
		JobID:          resp.JobID,
		Status:         resp.Status,
		PlanogramID:    planogramID,
		LocalImagePath: localImagePath,
	}
	if err := c.jobs.Insert(job); err != nil {
		// Server handed out an id we already track; treat the submission as
		// authoritative and merge.
		c.logger.Warn().Str("job_id", resp.JobID).Err(err).Msg("submitted id already tracked")
		st := resp.Status
		_ = c.jobs.Update(resp.JobID, store.Patch{Status: &st})
	}

	c.startPolling(resp.JobID)
	c.logger.Info().Str("job_id", resp.JobID).Str("status", string(resp.Status)).Msg("job submitted")
	return resp.JobID, nil
}

// Reconcile replaces the local collection with the server's view, restarts
// polling for every non-terminal job and backfills missing results for
// succeeded ones. Individual result-fetch failures do not fail the pass.
func (c *Controller) Reconcile(ctx context.Context, planogramID string) error {
	jobs, err := c.api.ListJobs(ctx, planogramID)
	if err != nil {
		return err
	}

	c.jobs.Replace(jobs)

	for _, j := range jobs {
		switch {
		case !j.Status.Terminal():
			c.startPolling(j.JobID)
		case j.Status == entity.StatusSucceeded && j.Result == nil:
			c.fetchResult(ctx, j.JobID, j.Status, j.Stage, j.UpdatedAt)
		}
	}

	c.logger.Info().Int("jobs", len(jobs)).Str("planogram_id", planogramID).Msg("reconciled with server")
	return nil
}

// DeleteJob stops polling, deletes on the server and only then removes the
// local record. On server failure the entry stays and the error is returned;
// the timer is not restarted.
func (c *Controller) DeleteJob(ctx context.Context, jobID string) error {
	c.scheduler.Stop(jobID)

	if err := c.api.DeleteJob(ctx, jobID); err != nil {
		c.logger.Error().Str("job_id", jobID).Err(err).Msg("server rejected deletion")
		return err
	}

	c.jobs.Remove(jobID)
	c.logger.Info().Str("job_id", jobID).Msg("job deleted")
	return nil
}

// Close stops every poll timer. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.scheduler.StopAll()
	})
}

func (c *Controller) startPolling(jobID string) {
	c.scheduler.Start(jobID, func() {
		c.pollOnce(jobID)
	})
}

// pollOnce is the scheduler callback. Transport errors are logged and
// swallowed; the next tick retries. A job is only abandoned by reaching a
// terminal state or being deleted.
func (c *Controller) pollOnce(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.pollTimeout)
	defer cancel()

	status, err := c.api.GetJobStatus(ctx, jobID)
	if err != nil {
		c.logger.Warn().Str("job_id", jobID).Err(err).Msg("poll failed, will retry")
		return
	}

	switch status.Status {
	case entity.StatusSucceeded:
		// Stop before fetching so no further status poll can fire for this id.
		c.scheduler.Stop(jobID)
		c.fetchResult(ctx, jobID, status.Status, status.Stage, status.UpdatedAt)
	case entity.StatusFailed:
		c.scheduler.Stop(jobID)
		c.applyStatus(jobID, status.Status, status.Stage, status.UpdatedAt, nil)
	default:
		c.applyStatus(jobID, status.Status, status.Stage, status.UpdatedAt, nil)
	}
}

// fetchResult pulls the result and records status, stage, timestamp and result
// in one store update, so a result is never partially visible.
func (c *Controller) fetchResult(ctx context.Context, jobID string, status entity.JobStatus, stage, updatedAt string) {
	result, err := c.api.GetJobResults(ctx, jobID)
	if err != nil {
		c.logger.Warn().Str("job_id", jobID).Err(err).Msg("result fetch failed")
		// Status still advances; the result stays absent until a later
		// reconcile backfills it.
		c.applyStatus(jobID, status, stage, updatedAt, nil)
		return
	}
	c.applyStatus(jobID, status, stage, updatedAt, result)

	objects := 0
	if len(result.Images) > 0 {
		objects = len(result.Images[0].Objects)
	}
	c.logger.Info().Str("job_id", jobID).Int("objects", objects).Msg("scan complete")
}

// applyStatus merges a poll outcome into the store. A missing id means the job
// was deleted while the request was in flight; the stale response is dropped.
func (c *Controller) applyStatus(jobID string, status entity.JobStatus, stage, updatedAt string, result *entity.JobResult) {
	err := c.jobs.Update(jobID, store.Patch{
		Status:    &status,
		Stage:     &stage,
		UpdatedAt: &updatedAt,
		Result:    result,
	})
	if err != nil {
		c.logger.Debug().Str("job_id", jobID).Msg("dropping update for removed job")
	}
}
