package devserver

import (
	"errors"
	"sync"
	"time"

	"shelfscan/internal/entity"
)

var errUnknownJob = errors.New("unknown job")

// record is one simulated job plus the artifacts the files endpoint serves.
type record struct {
	job   entity.Job
	image []byte
}

// JobTable is the devserver's in-memory job storage. A development stand-in
// holds nothing worth persisting.
type JobTable struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
}

func NewJobTable() *JobTable {
	return &JobTable{records: make(map[string]*record)}
}

func (t *JobTable) create(job entity.Job, image []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[job.JobID] = &record{job: job, image: image}
	// newest first, matching how the client displays its own submissions
	t.order = append([]string{job.JobID}, t.order...)
}

func (t *JobTable) get(jobID string) (entity.Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[jobID]
	if !ok {
		return entity.Job{}, errUnknownJob
	}
	return r.job, nil
}

func (t *JobTable) image(jobID string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[jobID]
	if !ok {
		return nil, errUnknownJob
	}
	return r.image, nil
}

func (t *JobTable) list(planogramID string) []entity.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]entity.Job, 0, len(t.order))
	for _, id := range t.order {
		r := t.records[id]
		if planogramID != "" && r.job.PlanogramID != planogramID {
			continue
		}
		out = append(out, r.job)
	}
	return out
}

func (t *JobTable) delete(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[jobID]; !ok {
		return errUnknownJob
	}
	delete(t.records, jobID)
	for i, id := range t.order {
		if id == jobID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// setStage moves a job to RUNNING with the given pipeline stage.
func (t *JobTable) setStage(jobID, stage string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[jobID]
	if !ok {
		return errUnknownJob
	}
	r.job.Status = entity.StatusRunning
	r.job.Stage = stage
	r.job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (t *JobTable) setSucceeded(jobID string, result *entity.JobResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[jobID]
	if !ok {
		return errUnknownJob
	}
	r.job.Status = entity.StatusSucceeded
	r.job.Stage = ""
	r.job.Result = result
	r.job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (t *JobTable) setFailed(jobID, stage string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[jobID]
	if !ok {
		return errUnknownJob
	}
	r.job.Status = entity.StatusFailed
	r.job.Stage = stage
	r.job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}
