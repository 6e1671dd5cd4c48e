package devserver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shelfscan/internal/entity"
)

// pipeline stages a simulated job walks through before producing a result.
var stages = []string{"detecting", "classifying", "aggregating"}

// Simulator advances submitted jobs through the inference pipeline states and
// attaches a synthetic result. Jobs flow through a buffered channel into a
// small worker pool.
type Simulator struct {
	table     *JobTable
	workers   int
	stepDelay time.Duration
	logger    zerolog.Logger

	queue chan string
}

func NewSimulator(table *JobTable, workers int, stepDelay time.Duration, logger zerolog.Logger) *Simulator {
	if workers <= 0 {
		workers = 2
	}
	if stepDelay <= 0 {
		stepDelay = 3 * time.Second
	}
	return &Simulator{
		table:     table,
		workers:   workers,
		stepDelay: stepDelay,
		logger:    logger,
		queue:     make(chan string, 64),
	}
}

// Enqueue hands a freshly created job to the pipeline. Drops the job when the
// queue is full; it stays QUEUED forever, which is itself a useful dev case.
func (s *Simulator) Enqueue(jobID string) {
	select {
	case s.queue <- jobID:
	default:
		s.logger.Warn().Str("job_id", jobID).Msg("simulator queue full, job stays queued")
	}
}

// Run blocks until ctx is done, processing queued jobs with the worker pool.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info().Int("workers", s.workers).Dur("step_delay", s.stepDelay).Msg("simulator started")

	for i := 0; i < s.workers; i++ {
		go func(n int) {
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-s.queue:
					if err := s.process(ctx, jobID); err != nil {
						s.logger.Warn().Int("worker", n).Str("job_id", jobID).Err(err).Msg("simulation stopped")
					}
				}
			}
		}(i + 1)
	}

	<-ctx.Done()
	s.logger.Info().Msg("simulator stopped")
}

func (s *Simulator) process(ctx context.Context, jobID string) error {
	start := time.Now()

	for _, stage := range stages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.stepDelay):
		}
		if err := s.table.setStage(jobID, stage); err != nil {
			// deleted mid-run
			return err
		}
		s.logger.Debug().Str("job_id", jobID).Str("stage", stage).Msg("stage advanced")
	}

	img, err := s.table.image(jobID)
	if err != nil {
		return err
	}
	if len(img) == 0 {
		// empty upload simulates a pipeline failure
		if err := s.table.setFailed(jobID, "detecting"); err != nil {
			return err
		}
		s.logger.Info().Str("job_id", jobID).Msg("job failed (empty image)")
		return nil
	}

	job, err := s.table.get(jobID)
	if err != nil {
		return err
	}
	if err := s.table.setSucceeded(jobID, syntheticResult(job)); err != nil {
		return err
	}
	s.logger.Info().Str("job_id", jobID).Dur("took", time.Since(start)).Msg("job succeeded")
	return nil
}

// syntheticResult builds a plausible shelf-scan result: two shelves, a handful
// of detections, a compliance block when the job is scoped to a planogram.
func syntheticResult(job entity.Job) *entity.JobResult {
	labels := []string{"cola-330", "cola-330", "water-500", "juice-1l", "unknown"}
	objects := make([]entity.JobObject, 0, len(labels))
	counts := map[string]int{}
	for i, label := range labels {
		shelf := i / 3
		inShelf := i % 3
		x := float64(inShelf) * 0.3
		y := float64(shelf) * 0.5
		obj := entity.JobObject{
			Label:          label,
			ClassID:        i % 4,
			Confidence:     0.92 - float64(i)*0.05,
			BBox:           [4]float64{x, y, x + 0.25, y + 0.4},
			Crop:           fmt.Sprintf("/crops/obj_%02d.jpg", i),
			CropRel:        fmt.Sprintf("crops/obj_%02d.jpg", i),
			PredLabel:      label,
			PredConfidence: 0.9 - float64(i)*0.04,
			ShelfIndex:     &shelf,
			IndexInShelf:   &inShelf,
		}
		objects = append(objects, obj)
		if label != "unknown" {
			counts[label]++
		}
	}

	shelves := &entity.ShelvesData{
		Shelves: []entity.ShelfInfo{
			{
				ShelfIndex:         0,
				YCenterMin:         0.1,
				YCenterMax:         0.45,
				TotalObjects:       3,
				KnownCount:         3,
				UnknownCount:       0,
				ClassCounts:        map[string]int{"cola-330": 2, "water-500": 1},
				ClassesLeftToRight: []string{"cola-330", "cola-330", "water-500"},
			},
			{
				ShelfIndex:         1,
				YCenterMin:         0.55,
				YCenterMax:         0.9,
				TotalObjects:       2,
				KnownCount:         1,
				UnknownCount:       1,
				ClassCounts:        map[string]int{"juice-1l": 1},
				ClassesLeftToRight: []string{"juice-1l", "unknown"},
			},
		},
		TotalKnown:   4,
		TotalUnknown: 1,
		TotalObjects: 5,
	}

	image := entity.JobImage{
		Image:        "/input/shelf.jpg",
		ImageRel:     "input/shelf.jpg",
		Annotated:    "/annotated/shelf.jpg",
		AnnotatedRel: "annotated/shelf.jpg",
		Objects:      objects,
		Shelves:      shelves,
	}

	if job.PlanogramID != "" {
		image.Compliance = &entity.ComplianceData{
			MatchScore:    0.8,
			MatchPercent:  80,
			TotalExpected: 5,
			TotalMatched:  4,
		}
		image.Planogram = &entity.PlanogramData{
			Planogram: [][]string{
				{"cola-330", "cola-330", "water-500"},
				{"juice-1l", "juice-1l"},
			},
		}
	}

	return &entity.JobResult{
		JobID:       job.JobID,
		Status:      entity.StatusSucceeded,
		TotalImages: 1,
		Images:      []entity.JobImage{image},
	}
}
