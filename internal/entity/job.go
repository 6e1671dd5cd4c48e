package entity

type JobStatus string

const (
	StatusQueued    JobStatus = "QUEUED"
	StatusRunning   JobStatus = "RUNNING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further status transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one submitted shelf image tracked through its server-side lifecycle.
// The id is always assigned by the server; the client never generates one.
type Job struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
	PlanogramID string    `json:"planogram_id,omitempty"`

	// LocalImagePath points at the locally saved copy of the captured image.
	// Client-only, never sent to the server.
	LocalImagePath string `json:"-"`

	// Result is set only after Status reaches SUCCEEDED and the result
	// fetch completed. SUCCEEDED without a result is a valid transient state.
	Result *JobResult `json:"result,omitempty"`
}

type JobResult struct {
	JobID       string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	TotalImages int        `json:"total_images"`
	Images      []JobImage `json:"images"`
}

// JobImage holds detections for one submitted image. Paths are server-relative
// and resolved through the files endpoint.
type JobImage struct {
	Image        string          `json:"image"`
	ImageRel     string          `json:"image_rel"`
	Annotated    string          `json:"annotated"`
	AnnotatedRel string          `json:"annotated_rel"`
	Objects      []JobObject     `json:"objects"`
	Shelves      *ShelvesData    `json:"shelves,omitempty"`
	Compliance   *ComplianceData `json:"compliance,omitempty"`
	Planogram    *PlanogramData  `json:"planogram,omitempty"`
}

type JobObject struct {
	Label          string     `json:"label"`
	ClassID        int        `json:"class_id"`
	Confidence     float64    `json:"confidence"`
	BBox           [4]float64 `json:"bbox"`
	Crop           string     `json:"crop"`
	CropRel        string     `json:"crop_rel"`
	PredLabel      string     `json:"pred_label"`
	PredConfidence float64    `json:"pred_confidence"`
	ShelfIndex     *int       `json:"shelf_index,omitempty"`
	IndexInShelf   *int       `json:"index_in_shelf,omitempty"`
}

type ShelfInfo struct {
	ShelfIndex         int            `json:"shelf_index"`
	YCenterMin         float64        `json:"y_center_min"`
	YCenterMax         float64        `json:"y_center_max"`
	TotalObjects       int            `json:"total_objects"`
	KnownCount         int            `json:"known_count"`
	UnknownCount       int            `json:"unknown_count"`
	ClassCounts        map[string]int `json:"class_counts"`
	ClassesLeftToRight []string       `json:"classes_left_to_right"`
}

type ShelvesData struct {
	Shelves      []ShelfInfo `json:"shelves"`
	TotalKnown   int         `json:"total_known"`
	TotalUnknown int         `json:"total_unknown"`
	TotalObjects int         `json:"total_objects"`
}

type PlanogramData struct {
	Planogram [][]string `json:"planogram"`
}

type ComplianceData struct {
	MatchScore    float64 `json:"match_score"`
	MatchPercent  float64 `json:"match_percent"`
	TotalExpected int     `json:"total_expected"`
	TotalMatched  int     `json:"total_matched"`
}

// CreateJobResponse is the submission endpoint's reply.
type CreateJobResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse is the status endpoint's reply.
type JobStatusResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}
