package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Job stages, in pipeline order. A job that fails or times out keeps the
// stage it last reached.
type JobStage string

const (
	StageReceived          JobStage = "received"
	StageDirectoryPrepared JobStage = "directory_prepared"
	StageRepositoryCreated JobStage = "repository_created"
	StageGenerating        JobStage = "generating"
	StagePublishing        JobStage = "publishing"
	StagePagesEnabled      JobStage = "pages_enabled"
	StageReporting         JobStage = "reporting"
	StageDone              JobStage = "done"
)

// Job represents a background build job in the system
type Job struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Round       int        `json:"round"`
	Status      JobStatus  `json:"status"`
	Stage       JobStage   `json:"stage"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Outcome     []byte     `json:"outcome,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobOutcome is the terminal result of one job, delivered exactly once to the
// caller-supplied evaluation endpoint.
type JobOutcome struct {
	Success   bool     `json:"success"`
	Email     string   `json:"email"`
	Task      string   `json:"task"`
	Round     int      `json:"round"`
	Nonce     string   `json:"nonce,omitempty"`
	RepoURL   string   `json:"repo_url"`
	PagesURL  string   `json:"pages_url"`
	CommitSHA string   `json:"commit_sha"`
	Artifacts []string `json:"artifacts,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// JobStatusResponse is returned by the job inspection endpoint.
type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Slug        string     `json:"slug"`
	Round       int        `json:"round"`
	Status      JobStatus  `json:"status"`
	Stage       JobStage   `json:"stage"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
