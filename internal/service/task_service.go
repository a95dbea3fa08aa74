package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pagesforge/api/internal/model"
)

const TaskTypeBuild = "task:build"

// TaskService manages build job records and queueing. Job records live in
// Redis with a 24h retention; the queue hands jobs to the worker pool.
type TaskService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewTaskService(redisClient *redis.Client, asynqClient *asynq.Client) *TaskService {
	return &TaskService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// SubmitTask records a queued job and enqueues it for the worker pool. It
// returns as soon as the job is queued; the caller gets an acknowledgment,
// never the job result. Queue retries are disabled so a job delivers its
// outcome exactly once, on its own fallback path if need be.
func (s *TaskService) SubmitTask(ctx context.Context, req *model.TaskRequest) (*model.TaskAckResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Slug:      req.Slug(),
		Round:     req.Round,
		Status:    model.JobStatusQueued,
		Stage:     model.StageReceived,
		Payload:   payloadBytes,
		CreatedAt: now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newBuildTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("tasks"),
		asynq.MaxRetry(0),
		asynq.Timeout(15*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.TaskAckResponse{
		Status:        "accepted",
		Message:       "Task is being processed",
		JobID:         jobID,
		Email:         req.Email,
		Task:          req.Task,
		Round:         req.Round,
		EvaluationURL: req.EvaluationURL,
	}, nil
}

// GetStatus returns the current status of a build job
func (s *TaskService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:       job.ID,
		Slug:        job.Slug,
		Round:       job.Round,
		Status:      job.Status,
		Stage:       job.Stage,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetOutcome returns the terminal outcome of a finished job
func (s *TaskService) GetOutcome(ctx context.Context, jobID string) (*model.JobOutcome, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusQueued || job.Status == model.JobStatusRunning {
		return nil, fmt.Errorf("job not completed")
	}

	var outcome model.JobOutcome
	if err := json.Unmarshal(job.Outcome, &outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &outcome, nil
}

// SetStage records a stage transition (called by worker)
func (s *TaskService) SetStage(ctx context.Context, jobID string, stage model.JobStage) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Stage = stage
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// FinishJob records the terminal status and outcome of a job (called by worker)
func (s *TaskService) FinishJob(ctx context.Context, jobID string, status model.JobStatus, outcome *model.JobOutcome) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	outcomeBytes, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	job.Status = status
	job.Stage = model.StageDone
	job.Outcome = outcomeBytes
	if outcome.Error != "" {
		errMsg := outcome.Error
		job.Error = &errMsg
	}
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *TaskService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *TaskService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newBuildTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": payload,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBuild, data), nil
}
