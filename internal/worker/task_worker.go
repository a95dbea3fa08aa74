package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pagesforge/api/internal/agent"
	"github.com/pagesforge/api/internal/client"
	"github.com/pagesforge/api/internal/model"
	"github.com/pagesforge/api/internal/service"
	"github.com/pagesforge/api/internal/websocket"
	"github.com/pagesforge/api/internal/workspace"
)

// Generator produces the artifact set for one job under a tool budget
type Generator interface {
	Run(ctx context.Context, in agent.Input, budget *agent.Budget) ([]model.Artifact, error)
}

// Reporter delivers one terminal outcome to the evaluation endpoint
type Reporter interface {
	Deliver(ctx context.Context, evaluationURL string, outcome *model.JobOutcome) error
}

// Options carries the per-job limits the supervisor enforces
type Options struct {
	Deadline     time.Duration
	SearchBudget int
	ExecBudget   int
}

// TaskWorker drives one task through its whole lifecycle: workspace,
// repository, generation, publishing, hosting, reporting. Every job produces
// exactly one outcome; the deadline and every stage failure route to a
// fallback outcome rather than a lost job.
type TaskWorker struct {
	taskService *service.TaskService
	workspaces  *workspace.Manager
	generator   Generator
	publisher   client.Publisher
	reporter    Reporter
	hub         *websocket.Hub
	opts        Options
}

// NewTaskWorker creates a new build worker
func NewTaskWorker(
	taskService *service.TaskService,
	workspaces *workspace.Manager,
	generator Generator,
	publisher client.Publisher,
	reporter Reporter,
	hub *websocket.Hub,
	opts Options,
) *TaskWorker {
	return &TaskWorker{
		taskService: taskService,
		workspaces:  workspaces,
		generator:   generator,
		publisher:   publisher,
		reporter:    reporter,
		hub:         hub,
		opts:        opts,
	}
}

// ProcessTask handles one queued build job
func (w *TaskWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string `json:"jobId"`
		Payload []byte `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID

	var req model.TaskRequest
	if err := json.Unmarshal(taskPayload.Payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal build payload: %w", err)
	}

	log.Printf("Starting build job %s | Slug=%s | Round=%d", jobID, req.Slug(), req.Round)

	jctx, cancel := context.WithTimeout(ctx, w.opts.Deadline)
	defer cancel()

	outcome, status := w.runPipeline(jctx, jobID, &req)

	// Reporting and bookkeeping must survive an expired job deadline
	rctx := context.WithoutCancel(ctx)
	w.setStage(rctx, jobID, model.StageReporting)

	delivered := make(chan error, 1)
	go func() {
		delivered <- w.reporter.Deliver(rctx, req.EvaluationURL, outcome)
	}()

	if err := w.taskService.FinishJob(rctx, jobID, status, outcome); err != nil {
		log.Printf("Failed to record job %s outcome: %v", jobID, err)
	}
	if outcome.Success {
		w.hub.BroadcastComplete(jobID, outcome)
	} else {
		w.hub.BroadcastError(jobID, "BUILD_FAILED", outcome.Error)
	}

	if err := <-delivered; err != nil {
		log.Printf("Build job %s done but outcome delivery failed | Slug=%s | Round=%d | Error: %v",
			jobID, req.Slug(), req.Round, err)
	} else {
		log.Printf("Build job %s completed | Slug=%s | Round=%d | Success=%t",
			jobID, req.Slug(), req.Round, outcome.Success)
	}
	return nil
}

// runPipeline executes the build stages in order and always returns a
// terminal outcome: the real one, or a fallback when a stage fails or the
// deadline expires mid-flight.
func (w *TaskWorker) runPipeline(ctx context.Context, jobID string, req *model.TaskRequest) (*model.JobOutcome, model.JobStatus) {
	slug := req.Slug()
	repoCreated := false

	fail := func(err error) (*model.JobOutcome, model.JobStatus) {
		status := model.JobStatusFailed
		if ctx.Err() == context.DeadlineExceeded {
			status = model.JobStatusTimedOut
			log.Printf("=====Build job %s timed out after %s | Slug=%s | Round=%d=====", jobID, w.opts.Deadline, slug, req.Round)
		} else {
			log.Printf("=====Build job %s failed | Slug=%s | Round=%d=====\n%v", jobID, slug, req.Round, err)
		}
		return w.fallbackOutcome(req, repoCreated, err), status
	}

	// Stage: workspace directory, keyed by slug, reused on update rounds
	if _, err := w.workspaces.Prepare(slug, req.Round); err != nil {
		return fail(fmt.Errorf("workspace preparation failed: %w", err))
	}
	w.setStage(ctx, jobID, model.StageDirectoryPrepared)

	// Stage: remote repository (exists already on update rounds)
	if err := w.publisher.CreateRepo(ctx, slug); err != nil {
		return fail(fmt.Errorf("repository creation failed: %w", err))
	}
	repoCreated = true
	w.setStage(ctx, jobID, model.StageRepositoryCreated)

	// Stage: tool-bounded generation
	w.setStage(ctx, jobID, model.StageGenerating)
	existing, err := w.workspaces.List(slug)
	if err != nil {
		log.Printf("Could not list existing artifacts for %s: %v", slug, err)
	}

	budget := agent.NewBudget(w.opts.SearchBudget, w.opts.ExecBudget)
	artifacts, err := w.generator.Run(ctx, agent.Input{
		Task:              req.Task,
		Brief:             req.Brief,
		Checks:            req.Checks,
		Attachments:       req.Attachments,
		Round:             req.Round,
		ExistingArtifacts: existing,
	}, budget)
	if err != nil {
		return fail(err)
	}
	if len(artifacts) == 0 {
		return fail(fmt.Errorf("generation produced no artifacts"))
	}

	for _, art := range artifacts {
		if err := w.workspaces.WriteArtifact(slug, art); err != nil {
			return fail(fmt.Errorf("failed to store artifact %s: %w", art.Path, err))
		}
	}

	// Stage: publish artifacts, then enable hosting, then read endpoints.
	// Committed uploads stay on the remote side even when a later one fails.
	w.setStage(ctx, jobID, model.StagePublishing)
	for _, art := range artifacts {
		if err := w.publisher.CreateOrUpdateFile(ctx, slug, art.Path, art.Content, art.Message); err != nil {
			return fail(fmt.Errorf("publishing failed: %w", err))
		}
	}

	if err := w.publisher.EnablePages(ctx, slug); err != nil {
		return fail(fmt.Errorf("hosting enablement failed: %w", err))
	}
	w.setStage(ctx, jobID, model.StagePagesEnabled)

	endpoints, err := w.publisher.GetPublicEndpoints(ctx, slug)
	if err != nil {
		return fail(fmt.Errorf("endpoint retrieval failed: %w", err))
	}

	paths := make([]string, 0, len(artifacts))
	for _, art := range artifacts {
		paths = append(paths, art.Path)
	}

	return &model.JobOutcome{
		Success:   true,
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   endpoints.RepoURL,
		PagesURL:  endpoints.PagesURL,
		CommitSHA: endpoints.CommitSHA,
		Artifacts: paths,
	}, model.JobStatusSucceeded
}

// fallbackOutcome builds the degraded outcome for a failed or timed-out job.
// If the repository already exists, its URLs are filled in best-effort so the
// caller gets something to look at.
func (w *TaskWorker) fallbackOutcome(req *model.TaskRequest, repoCreated bool, cause error) *model.JobOutcome {
	outcome := &model.JobOutcome{
		Success: false,
		Email:   req.Email,
		Task:    req.Task,
		Round:   req.Round,
		Nonce:   req.Nonce,
		Error:   cause.Error(),
	}

	if repoCreated {
		ectx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if endpoints, err := w.publisher.GetPublicEndpoints(ectx, req.Slug()); err == nil {
			outcome.RepoURL = endpoints.RepoURL
			outcome.PagesURL = endpoints.PagesURL
			outcome.CommitSHA = endpoints.CommitSHA
		}
	}
	return outcome
}

func (w *TaskWorker) setStage(ctx context.Context, jobID string, stage model.JobStage) {
	if err := w.taskService.SetStage(ctx, jobID, stage); err != nil {
		log.Printf("Failed to record stage %s for job %s: %v", stage, jobID, err)
	}
	w.hub.BroadcastProgress(jobID, model.JobStatusRunning, stage)
}
