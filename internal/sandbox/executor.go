package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pagesforge/api/internal/config"
	"github.com/pagesforge/api/internal/model"
)

const (
	scriptName = "script.py"
	depsDir    = ".deps"
)

// Status classifies one execution
type Status string

const (
	StatusOK           Status = "ok"
	StatusSetupError   Status = "setup_error"
	StatusRuntimeError Status = "runtime_error"
	StatusTimeout      Status = "timeout"
)

// Request describes one script execution
type Request struct {
	Script       string
	Dependencies []string
	Attachments  []model.Attachment
}

// ProducedFile is a file the script left behind in the sandbox directory
type ProducedFile struct {
	Path    string
	Content []byte
}

// Result captures everything the caller needs to decide what to do next.
// Setup failures (attachment decoding, dependency install) are reported in
// SetupError and never conflated with script failures.
type Result struct {
	Status     Status
	Stdout     string
	Stderr     string
	ExitCode   int
	SetupError string
	Files      []ProducedFile
}

// Executor runs untrusted generated scripts, one fresh ephemeral directory
// per invocation.
type Executor struct {
	interpreter string
	timeout     time.Duration
	installDeps bool
}

// NewExecutor creates a new sandbox executor
func NewExecutor(cfg *config.SandboxConfig) *Executor {
	return &Executor{
		interpreter: cfg.Interpreter,
		timeout:     time.Duration(cfg.Timeout) * time.Second,
		installDeps: cfg.InstallDeps,
	}
}

// Execute materializes attachments, installs declared dependencies, runs the
// script under a time bound, and collects produced files. The sandbox
// directory is discarded before returning; nothing leaks between calls.
// A non-nil error means the executor itself could not set up a sandbox; all
// script-level failures are reported through the Result.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	dir, err := os.MkdirTemp("", "pagesforge-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, scriptName), []byte(req.Script), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	// Materialize attachments before execution; decode failures are setup
	// errors, not script failures
	initial := map[string]bool{scriptName: true}
	for _, att := range req.Attachments {
		name := filepath.Base(att.Name)
		_, data, err := att.Decode()
		if err != nil {
			return &Result{Status: StatusSetupError, SetupError: err.Error()}, nil
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to materialize attachment %q: %w", name, err)
		}
		initial[name] = true
	}

	if len(req.Dependencies) > 0 && e.installDeps {
		if setupErr := e.install(ctx, dir, req.Dependencies); setupErr != "" {
			return &Result{Status: StatusSetupError, SetupError: setupErr}, nil
		}
	}

	result := e.run(ctx, dir)

	files, err := collectProduced(dir, initial)
	if err != nil {
		log.Printf("Sandbox output collection failed: %v", err)
	}
	result.Files = files
	return result, nil
}

// install resolves declared dependencies into a sandbox-local directory.
// Returns a non-empty description on failure.
func (e *Executor) install(ctx context.Context, dir string, deps []string) string {
	ictx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append([]string{"-m", "pip", "install", "--quiet", "--target", depsDir}, deps...)
	cmd := exec.CommandContext(ictx, e.interpreter, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ictx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("dependency install timed out after %s", e.timeout)
		}
		return fmt.Sprintf("dependency install failed: %v: %s", err, stderr.String())
	}
	return ""
}

func (e *Executor) run(ctx context.Context, dir string) *Result {
	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(rctx, e.interpreter, scriptName)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONPATH="+depsDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case rctx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimeout
		result.ExitCode = -1
	case err != nil:
		result.Status = StatusRuntimeError
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = err.Error()
		}
	default:
		result.Status = StatusOK
	}
	return result
}

// collectProduced returns every file under dir that was not part of the
// initial input set. The dependency directory is skipped.
func collectProduced(dir string, initial map[string]bool) ([]ProducedFile, error) {
	var files []ProducedFile
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel == depsDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if initial[rel] {
			return nil
		}
		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return readErr
		}
		files = append(files, ProducedFile{Path: rel, Content: content})
		return nil
	})
	return files, err
}
