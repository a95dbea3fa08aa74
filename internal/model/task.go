package model

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// Attachment is a named payload embedded in a task request as a data URI,
// e.g. "data:image/png;base64,iVBOR...".
type Attachment struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}

var dataURIPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.*)$`)

// Decode returns the media type and raw bytes of the attachment payload.
// Only base64 data URIs are accepted; anything else is rejected rather than
// coerced, and malformed base64 fails instead of truncating.
func (a Attachment) Decode() (string, []byte, error) {
	m := dataURIPattern.FindStringSubmatch(a.URL)
	if m == nil {
		return "", nil, fmt.Errorf("attachment %q: unsupported payload encoding", a.Name)
	}
	data, err := base64.StdEncoding.Strict().DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("attachment %q: invalid base64 payload: %w", a.Name, err)
	}
	return m[1], data, nil
}

// TaskRequest is the intake payload for one build/update job.
// Round 1 creates the site; round > 1 updates the existing one.
type TaskRequest struct {
	Email         string       `json:"email" validate:"required,email"`
	Secret        string       `json:"secret" validate:"required"`
	Task          string       `json:"task" validate:"required"`
	Round         int          `json:"round" validate:"required,min=1"`
	EvaluationURL string       `json:"evaluation_url" validate:"required,url"`
	Nonce         string       `json:"nonce,omitempty"`
	Brief         string       `json:"brief,omitempty"`
	Checks        []string     `json:"checks,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// Slug returns the repository/workspace name for the task. The task name is
// stable across rounds and determines the job's namespace.
func (r *TaskRequest) Slug() string {
	slug := strings.ToLower(strings.TrimSpace(r.Task))
	slug = strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
			return c
		case c == ' ' || c == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-.")
}

// Artifact is one generated file destined for the site repository.
type Artifact struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Message string `json:"message"`
}

// TaskAckResponse is returned synchronously on submission.
type TaskAckResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	JobID         string `json:"jobId"`
	Email         string `json:"email"`
	Task          string `json:"task"`
	Round         int    `json:"round"`
	EvaluationURL string `json:"evaluation_url"`
}
