package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/pagesforge/api/internal/client"
	"github.com/pagesforge/api/internal/model"
	"github.com/pagesforge/api/internal/sandbox"
)

// maxTurns bounds the conversation regardless of tool budgets, so a model
// that never converges cannot loop forever.
const maxTurns = 12

const outputClip = 4000

// Completer produces one assistant reply for a conversation
type Completer interface {
	Complete(ctx context.Context, messages []client.ChatMessage) (string, error)
}

// Searcher performs one read-only web lookup
type Searcher interface {
	Search(ctx context.Context, query string) ([]client.SearchResult, error)
}

// Runner executes one generated script in an isolated sandbox
type Runner interface {
	Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error)
}

// Input is everything the loop knows about the job
type Input struct {
	Task              string
	Brief             string
	Checks            []string
	Attachments       []model.Attachment
	Round             int
	ExistingArtifacts []string
}

// Loop drives the tool-bounded generation conversation. Tool failures are fed
// back to the model as information; only the inability to produce any
// artifact at all surfaces as an error.
type Loop struct {
	ai      Completer
	search  Searcher
	sandbox Runner
}

// NewLoop creates a generation loop over the given collaborators
func NewLoop(ai Completer, search Searcher, sb Runner) *Loop {
	return &Loop{ai: ai, search: search, sandbox: sb}
}

// action is the JSON protocol the model replies with
type action struct {
	Action       string       `json:"action"`
	Query        string       `json:"query,omitempty"`
	Script       string       `json:"script,omitempty"`
	Dependencies []string     `json:"dependencies,omitempty"`
	Files        []actionFile `json:"files,omitempty"`
}

type actionFile struct {
	Path        string `json:"path"`
	Content     string `json:"content,omitempty"`
	SandboxFile string `json:"sandbox_file,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Run produces the final artifact set for one job, spending at most the given
// tool budget along the way.
func (l *Loop) Run(ctx context.Context, in Input, budget *Budget) ([]model.Artifact, error) {
	conversation := []client.ChatMessage{
		{Role: "system", Content: buildSystemPrompt(budget)},
		{Role: "user", Content: buildUserPrompt(in)},
	}

	// Files produced by sandbox runs, available to reference from "finish"
	produced := map[string][]byte{}

	for turn := 0; turn < maxTurns; turn++ {
		reply, err := l.ai.Complete(ctx, conversation)
		if err != nil {
			return nil, fmt.Errorf("generation failed: %w", err)
		}
		conversation = append(conversation, client.ChatMessage{Role: "assistant", Content: reply})

		var act action
		if err := json.Unmarshal([]byte(extractJSON(reply)), &act); err != nil {
			conversation = appendUser(conversation,
				"Your reply was not valid JSON. Respond with exactly one JSON object using the documented actions.")
			continue
		}

		switch act.Action {
		case "search":
			conversation = appendUser(conversation, l.doSearch(ctx, act.Query, budget))
		case "execute":
			conversation = appendUser(conversation, l.doExecute(ctx, act, in.Attachments, budget, produced))
		case "finish":
			artifacts, problem := assembleArtifacts(act.Files, produced)
			if problem != "" {
				conversation = appendUser(conversation, problem)
				continue
			}
			return artifacts, nil
		default:
			conversation = appendUser(conversation,
				fmt.Sprintf("Unknown action %q. Use search, execute, or finish.", act.Action))
		}
	}

	return nil, fmt.Errorf("generation failed: no final artifacts after %d turns", maxTurns)
}

func (l *Loop) doSearch(ctx context.Context, query string, budget *Budget) string {
	if err := budget.ConsumeSearch(); err != nil {
		return "Search refused: the search budget is exhausted. Proceed with the information you already have."
	}
	results, err := l.search.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Search failed: %v. Proceed with the information you already have.", err)
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Sprintf("Search failed: %v.", err)
	}
	return fmt.Sprintf("Search results for %q:\n%s", query, clip(string(data), outputClip))
}

func (l *Loop) doExecute(ctx context.Context, act action, attachments []model.Attachment, budget *Budget, produced map[string][]byte) string {
	if err := budget.ConsumeExec(); err != nil {
		return "Execution refused: the sandbox budget is exhausted. Finish with static content instead."
	}

	res, err := l.sandbox.Execute(ctx, sandbox.Request{
		Script:       act.Script,
		Dependencies: act.Dependencies,
		Attachments:  attachments,
	})
	if err != nil {
		// Executor infrastructure failure; one budget unit is still spent
		log.Printf("Sandbox execution error: %v", err)
		return fmt.Sprintf("Execution failed before the script ran: %v. Adjust or finish with static content.", err)
	}

	var names []string
	for _, f := range res.Files {
		produced[f.Path] = f.Content
		names = append(names, f.Path)
	}

	switch res.Status {
	case sandbox.StatusSetupError:
		return fmt.Sprintf("Execution setup failed: %s. The script did not run.", res.SetupError)
	case sandbox.StatusTimeout:
		return fmt.Sprintf("Execution timed out. Partial output:\n%s", clip(res.Stdout, outputClip))
	case sandbox.StatusRuntimeError:
		return fmt.Sprintf("Script exited with code %d.\nstdout:\n%s\nstderr:\n%s\nFiles produced: %s",
			res.ExitCode, clip(res.Stdout, outputClip), clip(res.Stderr, outputClip), strings.Join(names, ", "))
	default:
		return fmt.Sprintf("Script succeeded.\nstdout:\n%s\nFiles produced: %s\nReference produced files from finish via \"sandbox_file\".",
			clip(res.Stdout, outputClip), strings.Join(names, ", "))
	}
}

// assembleArtifacts turns the model's finish payload into artifacts. A
// non-empty problem string is fed back to the model instead of failing.
func assembleArtifacts(files []actionFile, produced map[string][]byte) ([]model.Artifact, string) {
	if len(files) == 0 {
		return nil, "The finish action needs a non-empty files list."
	}

	var artifacts []model.Artifact
	for _, f := range files {
		cleaned := path.Clean(f.Path)
		if cleaned == "" || cleaned == "." || path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
			return nil, fmt.Sprintf("File path %q is outside the site root. Use paths relative to the repository root.", f.Path)
		}

		content := []byte(f.Content)
		if f.SandboxFile != "" {
			data, ok := produced[f.SandboxFile]
			if !ok {
				return nil, fmt.Sprintf("No sandbox run produced a file named %q.", f.SandboxFile)
			}
			content = data
		}

		message := f.Message
		if message == "" {
			message = fmt.Sprintf("Add %s", cleaned)
		}
		artifacts = append(artifacts, model.Artifact{
			Path:    cleaned,
			Content: content,
			Message: message,
		})
	}
	return artifacts, ""
}

func appendUser(conversation []client.ChatMessage, content string) []client.ChatMessage {
	return append(conversation, client.ChatMessage{Role: "user", Content: content})
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
