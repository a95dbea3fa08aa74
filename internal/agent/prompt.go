package agent

import (
	"fmt"
	"strings"
)

func buildSystemPrompt(budget *Budget) string {
	return fmt.Sprintf(`You are an expert in building static web sites for GitHub Pages.
Your job is to produce the files of a small static site (index.html at the root, plus any css, js, images, or data files needed to satisfy the checks).

You reply with exactly one JSON object per turn, nothing else. Available actions:

{"action": "search", "query": "..."}
  One web search for factual context. You may use it at most %d time(s).

{"action": "execute", "script": "...", "dependencies": ["pkg", ...]}
  Run a Python script in an isolated directory. Task attachments are written
  into that directory under their declared names before the script runs.
  Use it to inspect attachments or to generate binary assets (charts, images,
  PDFs). You may use it at most %d time(s); a failed or timed-out run still
  counts. If a run fails, adjust and retry within budget or fall back to
  static content.

{"action": "finish", "files": [{"path": "index.html", "content": "...", "message": "Add homepage"}, ...]}
  The final site. Paths are relative to the repository root. To include a file
  produced by an execute run, use {"path": "...", "sandbox_file": "<name>", "message": "..."}
  instead of "content". The files list must not be empty.

GitHub Pages serves from the repository root, so the entry page must be index.html at the root.
Focus on passing the provided checks; you are evaluated on whether they pass.
On update rounds, keep existing files and only add or change what the brief asks for.`,
		budget.SearchRemaining(), budget.ExecRemaining())
}

func buildUserPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-----task-----\n%s\n", in.Task)
	fmt.Fprintf(&b, "-----round-----\n%d\n", in.Round)
	fmt.Fprintf(&b, "-----brief-----\n%s\n", in.Brief)

	if len(in.Checks) > 0 {
		fmt.Fprintf(&b, "-----checks-----\n%s\n", strings.Join(in.Checks, "\n"))
	}

	if len(in.Attachments) > 0 {
		var names []string
		for _, a := range in.Attachments {
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "-----attachments (available inside execute runs)-----\n%s\n", strings.Join(names, "\n"))
	}

	if in.Round > 1 && len(in.ExistingArtifacts) > 0 {
		fmt.Fprintf(&b, "-----files already on the site (preserve unless the brief says otherwise)-----\n%s\n",
			strings.Join(in.ExistingArtifacts, "\n"))
	}

	return b.String()
}
