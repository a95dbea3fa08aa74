package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagesforge/api/internal/config"
	"github.com/pagesforge/api/internal/model"
)

// Manager owns the durable per-slug artifact directories. One directory per
// task slug; round 1 starts clean, later rounds reuse what is already there.
type Manager struct {
	root string
}

// NewManager creates a workspace manager rooted at the configured directory
func NewManager(cfg *config.WorkspaceConfig) *Manager {
	return &Manager{root: cfg.Root}
}

// Dir returns the workspace directory for a slug
func (m *Manager) Dir(slug string) string {
	return filepath.Join(m.root, slug)
}

// Prepare creates the workspace for a job. Round 1 resets any leftover state;
// update rounds keep existing artifacts in place.
func (m *Manager) Prepare(slug string, round int) (string, error) {
	if slug == "" {
		return "", fmt.Errorf("empty task slug")
	}
	dir := m.Dir(slug)
	if round == 1 {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("failed to reset workspace %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// WriteArtifact stores one generated file inside the slug's workspace. The
// artifact path must stay inside the workspace; traversal is rejected.
func (m *Manager) WriteArtifact(slug string, art model.Artifact) error {
	rel := filepath.FromSlash(art.Path)
	if rel == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return fmt.Errorf("artifact path %q escapes the workspace", art.Path)
	}
	target := filepath.Join(m.Dir(slug), rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, art.Content, 0o644)
}

// List returns the relative paths of all artifacts currently in the slug's
// workspace, in slash form.
func (m *Manager) List(slug string) ([]string, error) {
	dir := m.Dir(slug)
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return paths, err
}
