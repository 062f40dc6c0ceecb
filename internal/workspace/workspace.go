// Package workspace implements per-(agent,user) file I/O sandboxed to
// base_working_path/{agent_id}_{user_id}/. Absolute paths and paths whose
// ".." segments still climb out of the scope directory after cleaning
// are rejected before ever touching the filesystem.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentctx/platform/internal/errs"
)

// Manager roots every operation under a per-(agent,user) directory of
// basePath.
type Manager struct {
	basePath string
}

func New(basePath string) *Manager {
	return &Manager{basePath: basePath}
}

// FileInfo is one entry of List's result.
type FileInfo struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

func (m *Manager) scopeDir(agentID, userID string) string {
	return filepath.Join(m.basePath, fmt.Sprintf("%s_%s", agentID, userID))
}

// resolve validates path against directory-traversal and absolute-path
// escapes, then joins it under the (agent,user) scope directory.
func (m *Manager) resolve(agentID, userID, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", errs.Validation("workspace: absolute paths are not allowed")
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", errs.Validation("workspace: path traversal is not allowed")
	}

	scope := m.scopeDir(agentID, userID)
	full := filepath.Join(scope, cleaned)

	absScope, err := filepath.Abs(scope)
	if err != nil {
		return "", errs.Internal("workspace: resolve scope dir", err)
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", errs.Internal("workspace: resolve path", err)
	}
	if absFull != absScope && !strings.HasPrefix(absFull, absScope+string(filepath.Separator)) {
		return "", errs.Validation("workspace: path escapes the agent workspace")
	}
	return absFull, nil
}

// Read returns path's contents within (agentID, userID)'s workspace.
func (m *Manager) Read(agentID, userID, path string) ([]byte, error) {
	full, err := m.resolve(agentID, userID, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("file")
		}
		return nil, errs.Internal("workspace: read failed", err)
	}
	return data, nil
}

// Write creates or overwrites path with content, creating parent
// directories as needed.
func (m *Manager) Write(agentID, userID, path string, content []byte) error {
	full, err := m.resolve(agentID, userID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Internal("workspace: create directory failed", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errs.Internal("workspace: write failed", err)
	}
	return nil
}

// Delete removes path from (agentID, userID)'s workspace.
func (m *Manager) Delete(agentID, userID, path string) error {
	full, err := m.resolve(agentID, userID, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return errs.NotFound("file")
		}
		return errs.Internal("workspace: delete failed", err)
	}
	return nil
}

// List enumerates every file directly under (agentID, userID)'s
// workspace root, returning an empty slice (not an error) if the
// directory has never been created.
func (m *Manager) List(agentID, userID string) ([]FileInfo, error) {
	scope := m.scopeDir(agentID, userID)
	entries, err := os.ReadDir(scope)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, errs.Internal("workspace: list failed", err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), IsDir: e.IsDir()})
	}
	return out, nil
}
