package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapesWorkspace is the sentinel wrapped by resolvePathInWorkspace
// whenever userPath (directly or through a symlink) would resolve outside
// workspaceRoot. File tools translate it into api.ReasonPermissionDenied —
// the sandbox boundary every file_*/edit_file/ls/glob/grep tool call must
// respect (spec.md §4.3).
var ErrPathEscapesWorkspace = errors.New("path escapes workspace")

// resolvePathInWorkspace resolves userPath against workspaceRoot and
// rejects anything that would land outside it, including via a symlink
// whose target (or, for a not-yet-existing path, whose nearest existing
// ancestor) points outside the root.
func resolvePathInWorkspace(workspaceRoot, userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		userPath = "."
	}

	rootAbs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)

	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root symlinks: %w", err)
	}
	rootReal = filepath.Clean(rootReal)

	var targetAbs string
	if filepath.IsAbs(userPath) {
		targetAbs = filepath.Clean(userPath)
	} else {
		targetAbs = filepath.Clean(filepath.Join(rootAbs, userPath))
	}

	targetAbs, err = filepath.Abs(targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	targetAbs = filepath.Clean(targetAbs)

	if !pathWithinRoot(rootAbs, targetAbs) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesWorkspace, userPath)
	}

	if _, err := os.Lstat(targetAbs); err == nil {
		targetReal, err := filepath.EvalSymlinks(targetAbs)
		if err != nil {
			return "", fmt.Errorf("resolve path symlinks: %w", err)
		}
		targetReal = filepath.Clean(targetReal)
		if !pathWithinRoot(rootReal, targetReal) {
			return "", fmt.Errorf("%w via symlink: %s", ErrPathEscapesWorkspace, userPath)
		}
		return targetReal, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat path: %w", err)
	}

	// The target does not exist yet. Walk up to the nearest existing
	// ancestor and check that instead, so writes to new files are still
	// sandbox-checked.
	parent := filepath.Dir(targetAbs)
	for {
		if _, err := os.Lstat(parent); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat parent path: %w", err)
		}

		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}

	parentReal, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", fmt.Errorf("resolve parent symlinks: %w", err)
	}
	parentReal = filepath.Clean(parentReal)

	suffix, err := filepath.Rel(parent, targetAbs)
	if err != nil {
		return "", fmt.Errorf("compute target suffix: %w", err)
	}
	if suffix == ".." || strings.HasPrefix(suffix, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesWorkspace, userPath)
	}

	targetReal := filepath.Clean(filepath.Join(parentReal, suffix))
	if !pathWithinRoot(rootReal, targetReal) {
		return "", fmt.Errorf("%w via symlink: %s", ErrPathEscapesWorkspace, userPath)
	}
	return targetReal, nil
}

func pathWithinRoot(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
