package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultCommandTimeout bounds shell and docker command execution.
const DefaultCommandTimeout = 60 * time.Second

// defaultBlockedCommands are substrings that make a shell command too
// dangerous to execute regardless of configuration.
var defaultBlockedCommands = []string{
	"rm -rf /",
	"dd if=",
	"mkfs",
	"> /dev/",
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// WorkspaceConfig controls filesystem and command restrictions.
type WorkspaceConfig struct {
	// Hidden paths are invisible to all operations (doublestar globs,
	// matched against workspace-relative paths).
	Hidden []string
	// ReadOnly paths can be read but not written or removed.
	ReadOnly []string
	// BlockedCommands are substrings that reject a shell command, merged
	// with the built-in blocklist.
	BlockedCommands []string
	// CommandTimeout bounds each shell command. Zero means the default.
	CommandTimeout time.Duration
}

// Workspace is where all capability side effects happen: a working tree
// rooted at a single directory. Paths are resolved relative to the root and
// may not escape it.
type Workspace struct {
	root            string
	hidden          []string
	readOnly        []string
	blockedCommands []string
	commandTimeout  time.Duration
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string, cfg WorkspaceConfig) (*Workspace, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Workspace{
		root:            abs,
		hidden:          cfg.Hidden,
		readOnly:        cfg.ReadOnly,
		blockedCommands: append(append([]string{}, defaultBlockedCommands...), cfg.BlockedCommands...),
		commandTimeout:  timeout,
	}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// resolve maps a workspace-relative path to an absolute path, rejecting
// escapes and hidden paths.
func (w *Workspace) resolve(path string) (string, error) {
	if path == "" || path == "." {
		return w.root, nil
	}
	joined := filepath.Join(w.root, path)
	rel, err := filepath.Rel(w.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	if w.matchesAny(rel, w.hidden) {
		return "", fmt.Errorf("path %q is not accessible", path)
	}
	return joined, nil
}

// checkWritable rejects writes to read-only paths.
func (w *Workspace) checkWritable(path string) error {
	rel, err := filepath.Rel(w.root, filepath.Join(w.root, path))
	if err != nil {
		return fmt.Errorf("path %q escapes the workspace", path)
	}
	if w.matchesAny(rel, w.readOnly) {
		return fmt.Errorf("path %q is read-only", path)
	}
	return nil
}

func (w *Workspace) matchesAny(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadFile returns the contents of a file.
func (w *Workspace) ReadFile(path string) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if bytes.ContainsRune(data, 0) {
		return "", fmt.Errorf("cannot read binary file %s", path)
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating parent directories.
func (w *Workspace) WriteFile(path, content string) error {
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := w.checkWritable(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ListDir returns sorted directory entries, directories suffixed with "/".
func (w *Workspace) ListDir(path string) ([]string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		rel := filepath.Join(path, entry.Name())
		if relClean, err := filepath.Rel(w.root, filepath.Join(w.root, rel)); err == nil && w.matchesAny(relClean, w.hidden) {
			continue
		}
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Mkdir creates a directory including parents.
func (w *Workspace) Mkdir(path string) error {
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := w.checkWritable(path); err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file or directory tree.
func (w *Workspace) Remove(path string) error {
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := w.checkWritable(path); err != nil {
		return err
	}
	if resolved == w.root {
		return fmt.Errorf("refusing to remove the workspace root")
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	if info.IsDir() {
		return os.RemoveAll(resolved)
	}
	return os.Remove(resolved)
}

// Grep searches for a pattern under path, preferring ripgrep and falling
// back to grep. No matches is not an error.
func (w *Workspace) Grep(ctx context.Context, pattern, path string) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}

	name := "grep"
	args := []string{"-rn", pattern, resolved}
	if rgPath, err := exec.LookPath("rg"); err == nil {
		name = rgPath
		args = []string{"--line-number", "--no-heading", pattern, resolved}
	}

	ctx, cancel := context.WithTimeout(ctx, w.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = w.root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // exit 1 means no matches, which is fine
	if stdout.Len() == 0 {
		return fmt.Sprintf("no matches found for pattern: %s", pattern), nil
	}
	return stdout.String(), nil
}

// commandBlocked reports the first blocked pattern a command contains.
func (w *Workspace) commandBlocked(command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, pattern := range w.blockedCommands {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}

// Exec runs a shell command in the workspace with a timeout. The result is
// always returned for a command that started, even on nonzero exit.
func (w *Workspace) Exec(ctx context.Context, command, cwd string) (*ExecResult, error) {
	if pattern, blocked := w.commandBlocked(command); blocked {
		return nil, fmt.Errorf("command blocked for safety: %s", pattern)
	}

	workDir := w.root
	if cwd != "" && cwd != "." {
		resolved, err := w.resolve(cwd)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("directory not found: %s", cwd)
		}
		workDir = resolved
	}

	ctx, cancel := context.WithTimeout(ctx, w.commandTimeout)
	defer cancel()

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("executing command: %w", err)
		}
	}

	return result, nil
}

// ExecStdin runs a program with input on stdin, used for git apply.
func (w *Workspace) ExecStdin(ctx context.Context, stdin string, name string, args ...string) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = w.root
	cmd.Stdin = strings.NewReader(stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("executing %s: %w", name, err)
		}
	}
	return result, nil
}

// Git runs a git subcommand in the workspace root.
func (w *Workspace) Git(ctx context.Context, args ...string) (*ExecResult, error) {
	return w.ExecStdin(ctx, "", "git", args...)
}
