package util

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args ...string) (string, error)
}

// CommandExecutor runs binaries with os/exec and returns trimmed stdout.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", binary, ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return "", fmt.Errorf("%s: %w", binary, err)
		}
		return "", fmt.Errorf("%s: %w: %s", binary, err, detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Tool is an external binary the importer shells out to.
type Tool struct {
	Name        string
	Command     string
	Description string
}

// ToolStatus reports whether a tool was found on PATH.
type ToolStatus struct {
	Tool
	Available bool
	Detail    string
}

// CheckTools looks every tool up on PATH.
func CheckTools(tools []Tool) []ToolStatus {
	results := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		status := ToolStatus{Tool: tool}
		if path, err := exec.LookPath(tool.Command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", tool.Command)
		} else {
			status.Available = true
			status.Detail = path
		}
		results = append(results, status)
	}
	return results
}

// MissingTools returns an error naming every unavailable tool, or nil.
func MissingTools(statuses []ToolStatus) error {
	var missing []string
	for _, status := range statuses {
		if !status.Available {
			missing = append(missing, fmt.Sprintf("%s (%s)", status.Command, status.Description))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}
