package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ExecuteCode runs a snippet in a subprocess with the working directory set
// to a fresh temporary directory. Supported languages: python, javascript,
// bash. The result map carries exit code, stdout, and stderr; spawn failures
// and timeouts are returned as errors.
func ExecuteCode(ctx context.Context, code, language string, timeout time.Duration) (map[string]interface{}, error) {
	workDir, err := os.MkdirTemp("", "cartrita_exec_")
	if err != nil {
		return nil, fmt.Errorf("code execution failed: %w", err)
	}
	defer os.RemoveAll(workDir)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch language {
	case "python":
		script := filepath.Join(workDir, "snippet.py")
		if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
			return nil, fmt.Errorf("code execution failed: %w", err)
		}
		cmd = exec.CommandContext(runCtx, "python3", script)
	case "javascript":
		cmd = exec.CommandContext(runCtx, "node", "-e", code)
	case "bash":
		cmd = exec.CommandContext(runCtx, "bash", "-c", code)
	default:
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	var stdout, stderr bytes.Buffer
	cmd.Dir = workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("code execution timed out after %s", timeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("code execution failed: %w", runErr)
		}
	}

	return map[string]interface{}{
		"language":  language,
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"succeeded": exitCode == 0,
	}, nil
}
