package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cartrita/mcp/internal/provider/automation"
	"github.com/cartrita/mcp/internal/provider/search"
)

// safeDirs restricts file tools to world-scratch and home trees.
var safeDirs = []string{"/tmp", "/home", "/var/tmp"}

// BuiltinDeps carries the collaborators the core tool set needs.
type BuiltinDeps struct {
	Search      search.Provider
	Automation  automation.Backend
	CodeTimeout time.Duration
}

// RegisterBuiltins installs the core tool set: web_search and system_info
// (public), file_read/file_write/screenshot (restricted), execute_code
// (supervised).
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	if deps.CodeTimeout <= 0 {
		deps.CodeTimeout = 30 * time.Second
	}

	r.Register("web_search", webSearchTool(deps.Search), PermissionPublic,
		"Search the web for information",
		objectSchema(map[string]interface{}{
			"query":       prop("string", "Search query"),
			"num_results": prop("integer", "Number of results to return"),
		}, "query"))

	r.Register("file_read", fileReadTool, PermissionRestricted,
		"Read contents of a file",
		objectSchema(map[string]interface{}{
			"file_path": prop("string", "Path to file to read"),
		}, "file_path"))

	r.Register("file_write", fileWriteTool, PermissionRestricted,
		"Write content to a file",
		objectSchema(map[string]interface{}{
			"file_path": prop("string", "Path to file to write"),
			"content":   prop("string", "Content to write to file"),
			"mode":      prop("string", "Write mode: 'w' (overwrite) or 'a' (append)"),
		}, "file_path", "content"))

	r.Register("screenshot", screenshotTool(deps.Automation), PermissionRestricted,
		"Take a screenshot of the current desktop",
		objectSchema(map[string]interface{}{}))

	r.Register("system_info", systemInfoTool, PermissionPublic,
		"Get system information",
		objectSchema(map[string]interface{}{
			"info_type": prop("string", "Type of info: 'basic' or 'memory'"),
		}))

	r.Register("execute_code", executeCodeTool(deps.CodeTimeout), PermissionSupervised,
		"Execute code in a sandboxed environment",
		objectSchema(map[string]interface{}{
			"code":     prop("string", "Code to execute"),
			"language": prop("string", "Programming language: 'python', 'javascript', 'bash'"),
			"timeout":  prop("integer", "Execution timeout in seconds"),
		}, "code"))
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func webSearchTool(provider search.Provider) Func {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		query := stringParam(params, "query")
		if query == "" {
			return nil, fmt.Errorf("query is required")
		}
		if provider == nil {
			return nil, fmt.Errorf("no search provider configured")
		}

		results, err := provider.Search(ctx, query, intParam(params, "num_results", 5))
		if err != nil {
			return nil, fmt.Errorf("web search failed: %w", err)
		}

		items := make([]map[string]interface{}, 0, len(results))
		for _, res := range results {
			items = append(items, map[string]interface{}{
				"title":   res.Title,
				"snippet": res.Snippet,
				"url":     res.URL,
			})
		}
		return map[string]interface{}{
			"query":         query,
			"results":       items,
			"total_results": len(items),
		}, nil
	}
}

func fileReadTool(_ context.Context, params map[string]interface{}) (interface{}, error) {
	path := stringParam(params, "file_path")
	if path == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	resolved, err := resolveSafePath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("file read failed: %w", err)
	}
	return map[string]interface{}{
		"file_path":  path,
		"content":    string(content),
		"size_bytes": len(content),
	}, nil
}

func fileWriteTool(_ context.Context, params map[string]interface{}) (interface{}, error) {
	path := stringParam(params, "file_path")
	content := stringParam(params, "content")
	if path == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	resolved, err := resolveSafePath(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("file write failed: %w", err)
	}

	mode := stringParam(params, "mode")
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if mode == "a" {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	} else {
		mode = "w"
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file write failed: %w", err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("file write failed: %w", err)
	}
	return map[string]interface{}{
		"file_path":     path,
		"bytes_written": n,
		"mode":          mode,
	}, nil
}

// resolveSafePath resolves the path and requires it to live under a safe
// directory.
func resolveSafePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	abs = filepath.Clean(abs)
	for _, dir := range safeDirs {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("access denied: unsafe directory")
}

func screenshotTool(backend automation.Backend) Func {
	return func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		if backend == nil || !backend.Available() {
			return nil, automation.ErrUnavailable
		}

		img, err := backend.Screenshot()
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}

		dir := filepath.Join(os.TempDir(), "cartrita_screenshots")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		path := filepath.Join(dir, fmt.Sprintf("screenshot_%s.png", time.Now().UTC().Format("20060102_150405.000000")))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}

		size, err := backend.DisplaySize()
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		return map[string]interface{}{
			"screenshot_path":   path,
			"screenshot_base64": base64.StdEncoding.EncodeToString(img),
			"width":             size.Width,
			"height":            size.Height,
		}, nil
	}
}

func systemInfoTool(_ context.Context, params map[string]interface{}) (interface{}, error) {
	infoType := stringParam(params, "info_type")
	if infoType == "" {
		infoType = "basic"
	}

	switch infoType {
	case "basic":
		hostname, _ := os.Hostname()
		return map[string]interface{}{
			"platform":   runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpu_count":  runtime.NumCPU(),
			"goroutines": runtime.NumGoroutine(),
			"hostname":   hostname,
			"pid":        os.Getpid(),
		}, nil
	case "memory":
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return map[string]interface{}{
			"heap_alloc_bytes": m.HeapAlloc,
			"heap_sys_bytes":   m.HeapSys,
			"num_gc":           m.NumGC,
			"total_alloc":      m.TotalAlloc,
		}, nil
	default:
		return nil, fmt.Errorf("unknown info_type: %s", infoType)
	}
}

func executeCodeTool(defaultTimeout time.Duration) Func {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		code := stringParam(params, "code")
		if code == "" {
			return nil, fmt.Errorf("code is required")
		}
		language := stringParam(params, "language")
		if language == "" {
			language = "python"
		}
		timeout := defaultTimeout
		if secs := intParam(params, "timeout", 0); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		return ExecuteCode(ctx, code, language, timeout)
	}
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

// intParam tolerates the float64 that JSON decoding produces for numbers.
func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
