package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RegisterDefaultTools registers the built-in tools against a workspace root.
func RegisterDefaultTools(r *Registry, workspace string) {
	r.Register(&FileSearchTool{Workspace: workspace})
	r.Register(&FileReadTool{Workspace: workspace})
	r.Register(&TimeTool{})
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

// ============================================================================
// FileSearchTool
// ============================================================================

// FileSearchTool searches the workspace by filename or file content.
type FileSearchTool struct {
	Workspace string
}

func (t *FileSearchTool) Name() string { return "file.search" }

func (t *FileSearchTool) Description() string {
	return "Search for files by name or content under a directory."
}

func (t *FileSearchTool) InputSchema() map[string]Property {
	return map[string]Property{
		"query": {
			Type:        "string",
			Description: "The text to search for.",
		},
		"path": {
			Type:        "string",
			Description: "Directory to search under. Defaults to the workspace.",
			Optional:    true,
		},
		"type": {
			Type:        "string",
			Description: "Match against file contents or file names.",
			Optional:    true,
			Enum:        []string{"content", "filename"},
		},
	}
}

// Execute walks the search root and collects matches.
func (t *FileSearchTool) Execute(ctx context.Context, input map[string]string) (Result, error) {
	query := input["query"]
	mode := input["type"]
	if mode == "" {
		mode = "content"
	}

	root := input["path"]
	if root == "" || root == "/" {
		root = t.Workspace
	}
	root = expandPath(root)
	if root == "" {
		root = "."
	}

	const maxMatches = 50
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxMatches {
			return filepath.SkipAll
		}

		switch mode {
		case "filename":
			if strings.Contains(d.Name(), query) {
				matches = append(matches, path)
			}
		default:
			data, readErr := os.ReadFile(path)
			if readErr == nil && strings.Contains(string(data), query) {
				matches = append(matches, path)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("search failed: %w", err)
	}

	content := "no matches"
	if len(matches) > 0 {
		content = strings.Join(matches, "\n")
	}
	return Result{
		Content:  content,
		Metadata: map[string]string{"matches": strconv.Itoa(len(matches))},
	}, nil
}

// ============================================================================
// FileReadTool
// ============================================================================

// FileReadTool reads the contents of a file.
type FileReadTool struct {
	Workspace string
}

func (t *FileReadTool) Name() string { return "file.read" }

func (t *FileReadTool) Description() string {
	return "Read the contents of a file at the given path."
}

func (t *FileReadTool) InputSchema() map[string]Property {
	return map[string]Property{
		"path": {
			Type:        "string",
			Description: "The path to the file to read.",
		},
	}
}

// Execute reads the file, resolving relative paths against the workspace.
func (t *FileReadTool) Execute(ctx context.Context, input map[string]string) (Result, error) {
	path := expandPath(input["path"])
	if !filepath.IsAbs(path) && t.Workspace != "" {
		path = filepath.Join(t.Workspace, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("file not found: %s", input["path"])
		}
		return Result{}, err
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory, not a file", input["path"])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}

	const maxLen = 100000
	content := string(data)
	if len(content) > maxLen {
		content = content[:maxLen] + "\n... (content truncated)"
	}
	return Result{Content: content}, nil
}

// ============================================================================
// TimeTool
// ============================================================================

// TimeTool reports the current time.
type TimeTool struct{}

func (t *TimeTool) Name() string { return "time.now" }

func (t *TimeTool) Description() string {
	return "Return the current date and time."
}

func (t *TimeTool) InputSchema() map[string]Property {
	return map[string]Property{
		"format": {
			Type:        "string",
			Description: "Output format.",
			Optional:    true,
			Enum:        []string{"rfc3339", "human"},
		},
	}
}

// Execute formats the current time.
func (t *TimeTool) Execute(ctx context.Context, input map[string]string) (Result, error) {
	now := time.Now()
	switch input["format"] {
	case "rfc3339":
		return Result{Content: now.Format(time.RFC3339)}, nil
	default:
		return Result{Content: now.Format("2006-01-02 15:04 (Monday)")}, nil
	}
}
