package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// GrepTool searches file contents for a text or regex pattern.
type GrepTool struct {
	BaseTool
	workspaceRoot string
	maxResults    int
	maxFileSize   int64
}

// NewGrepTool returns a grep tool rooted at workspaceRoot.
func NewGrepTool(workspaceRoot string) *GrepTool {
	return &GrepTool{
		BaseTool: NewBaseTool(
			"grep",
			"Search for text patterns in files. Returns matching lines with file paths and line numbers.",
			[]ParameterDef{
				{Name: "pattern", Type: "string", Description: "Text or regex pattern to search for", Required: true},
				{Name: "path", Type: "string", Description: "File or directory to search in (default: workspace root)", Required: false},
				{Name: "include", Type: "string", Description: "File glob pattern to include (e.g., *.go, *.js)", Required: false},
				{Name: "ignore_case", Type: "boolean", Description: "Case-insensitive search", Required: false},
			},
		),
		workspaceRoot: workspaceRoot,
		maxResults:    50,
		maxFileSize:   1024 * 1024,
	}
}

type grepMatch struct {
	File    string
	Line    int
	Content string
}

func (t *GrepTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	pattern := GetStringArg(args, "pattern", "")
	if pattern == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "pattern is required"), nil
	}
	searchPath := GetStringArg(args, "path", ".")
	include := GetStringArg(args, "include", "")
	ignoreCase := GetBoolArg(args, "ignore_case", false)

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, searchPath)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}
	rootAbs, _ := filepath.Abs(t.workspaceRoot)

	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return failuref(t.Name(), api.ReasonNotFound, "path not found: %s", searchPath), nil
	}

	var files []string
	if info.IsDir() {
		files, err = t.collectFiles(absPath, include)
		if err != nil {
			return failure(t.Name(), api.ReasonNetworkError, err), nil
		}
	} else {
		files = []string{absPath}
	}

	var matches []grepMatch
	for _, file := range files {
		if len(matches) >= t.maxResults {
			break
		}
		fileMatches, err := t.searchFile(file, re)
		if err != nil {
			continue
		}
		matches = append(matches, fileMatches...)
	}

	if len(matches) == 0 {
		return success(t.Name(), "no matches found for pattern: "+pattern), nil
	}

	var out strings.Builder
	for i, m := range matches {
		if i >= t.maxResults {
			fmt.Fprintf(&out, "\n... (showing first %d matches)", t.maxResults)
			break
		}
		rel, _ := filepath.Rel(rootAbs, m.File)
		fmt.Fprintf(&out, "%s:%d: %s\n", rel, m.Line, strings.TrimSpace(m.Content))
	}
	return success(t.Name(), out.String()), nil
}

func (t *GrepTool) collectFiles(dir, include string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			name := info.Name()
			if strings.HasPrefix(name, ".") && name != "." {
				return filepath.SkipDir
			}
			if name == "node_modules" || name == "vendor" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > t.maxFileSize {
			return nil
		}
		if include != "" {
			if matched, _ := filepath.Match(include, info.Name()); !matched {
				return nil
			}
		}
		if isBinaryFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (t *GrepTool) searchFile(path string, re *regexp.Regexp) ([]grepMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []grepMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, grepMatch{File: path, Line: lineNum, Content: line})
			if len(matches) >= 10 {
				break
			}
		}
	}
	return matches, scanner.Err()
}

func isBinaryFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	binaryExts := map[string]bool{
		".exe": true, ".bin": true, ".so": true, ".dylib": true,
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".pdf": true, ".zip": true, ".tar": true, ".gz": true,
		".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
		".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	}
	return binaryExts[ext]
}
