package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreFileNames are the ignore files consulted in the workspace root,
// in order. Patterns from all present files are combined.
var ignoreFileNames = []string{".rewindignore", ".gitignore"}

// parseIgnoreFiles reads the workspace's ignore files and returns the
// combined exclude patterns. Missing files are fine; a workspace with
// no ignore files yields no patterns.
func parseIgnoreFiles(root string) ([]string, error) {
	var patterns []string
	for _, name := range ignoreFileNames {
		filePatterns, err := parseIgnoreFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}
	return dedupePatterns(patterns), nil
}

func parseIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseIgnoreLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseIgnoreLine converts one gitignore line to a glob pattern.
// Comments, blank lines, and negations yield empty string; negation
// patterns are not supported.
func parseIgnoreLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern rewrites a gitignore pattern into the glob dialect
// excluded() understands.
func toGlobPattern(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "/")

	// Trailing slash marks a directory; match everything under it.
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	// A bare name matches at any depth.
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "**/" + pattern
	}

	// A name without an extension reads as a directory; match its contents.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}

	return pattern
}

func dedupePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
