// Package workspace reads and watches the files a session tracks: an
// extension-allowlisted walk of the workspace tree, gitignore-style
// excludes, and a filesystem watcher that feeds changed paths back into
// the pending call.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// defaultSkipDirs are directories never scanned or watched. They hold
// generated code, dependencies, or version control data.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".rewind":      true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

const defaultMaxFileSize = 1024 * 1024 // 1MB

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// Extensions is the file-extension allowlist, e.g. [".go", ".md"].
	// Extensions are matched case-insensitively; at least one is required.
	Extensions []string

	// MaxFileSize caps the size of files included in a scan. Zero means
	// the 1MB default; larger files are skipped, not errored.
	MaxFileSize int64

	// ExcludePatterns are extra glob patterns applied on top of the
	// ignore files found in the workspace root.
	ExcludePatterns []string
}

// Scanner walks a workspace tree and returns the current content of
// every eligible file, keyed by slash-separated path relative to root.
type Scanner struct {
	root        string
	extensions  map[string]bool
	maxFileSize int64
	excludes    []string
	logger      *zap.Logger
}

// NewScanner creates a scanner rooted at root. Ignore files in the root
// are parsed once at construction; a nil logger defaults to a no-op
// logger.
func NewScanner(root string, opts ScannerOptions, logger *zap.Logger) (*Scanner, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if len(opts.Extensions) == 0 {
		return nil, fmt.Errorf("at least one extension is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	maxSize := opts.MaxFileSize
	if maxSize == 0 {
		maxSize = defaultMaxFileSize
	}

	extensions := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}

	excludes, err := parseIgnoreFiles(root)
	if err != nil {
		return nil, fmt.Errorf("parsing ignore files: %w", err)
	}
	excludes = append(excludes, opts.ExcludePatterns...)

	return &Scanner{
		root:        filepath.Clean(root),
		extensions:  extensions,
		maxFileSize: maxSize,
		excludes:    excludes,
		logger:      logger,
	}, nil
}

// Root returns the workspace root the scanner walks.
func (s *Scanner) Root() string {
	return s.root
}

// Eligible reports whether the slash-separated relative path passes the
// extension allowlist and exclude patterns.
func (s *Scanner) Eligible(relPath string) bool {
	if !s.extensions[strings.ToLower(filepath.Ext(relPath))] {
		return false
	}
	return !excluded(relPath, s.excludes)
}

// Files walks the tree and returns eligible file contents. Oversized
// and excluded files are skipped silently; unreadable files fail the
// scan.
func (s *Scanner) Files(ctx context.Context) (map[string][]byte, error) {
	files := make(map[string][]byte)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if !s.Eligible(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if info.Size() > s.maxFileSize {
			s.logger.Debug("skipping oversized file",
				zap.String("path", rel),
				zap.Int64("size", info.Size()),
			)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		files[rel] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}

	s.logger.Debug("scanned workspace",
		zap.String("root", s.root),
		zap.Int("files", len(files)),
	)
	return files, nil
}

// excluded reports whether relPath matches any of the glob patterns.
// Patterns match the basename, the full relative path, or — for
// "dir/**" patterns — any path under the named directory.
func excluded(relPath string, patterns []string) bool {
	basename := filepath.Base(relPath)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, basename); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if stripped := strings.TrimPrefix(pattern, "**/"); stripped != pattern && !strings.Contains(stripped, "/") {
			// "**/name" matches the basename at any depth
			if matched, _ := filepath.Match(stripped, basename); matched {
				return true
			}
		}
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
			if relPath == prefix || strings.HasPrefix(relPath, prefix+"/") ||
				strings.Contains(relPath, "/"+prefix+"/") {
				return true
			}
		}
	}
	return false
}
