package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestScanner_Files(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":              "package main",
		"README.md":            "# readme",
		"data.bin":             "binary",
		"sub/util.go":          "package sub",
		"node_modules/dep.go":  "package dep",
		".git/config":          "[core]",
		"vendor/v/vendored.go": "package v",
	})

	s, err := NewScanner(root, ScannerOptions{Extensions: []string{".go", "md"}}, nil)
	require.NoError(t, err)

	files, err := s.Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string][]byte{
		"main.go":     []byte("package main"),
		"README.md":   []byte("# readme"),
		"sub/util.go": []byte("package sub"),
	}, files)
}

func TestScanner_Validation(t *testing.T) {
	_, err := NewScanner("", ScannerOptions{Extensions: []string{".go"}}, nil)
	assert.Error(t, err)

	_, err = NewScanner(t.TempDir(), ScannerOptions{}, nil)
	assert.Error(t, err)
}

func TestScanner_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.go": "ok",
		"big.go":   "0123456789",
	})

	s, err := NewScanner(root, ScannerOptions{
		Extensions:  []string{".go"},
		MaxFileSize: 5,
	}, nil)
	require.NoError(t, err)

	files, err := s.Files(context.Background())
	require.NoError(t, err)
	assert.Contains(t, files, "small.go")
	assert.NotContains(t, files, "big.go")
}

func TestScanner_IgnoreFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":          "*.gen.go\ngenerated/\n",
		".rewindignore":       "scratch.go\n",
		"main.go":             "package main",
		"api.gen.go":          "package main",
		"scratch.go":          "package main",
		"generated/out.go":    "package generated",
		"sub/nested.gen.go":   "package sub",
		"sub/scratch.go":      "package sub",
		"keep/not_ignored.go": "package keep",
	})

	s, err := NewScanner(root, ScannerOptions{Extensions: []string{".go"}}, nil)
	require.NoError(t, err)

	files, err := s.Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string][]byte{
		"main.go":             []byte("package main"),
		"keep/not_ignored.go": []byte("package keep"),
	}, files)
}

func TestScanner_ExtraExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":      "package main",
		"main_test.go": "package main",
	})

	s, err := NewScanner(root, ScannerOptions{
		Extensions:      []string{".go"},
		ExcludePatterns: []string{"*_test.go"},
	}, nil)
	require.NoError(t, err)

	files, err := s.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"main.go": []byte("package main")}, files)
}

func TestScanner_Eligible(t *testing.T) {
	root := t.TempDir()
	s, err := NewScanner(root, ScannerOptions{
		Extensions:      []string{".go"},
		ExcludePatterns: []string{"**/testdata/**"},
	}, nil)
	require.NoError(t, err)

	assert.True(t, s.Eligible("main.go"))
	assert.True(t, s.Eligible("deep/nested/file.go"))
	assert.False(t, s.Eligible("main.py"))
	assert.False(t, s.Eligible("testdata/fixture.go"))
	assert.False(t, s.Eligible("pkg/testdata/fixture.go"))
}

func TestParseIgnoreLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"blank", "", ""},
		{"comment", "# a comment", ""},
		{"negation unsupported", "!keep.go", ""},
		{"bare extension glob", "*.log", "*.log"},
		{"bare name", "scratch.go", "**/scratch.go"},
		{"directory", "generated/", "generated/**"},
		{"bare directory name", "tmp", "**/tmp/**"},
		{"rooted path", "/build/out.txt", "build/out.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseIgnoreLine(tt.line))
		})
	}
}

func TestBranch_NotARepo(t *testing.T) {
	assert.Equal(t, "", Branch(t.TempDir()))
}
