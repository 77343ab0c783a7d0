// Package remote adapts a GitHub repository to the same file-map shape
// the local workspace scanner produces, so sessions can checkpoint a
// remote tree without a clone, and push restored content back as a
// commit through the Git data API.
package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/rewind/internal/cache"
	"github.com/fyrsmithlabs/rewind/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/rewind/internal/remote"

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheEntries = 500
	defaultRateLimit    = 5.0 // requests per second
	defaultBurst        = 10
	blobEncoding        = "base64"
	fileMode            = "100644"
)

// Options configures a remote Tree.
type Options struct {
	// Token authenticates against the GitHub API. Required.
	Token config.Secret

	// Ref is the branch to read from. Empty means the repository's
	// default branch, discovered on first use.
	Ref string

	// Filter restricts which paths Files returns. Nil includes
	// everything.
	Filter func(path string) bool

	// CacheTTL and CacheEntries size the read-through blob cache.
	// Zero values take defaults.
	CacheTTL     time.Duration
	CacheEntries int

	// RequestsPerSecond and Burst bound API call rate. Zero values
	// take defaults.
	RequestsPerSecond float64
	Burst             int
}

// Tree is a read/write view of one GitHub repository at one ref.
// Reads go through a TTL cache; writes are staged locally and become a
// single commit on Commit.
type Tree struct {
	client  *github.Client
	owner   string
	repo    string
	filter  func(string) bool
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  *zap.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	ref    string
	staged map[string][]byte
}

// NewTree creates a tree over owner/repo. The token must be set; ref
// resolution is deferred until the first API call that needs it.
func NewTree(owner, repo string, opts Options, logger *zap.Logger) (*Tree, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if !opts.Token.IsSet() {
		return nil, fmt.Errorf("github token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	entries := opts.CacheEntries
	if entries == 0 {
		entries = defaultCacheEntries
	}
	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = defaultRateLimit
	}
	burst := opts.Burst
	if burst == 0 {
		burst = defaultBurst
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token.Value()})
	tc := oauth2.NewClient(context.Background(), ts)

	return &Tree{
		client:  github.NewClient(tc),
		owner:   owner,
		repo:    repo,
		filter:  opts.Filter,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cache:   cache.New(ttl, entries),
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		ref:     opts.Ref,
		staged:  make(map[string][]byte),
	}, nil
}

// Ref returns the branch the tree currently reads from. Empty until
// the default branch has been discovered.
func (t *Tree) Ref() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref
}

// Checkout switches the tree to another branch and drops all cached
// reads and staged writes for the old one.
func (t *Tree) Checkout(ref string) {
	t.mu.Lock()
	t.ref = ref
	t.staged = make(map[string][]byte)
	t.mu.Unlock()

	t.cache.InvalidatePrefix(t.cachePrefix())
	t.logger.Info("checked out remote ref",
		zap.String("repo", t.owner+"/"+t.repo),
		zap.String("ref", ref),
	)
}

// CacheStats exposes the read cache's hit/miss counters.
func (t *Tree) CacheStats() cache.Stats {
	return t.cache.Stats()
}

// resolveRef returns the active branch, discovering the repository's
// default branch on first use.
func (t *Tree) resolveRef(ctx context.Context) (string, error) {
	t.mu.Lock()
	ref := t.ref
	t.mu.Unlock()
	if ref != "" {
		return ref, nil
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	repo, _, err := t.client.Repositories.Get(ctx, t.owner, t.repo)
	if err != nil {
		return "", fmt.Errorf("discovering default branch: %w", err)
	}
	ref = repo.GetDefaultBranch()

	t.mu.Lock()
	if t.ref == "" {
		t.ref = ref
	}
	ref = t.ref
	t.mu.Unlock()
	return ref, nil
}

// List returns every file path in the tree at the active ref, sorted.
func (t *Tree) List(ctx context.Context) ([]string, error) {
	ctx, span := t.tracer.Start(ctx, "remote.list")
	defer span.End()

	ref, err := t.resolveRef(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	tree, _, err := t.client.Git.GetTree(ctx, t.owner, t.repo, ref, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing tree at %s: %w", ref, err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			paths = append(paths, entry.GetPath())
		}
	}
	sort.Strings(paths)

	span.SetAttributes(attribute.Int("paths", len(paths)))
	return paths, nil
}

// Read returns the content of one file at the active ref, through the
// cache.
func (t *Tree) Read(ctx context.Context, path string) ([]byte, error) {
	key := t.cacheKey(path)
	if cached, ok := t.cache.Get(key); ok {
		return cached.([]byte), nil
	}

	ref, err := t.resolveRef(ctx)
	if err != nil {
		return nil, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	fileContent, _, _, err := t.client.Repositories.GetContents(ctx, t.owner, t.repo, path, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, ref, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	data := []byte(content)
	t.cache.Set(key, data)
	return data, nil
}

// Files reads the whole tree, filtered, keyed by repository-relative
// path. It satisfies the session file source contract.
func (t *Tree) Files(ctx context.Context) (map[string][]byte, error) {
	ctx, span := t.tracer.Start(ctx, "remote.files")
	defer span.End()

	paths, err := t.List(ctx)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	for _, path := range paths {
		if t.filter != nil && !t.filter(path) {
			continue
		}
		content, err := t.Read(ctx, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		files[path] = content
	}

	span.SetAttributes(attribute.Int("files", len(files)))
	return files, nil
}

// Stage records content to be written by the next Commit. Staging is
// local; nothing reaches GitHub until Commit.
func (t *Tree) Stage(path string, content []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged[path] = append([]byte(nil), content...)
}

// StagedCount returns the number of files awaiting Commit.
func (t *Tree) StagedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.staged)
}

// Commit turns all staged files into blobs, builds a tree on top of
// the branch head, commits it, and advances the branch ref. Returns
// the new commit SHA. Fails when nothing is staged.
func (t *Tree) Commit(ctx context.Context, message string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "remote.commit")
	defer span.End()

	t.mu.Lock()
	staged := t.staged
	t.staged = make(map[string][]byte)
	t.mu.Unlock()

	if len(staged) == 0 {
		return "", fmt.Errorf("nothing staged to commit")
	}
	if message == "" {
		message = fmt.Sprintf("rewind: restore %d files", len(staged))
	}

	ref, err := t.resolveRef(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	branchRef, _, err := t.client.Git.GetRef(ctx, t.owner, t.repo, "heads/"+ref)
	if err != nil {
		return "", fmt.Errorf("resolving head of %s: %w", ref, err)
	}
	parentSHA := branchRef.GetObject().GetSHA()

	// Stable path order keeps the API call sequence deterministic.
	paths := make([]string, 0, len(staged))
	for path := range staged {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]*github.TreeEntry, 0, len(paths))
	for _, path := range paths {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
		blob, _, err := t.client.Git.CreateBlob(ctx, t.owner, t.repo, &github.Blob{
			Content:  github.String(encodeBlob(staged[path])),
			Encoding: github.String(blobEncoding),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("creating blob for %s: %w", path, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(path),
			Mode: github.String(fileMode),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	newTree, _, err := t.client.Git.CreateTree(ctx, t.owner, t.repo, parentSHA, entries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("creating tree: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	commit, _, err := t.client.Git.CreateCommit(ctx, t.owner, t.repo, &github.Commit{
		Message: github.String(message),
		Tree:    newTree,
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("creating commit: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	_, _, err = t.client.Git.UpdateRef(ctx, t.owner, t.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + ref),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("advancing %s: %w", ref, err)
	}

	// The committed paths are stale in the read cache.
	for _, path := range paths {
		t.cache.Delete(t.cacheKey(path))
	}

	t.logger.Info("committed staged files",
		zap.String("repo", t.owner+"/"+t.repo),
		zap.String("ref", ref),
		zap.String("sha", commit.GetSHA()),
		zap.Int("files", len(paths)),
	)
	span.SetAttributes(
		attribute.String("sha", commit.GetSHA()),
		attribute.Int("files", len(paths)),
	)
	return commit.GetSHA(), nil
}

// encodeBlob base64-encodes blob content so binary files survive the
// JSON transport.
func encodeBlob(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

func (t *Tree) cachePrefix() string {
	return fmt.Sprintf("%s/%s@", t.owner, t.repo)
}

func (t *Tree) cacheKey(path string) string {
	t.mu.Lock()
	ref := t.ref
	t.mu.Unlock()
	return fmt.Sprintf("%s/%s@%s:%s", t.owner, t.repo, ref, path)
}
