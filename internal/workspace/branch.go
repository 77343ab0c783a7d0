package workspace

import (
	"github.com/go-git/go-git/v5"
)

// Branch returns the current git branch of the workspace, "detached"
// for a detached HEAD, or "" when the workspace is not a git
// repository. Detection failures are not errors; checkpoint metadata
// simply goes without a branch.
func Branch(root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return "detached"
}
