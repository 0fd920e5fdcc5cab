package docengine

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// Identity is the (name, email) pair attributed to commits the engine
// produces on a caller's behalf.
type Identity struct {
	Name  string
	Email string
}

// botIdentity is used whenever a repository has no configured identity,
// per spec §4.4 step 7 ("a deterministic default identifier distinguishable
// from human commits").
var botIdentity = Identity{Name: "docs-bot", Email: "docs-bot@local.docrepo.dev"}

// Repository is a handle to one Git working tree the engine manages. It
// carries no long-lived content cache (spec §9): every read opens the
// worktree fresh.
type Repository struct {
	ProjectID  string
	Path       string
	DocsBranch string
	Identity   Identity
	RemoteName string

	repo *git.Repository
}

// OpenRepository opens an existing Git working tree at path. It never
// creates or initializes a repository — that lifecycle is external to the
// engine (spec §3). remoteName defaults to "origin" when empty.
func OpenRepository(projectID, path, docsBranch string, identity *Identity, remoteName string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, newError(KindRepositoryMissing, "failed to open repository").withPath(path).withCause(err)
	}
	id := botIdentity
	if identity != nil && identity.Name != "" && identity.Email != "" {
		id = *identity
	}
	if remoteName == "" {
		remoteName = defaultRemoteName
	}
	return &Repository{
		ProjectID:  projectID,
		Path:       path,
		DocsBranch: docsBranch,
		Identity:   id,
		RemoteName: remoteName,
		repo:       repo,
	}, nil
}

func (r *Repository) isClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	return status.IsClean(), nil
}
