package docengine

import (
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog/log"
)

// BranchDescriptor describes one branch ref (spec §3).
type BranchDescriptor struct {
	Name      string
	IsCurrent bool
	IsRemote  bool
}

// ListBranches returns local branches alphabetically, then remote-tracking
// branches alphabetically (spec §4.3).
func (r *Repository) ListBranches() ([]BranchDescriptor, error) {
	current, currentErr := r.CurrentBranch()

	var local, remote []string
	refs, err := r.repo.References()
	if err != nil {
		return nil, newError(KindIoFailure, "failed to read references").withCause(err)
	}
	defer refs.Close()

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			local = append(local, name.Short())
		case name.IsRemote():
			remote = append(remote, name.Short())
		}
		return nil
	})
	if err != nil {
		return nil, newError(KindIoFailure, "failed to enumerate references").withCause(err)
	}

	sort.Strings(local)
	sort.Strings(remote)

	descriptors := make([]BranchDescriptor, 0, len(local)+len(remote))
	for _, name := range local {
		descriptors = append(descriptors, BranchDescriptor{
			Name:      name,
			IsCurrent: currentErr == nil && name == current,
			IsRemote:  false,
		})
	}
	for _, name := range remote {
		descriptors = append(descriptors, BranchDescriptor{
			Name:      name,
			IsCurrent: false,
			IsRemote:  true,
		})
	}
	return descriptors, nil
}

// CurrentBranch returns HEAD's branch name, or fails with KindDetachedHead
// if HEAD does not point at a branch ref.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", newError(KindDetachedHead, "failed to resolve HEAD").withCause(err)
	}
	if !head.Name().IsBranch() {
		return "", newError(KindDetachedHead, "HEAD is not a branch ref")
	}
	return head.Name().Short(), nil
}

// IsDocsBranch reports whether the current branch is the designated docs
// branch. A DetachedHead error from CurrentBranch propagates.
func (r *Repository) IsDocsBranch() (bool, error) {
	current, err := r.CurrentBranch()
	if err != nil {
		return false, err
	}
	return current == r.DocsBranch, nil
}

// SwitchBranch transitions HEAD to name. Switching to the already-current
// branch is a no-op success (spec §9 Open Questions). Fails with
// KindUncommittedChanges if the worktree or index is dirty, or
// KindUnknownBranch if name does not exist.
func (r *Repository) SwitchBranch(name string, token *LockToken) error {
	if token == nil || token.projectID != r.ProjectID {
		return newError(KindLockNotHeld, "switch_branch requires the repository lock")
	}

	current, err := r.CurrentBranch()
	if err == nil && current == name {
		return nil
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, true); err != nil {
		return newError(KindUnknownBranch, "branch does not exist").withPath(name).withCause(err)
	}

	clean, err := r.isClean()
	if err != nil {
		return newError(KindIoFailure, "failed to inspect worktree status").withCause(err)
	}
	if !clean {
		return newError(KindUncommittedChanges, "working tree or index is dirty")
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return newError(KindIoFailure, "failed to open worktree").withCause(err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef}); err != nil {
		return newError(KindIoFailure, "checkout failed").withPath(name).withCause(err)
	}

	log.Info().Str("project_id", r.ProjectID).Str("branch", name).Msg("switched branch")
	return nil
}

// resolveBranchRef resolves a short branch name to its tip commit hash.
func (r *Repository) resolveBranchRef(name string) (plumbing.Hash, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, newError(KindUnknownBranch, "branch does not exist").withPath(name).withCause(err)
	}
	return ref.Hash(), nil
}
