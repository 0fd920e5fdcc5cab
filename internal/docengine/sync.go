package docengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

const defaultRemoteName = "origin"

// SyncStatus reports how the docs branch relates to its remote-tracking
// counterpart (spec §3, §4.5).
type SyncStatus struct {
	Branch      string `json:"branch"`
	Ahead       int    `json:"commits_ahead"`
	Behind      int    `json:"commits_behind"`
	HasRemote   bool   `json:"has_remote"`
	CanSync     bool   `json:"can_sync"`
	NeedsRebase bool   `json:"needs_rebase"`
	Error       string `json:"error,omitempty"`
}

// UpToDate reports whether a sync operation is currently a no-op.
func (s SyncStatus) UpToDate() bool {
	return s.Ahead == 0 && s.Behind == 0
}

// Status fetches the remote and reports the docs branch's position relative
// to its upstream, without mutating any local ref or the working tree. A
// failed fetch does not fail Status: the status is computed from the refs
// already present and, unless another cause is already reported, the fetch
// failure is reported in Error.
func (r *Repository) Status(ctx context.Context) (SyncStatus, error) {
	fetchErr := r.fetch(ctx)
	status, err := r.localStatus()
	if err != nil {
		return SyncStatus{}, err
	}
	if fetchErr != nil && status.Error == "" {
		status.Error = fetchErr.Error()
	}
	return status, nil
}

// localStatus computes the sync status without fetching. can_sync requires
// a configured upstream, a clean worktree and index, and HEAD on the docs
// branch (spec §4.5); any failing condition is reported in error instead of
// surfacing as a Go error, since sync_status itself never fails.
func (r *Repository) localStatus() (SyncStatus, error) {
	localHash, err := r.resolveBranchRef(r.DocsBranch)
	if err != nil {
		return SyncStatus{}, err
	}

	onDocsBranch, err := r.IsDocsBranch()
	if err != nil {
		onDocsBranch = false
	}

	clean, err := r.isClean()
	if err != nil {
		return SyncStatus{}, newError(KindIoFailure, "failed to inspect worktree status").withCause(err)
	}

	remoteRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.RemoteName, r.DocsBranch), true)
	if err != nil {
		status := SyncStatus{Branch: r.DocsBranch, HasRemote: false}
		status.Error = "docs branch has no remote-tracking counterpart"
		return status, nil
	}
	remoteHash := remoteRef.Hash()

	status := SyncStatus{Branch: r.DocsBranch, HasRemote: true}
	status.CanSync = clean && onDocsBranch
	if !clean {
		status.Error = "working tree or index is dirty"
	} else if !onDocsBranch {
		status.Error = "current branch is not the docs branch"
	}

	if localHash == remoteHash {
		return status, nil
	}

	base, err := r.mergeBase(localHash, remoteHash)
	if err != nil {
		return SyncStatus{}, err
	}

	ahead, err := r.countCommits(localHash, base)
	if err != nil {
		return SyncStatus{}, err
	}
	behind, err := r.countCommits(remoteHash, base)
	if err != nil {
		return SyncStatus{}, err
	}

	status.Ahead = ahead
	status.Behind = behind
	status.NeedsRebase = behind > 0
	return status, nil
}

// Sync reconciles the docs branch with its remote (spec §4.5). If the
// branch is behind and allowRebase is false it fails with
// KindRebaseRequired. If allowRebase is true it replays local-only commits
// onto the remote tip before pushing; a path touched both locally and
// upstream aborts the whole operation with KindRebaseConflict and restores
// the pre-sync state.
func (r *Repository) Sync(ctx context.Context, allowRebase bool, token *LockToken) (SyncStatus, error) {
	if token == nil || token.projectID != r.ProjectID {
		return SyncStatus{}, newError(KindLockNotHeld, "sync requires the repository lock")
	}

	clean, err := r.isClean()
	if err != nil {
		return SyncStatus{}, newError(KindIoFailure, "failed to inspect worktree status").withCause(err)
	}
	if !clean {
		return SyncStatus{}, newError(KindUncommittedChanges, "working tree or index is dirty")
	}
	if onDocsBranch, err := r.IsDocsBranch(); err != nil || !onDocsBranch {
		return SyncStatus{}, newError(KindWrongBranch, "sync requires HEAD on the docs branch")
	}

	if err := r.fetch(ctx); err != nil {
		return SyncStatus{}, err
	}

	status, err := r.localStatus()
	if err != nil {
		return SyncStatus{}, err
	}
	if !status.CanSync {
		return status, newError(KindSyncPreconditionFailed, "docs branch cannot be synced").withHint(status.Error)
	}
	if status.UpToDate() {
		return status, nil
	}

	if status.Behind > 0 {
		if !allowRebase {
			return status, newError(KindRebaseRequired, "docs branch is behind its remote").withHint("retry with allowRebase")
		}
		if err := r.rebaseOntoRemote(); err != nil {
			return SyncStatus{}, err
		}
		status, err = r.localStatus()
		if err != nil {
			return SyncStatus{}, err
		}
	}

	if status.Ahead > 0 {
		if err := r.push(ctx); err != nil {
			return SyncStatus{}, err
		}
	}

	final, err := r.localStatus()
	if err != nil {
		return SyncStatus{}, err
	}
	log.Info().
		Str("project_id", r.ProjectID).
		Str("branch", r.DocsBranch).
		Int("ahead", final.Ahead).
		Int("behind", final.Behind).
		Msg("sync completed")
	return final, nil
}

func (r *Repository) fetch(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: r.RemoteName})
	if err == nil || err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return newError(KindRemoteUnreachable, "failed to fetch remote").withCause(err)
}

func (r *Repository) push(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &git.PushOptions{RemoteName: r.RemoteName})
	if err == nil || err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return newError(KindRemoteUnreachable, "failed to push to remote").withCause(err)
}

func (r *Repository) mergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	commitA, err := r.repo.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, newError(KindGitObjectCorrupt, "failed to load commit").withCause(err)
	}
	commitB, err := r.repo.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, newError(KindGitObjectCorrupt, "failed to load commit").withCause(err)
	}
	bases, err := commitA.MergeBase(commitB)
	if err != nil || len(bases) == 0 {
		return plumbing.ZeroHash, newError(KindSyncPreconditionFailed, "local and remote histories share no common ancestor")
	}
	return bases[0].Hash, nil
}

// countCommits counts commits reachable from tip, excluding base and
// everything base can reach.
func (r *Repository) countCommits(tip, base plumbing.Hash) (int, error) {
	if tip == base {
		return 0, nil
	}
	iter, err := r.repo.Log(&git.LogOptions{From: tip})
	if err != nil {
		return 0, newError(KindIoFailure, "failed to read commit log").withCause(err)
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == base {
			return storerStop
		}
		count++
		return nil
	})
	if err != nil && err != storerStop {
		return 0, newError(KindIoFailure, "failed to walk commit log").withCause(err)
	}
	return count, nil
}

// commitsBetween returns the commits strictly after base up to and
// including tip, oldest first.
func (r *Repository) commitsBetween(tip, base plumbing.Hash) ([]*object.Commit, error) {
	iter, err := r.repo.Log(&git.LogOptions{From: tip})
	if err != nil {
		return nil, newError(KindIoFailure, "failed to read commit log").withCause(err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == base {
			return storerStop
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil && err != storerStop {
		return nil, newError(KindIoFailure, "failed to walk commit log").withCause(err)
	}
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// changedPaths returns the set of file paths a commit's patch against its
// first parent touches. Merge commits and root commits are not expected in
// the docs branch's history; callers treat an empty parent list as
// touching nothing.
func (r *Repository) changedPaths(c *object.Commit) (map[string]struct{}, error) {
	paths := make(map[string]struct{})
	if c.NumParents() == 0 {
		return paths, nil
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, newError(KindGitObjectCorrupt, "failed to load parent commit").withCause(err)
	}
	patch, err := parent.Patch(c)
	if err != nil {
		return nil, newError(KindGitObjectCorrupt, "failed to diff commit").withCause(err)
	}
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		if from != nil {
			paths[from.Path()] = struct{}{}
		}
		if to != nil {
			paths[to.Path()] = struct{}{}
		}
	}
	return paths, nil
}

// rebaseOntoRemote replays the docs branch's local-only commits on top of
// its remote tip (spec §4.5 rebase). go-git has no native rebase, so this
// walks each local commit's changed-file set and replays it as a fresh tree
// write plus commit, preserving the original author and message. Any path
// overlap between local-only commits and upstream-only commits aborts with
// KindRebaseConflict and restores the branch to its pre-rebase tip.
func (r *Repository) rebaseOntoRemote() error {
	localHash, err := r.resolveBranchRef(r.DocsBranch)
	if err != nil {
		return err
	}
	remoteRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.RemoteName, r.DocsBranch), true)
	if err != nil {
		return newError(KindSyncPreconditionFailed, "no remote-tracking ref for docs branch").withCause(err)
	}
	remoteHash := remoteRef.Hash()

	base, err := r.mergeBase(localHash, remoteHash)
	if err != nil {
		return err
	}

	localCommits, err := r.commitsBetween(localHash, base)
	if err != nil {
		return err
	}
	upstreamCommits, err := r.commitsBetween(remoteHash, base)
	if err != nil {
		return err
	}

	upstreamPaths := make(map[string]struct{})
	for _, c := range upstreamCommits {
		touched, err := r.changedPaths(c)
		if err != nil {
			return err
		}
		for p := range touched {
			upstreamPaths[p] = struct{}{}
		}
	}
	for _, c := range localCommits {
		touched, err := r.changedPaths(c)
		if err != nil {
			return err
		}
		for p := range touched {
			if _, overlap := upstreamPaths[p]; overlap {
				return newError(KindRebaseConflict, "local and remote changes touch the same document").withPath(p).withHint("resolve manually and retry")
			}
		}
	}

	branchRef := plumbing.NewBranchReferenceName(r.DocsBranch)

	newTip, err := r.replayCommits(remoteHash, localCommits)
	if err != nil {
		return err
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, newTip)); err != nil {
		// restore original tip before surfacing the failure.
		_ = r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, localHash))
		return newError(KindIoFailure, "failed to update branch ref after rebase").withCause(err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return newError(KindIoFailure, "failed to open worktree").withCause(err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		_ = r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, localHash))
		return newError(KindIoFailure, "failed to check out rebased branch").withCause(err)
	}
	return nil
}

// replayCommits checks out onto, then for each commit (oldest first)
// applies its changed-file set to the working tree and commits it with the
// original author identity, timestamp, and message. It returns the final
// replayed commit hash.
func (r *Repository) replayCommits(onto plumbing.Hash, commits []*object.Commit) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, newError(KindIoFailure, "failed to open worktree").withCause(err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: onto, Force: true}); err != nil {
		return plumbing.ZeroHash, newError(KindIoFailure, "failed to check out rebase base").withCause(err)
	}

	tip := onto
	for _, c := range commits {
		changes, deletions, err := r.commitFileDelta(c)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		for _, del := range deletions {
			full := filepath.Join(r.Path, filepath.FromSlash(del))
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return plumbing.ZeroHash, newError(KindIoFailure, "failed to remove file during rebase").withPath(del).withCause(err)
			}
			if _, err := wt.Remove(del); err != nil {
				return plumbing.ZeroHash, newError(KindIoFailure, "failed to unstage removed file during rebase").withPath(del).withCause(err)
			}
		}
		for _, ch := range changes {
			full := filepath.Join(r.Path, filepath.FromSlash(ch.path))
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return plumbing.ZeroHash, newError(KindIoFailure, "failed to create directory during rebase").withPath(ch.path).withCause(err)
			}
			if err := atomicWrite(full, ch.content); err != nil {
				return plumbing.ZeroHash, newError(KindIoFailure, "failed to write file during rebase").withPath(ch.path).withCause(err)
			}
			if _, err := wt.Add(ch.path); err != nil {
				return plumbing.ZeroHash, newError(KindIoFailure, "failed to stage file during rebase").withPath(ch.path).withCause(err)
			}
		}

		newHash, err := wt.Commit(c.Message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  c.Author.Name,
				Email: c.Author.Email,
				When:  c.Author.When,
			},
			Parents: []plumbing.Hash{tip},
		})
		if err != nil {
			return plumbing.ZeroHash, newError(KindIoFailure, "failed to commit replayed change").withCause(err)
		}
		tip = newHash
	}
	return tip, nil
}

type fileContent struct {
	path    string
	content []byte
}

// commitFileDelta reads the blob contents for every file a commit's patch
// against its parent added or modified, plus the set of deleted paths.
func (r *Repository) commitFileDelta(c *object.Commit) ([]fileContent, []string, error) {
	if c.NumParents() == 0 {
		return nil, nil, newError(KindGitObjectCorrupt, "root commits are not supported during rebase")
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, nil, newError(KindGitObjectCorrupt, "failed to load parent commit").withCause(err)
	}
	patch, err := parent.Patch(c)
	if err != nil {
		return nil, nil, newError(KindGitObjectCorrupt, "failed to diff commit").withCause(err)
	}

	var changes []fileContent
	var deletions []string
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		if to == nil {
			deletions = append(deletions, from.Path())
			continue
		}
		blob, err := r.repo.BlobObject(to.Hash())
		if err != nil {
			return nil, nil, newError(KindGitObjectCorrupt, "failed to load blob").withPath(to.Path()).withCause(err)
		}
		reader, err := blob.Reader()
		if err != nil {
			return nil, nil, newError(KindGitObjectCorrupt, "failed to open blob").withPath(to.Path()).withCause(err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, nil, newError(KindIoFailure, "failed to read blob").withPath(to.Path()).withCause(err)
		}
		changes = append(changes, fileContent{path: to.Path(), content: data})
	}
	return changes, deletions, nil
}

var storerStop = fmt.Errorf("stop commit walk")
