package docengine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// PropagationResult describes the outcome of propagating documents into a
// task worktree.
type PropagationResult struct {
	FilesWritten int
	CommitSHA    string
	NoChange     bool
}

// PropagateToWorktree copies every document currently on the docs branch
// into a separate task worktree and commits the result there (spec §4.6).
// It never pushes, merges, or touches the docs branch, and it never deletes
// files the task worktree already has outside the documents it copies. A
// worktree with nothing to update is a no-op success.
func (r *Repository) PropagateToWorktree(worktreePath string, token *LockToken) (PropagationResult, error) {
	if token == nil || token.projectID != r.ProjectID {
		return PropagationResult{}, newError(KindLockNotHeld, "propagation requires the repository lock")
	}

	onDocsBranch, err := r.IsDocsBranch()
	if err != nil {
		return PropagationResult{}, err
	}
	if !onDocsBranch {
		return PropagationResult{}, newError(KindWrongBranch, "propagation must be run from the docs branch").withHint("switch to " + r.DocsBranch)
	}

	targetRepo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return PropagationResult{}, newError(KindRepositoryMissing, "failed to open task worktree").withPath(worktreePath).withCause(err)
	}

	documents, err := ListDocuments(r.Path, nil)
	if err != nil {
		return PropagationResult{}, err
	}

	written := 0
	for _, doc := range documents {
		content, err := ReadDocument(r.Path, doc.RelativePath)
		if err != nil {
			return PropagationResult{}, err
		}

		dest := filepath.Join(worktreePath, filepath.FromSlash(doc.RelativePath))
		existing, readErr := os.ReadFile(dest)
		if readErr == nil && string(existing) == content.Content {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return PropagationResult{}, newError(KindIoFailure, "failed to create directory in task worktree").withPath(doc.RelativePath).withCause(err)
		}
		if err := atomicWrite(dest, []byte(content.Content)); err != nil {
			return PropagationResult{}, newError(KindIoFailure, "failed to write document into task worktree").withPath(doc.RelativePath).withCause(err)
		}
		written++
	}

	if written == 0 {
		return PropagationResult{NoChange: true}, nil
	}

	targetWt, err := targetRepo.Worktree()
	if err != nil {
		return PropagationResult{}, newError(KindIoFailure, "failed to open task worktree").withCause(err)
	}
	if _, err := targetWt.Add("."); err != nil {
		return PropagationResult{}, newError(KindIoFailure, "failed to stage propagated documents").withCause(err)
	}

	status, err := targetWt.Status()
	if err != nil {
		return PropagationResult{}, newError(KindIoFailure, "failed to read task worktree status").withCause(err)
	}
	if status.IsClean() {
		return PropagationResult{NoChange: true}, nil
	}

	message := fmt.Sprintf("docs: sync from %s", r.DocsBranch)
	hash, err := targetWt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.Identity.Name,
			Email: r.Identity.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return PropagationResult{}, newError(KindIoFailure, "failed to commit propagated documents").withCause(err)
	}

	log.Info().
		Str("project_id", r.ProjectID).
		Str("worktree", worktreePath).
		Int("files", written).
		Str("commit", hash.String()).
		Msg("propagated documents to task worktree")

	return PropagationResult{FilesWritten: written, CommitSHA: hash.String()}, nil
}
