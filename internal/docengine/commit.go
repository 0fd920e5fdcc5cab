package docengine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// WriteResult describes the outcome of a write primitive.
type WriteResult struct {
	Document  Document
	CommitSHA string
	NoChange  bool
}

// WriteDocument writes a document's content and commits the change (spec
// §4.4). It is an upsert: a path that doesn't yet exist is created, exactly
// as CreateFile would, since write_document constrained to the creation
// case is what create_file is. The write must happen on the configured docs
// branch; writing identical bytes is a no-op success (KindNoChange is never
// returned as an error — it is reported via WriteResult.NoChange).
func (r *Repository) WriteDocument(relativePath, content string, token *LockToken, identity *Identity) (WriteResult, error) {
	return r.writeDocument(relativePath, content, token, false, identity)
}

// CreateFile writes a new document and commits it. It fails with
// KindAlreadyExists if the path already names a document.
func (r *Repository) CreateFile(relativePath, content string, token *LockToken, identity *Identity) (WriteResult, error) {
	return r.writeDocument(relativePath, content, token, true, identity)
}

func (r *Repository) writeDocument(relativePath, content string, token *LockToken, create bool, identity *Identity) (WriteResult, error) {
	if token == nil || token.projectID != r.ProjectID {
		return WriteResult{}, newError(KindLockNotHeld, "write requires the repository lock")
	}

	onDocsBranch, err := r.IsDocsBranch()
	if err != nil {
		return WriteResult{}, err
	}
	if !onDocsBranch {
		return WriteResult{}, newError(KindWrongBranch, "writes are only permitted on the docs branch").withHint("switch to " + r.DocsBranch)
	}

	normalized, fileType, err := NormalizePath(relativePath)
	if err != nil {
		return WriteResult{}, err
	}

	full := filepath.Join(r.Path, filepath.FromSlash(normalized))
	info, statErr := os.Lstat(full)
	exists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return WriteResult{}, newError(KindIoFailure, "failed to stat document").withPath(normalized).withCause(statErr)
	}

	if create && exists {
		return WriteResult{}, newError(KindAlreadyExists, "document already exists").withPath(normalized)
	}
	if exists && info.Mode()&os.ModeSymlink != 0 {
		return WriteResult{}, newError(KindNotFound, "document not found").withPath(normalized)
	}

	if exists {
		existing, err := os.ReadFile(full)
		if err == nil && string(existing) == content {
			return WriteResult{
				Document: Document{
					RelativePath: normalized,
					Name:         filepath.Base(normalized),
					FileType:     fileType,
					SizeBytes:    info.Size(),
					ModTime:      info.ModTime(),
				},
				NoChange: true,
			}, nil
		}
	}

	if err := atomicWrite(full, []byte(content)); err != nil {
		return WriteResult{}, newError(KindIoFailure, "failed to write document").withPath(normalized).withCause(err)
	}

	verb := "update"
	if !exists {
		verb = "add"
	}
	message := fmt.Sprintf("docs: %s %s", verb, normalized)

	hash, err := r.commitAll(message, identity)
	if err != nil {
		return WriteResult{}, err
	}

	refreshed, statErr := os.Stat(full)
	if statErr != nil {
		return WriteResult{}, newError(KindIoFailure, "failed to stat written document").withPath(normalized).withCause(statErr)
	}

	log.Info().
		Str("project_id", r.ProjectID).
		Str("path", normalized).
		Str("commit", hash.String()).
		Bool("created", !exists).
		Msg("document committed")

	return WriteResult{
		Document: Document{
			RelativePath: normalized,
			Name:         filepath.Base(normalized),
			FileType:     fileType,
			SizeBytes:    refreshed.Size(),
			ModTime:      refreshed.ModTime(),
		},
		CommitSHA: hash.String(),
	}, nil
}

// atomicWrite writes data to path via a temp file in the same directory,
// fsyncs it, and renames it into place, so a crash mid-write can never leave
// a partially written document behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".docrepo-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// commitAll stages every pending change in the worktree and commits it under
// the repository's identity, or the supplied override when the caller's
// identity was resolved from an HTTP bearer token (see ContextWithIdentity).
func (r *Repository) commitAll(message string, identity *Identity) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, newError(KindIoFailure, "failed to open worktree").withCause(err)
	}
	if _, err := wt.Add("."); err != nil {
		return plumbing.ZeroHash, newError(KindIoFailure, "failed to stage changes").withCause(err)
	}

	id := r.Identity
	if identity != nil && identity.Name != "" && identity.Email != "" {
		id = *identity
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  id.Name,
			Email: id.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, newError(KindIoFailure, "failed to commit changes").withCause(err)
	}
	return hash, nil
}
