package docengine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

func TestCreateFile_AddsAndCommits(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	result, err := repo.CreateFile("guide.md", "# Guide\n", token, nil)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected a creation, not NoChange")
	}
	if result.CommitSHA == "" {
		t.Fatal("expected a commit sha")
	}

	head, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	commit, err := repo.repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.Message != "docs: add guide.md" {
		t.Fatalf("commit message = %q, want %q", commit.Message, "docs: add guide.md")
	}
}

func TestCreateFile_AlreadyExists(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	if _, err := repo.CreateFile("README.md", "anything", token, nil); KindOf(err) != KindAlreadyExists {
		t.Fatalf("kind = %v, want AlreadyExists", KindOf(err))
	}
}

func TestWriteDocument_UpdateCommits(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	result, err := repo.WriteDocument("README.md", "# changed\n", token, nil)
	if err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected an update, not NoChange")
	}

	got, err := ReadDocument(repo.Path, "README.md")
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.Content != "# changed\n" {
		t.Fatalf("content = %q, want %q", got.Content, "# changed\n")
	}
}

// TestWriteDocument_CreatesWhenAbsent verifies write_document is an upsert
// (spec §4.4 step 3): a path that doesn't yet exist is created rather than
// rejected.
func TestWriteDocument_CreatesWhenAbsent(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	result, err := repo.WriteDocument("missing.md", "x", token, nil)
	if err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected a creation, not NoChange")
	}

	got, err := ReadDocument(repo.Path, "missing.md")
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.Content != "x" {
		t.Fatalf("content = %q, want %q", got.Content, "x")
	}

	head, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	commit, err := repo.repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.Message != "docs: add missing.md" {
		t.Fatalf("commit message = %q, want %q", commit.Message, "docs: add missing.md")
	}
}

// TestWriteDocument_Idempotence verifies the at-most-once property of
// spec §4.4: writing the same content twice produces NoChange on the
// second call and no additional commit.
func TestWriteDocument_Idempotence(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()

	token := acquireToken(t, arbiter, repo.ProjectID)
	first, err := repo.WriteDocument("README.md", "# Hi\n", token, nil)
	token.Release()
	if err != nil {
		t.Fatalf("first WriteDocument: %v", err)
	}
	if !first.NoChange {
		t.Fatal("expected first write of identical content to be NoChange")
	}

	before, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}

	token = acquireToken(t, arbiter, repo.ProjectID)
	second, err := repo.WriteDocument("README.md", "# Hi\n", token, nil)
	token.Release()
	if err != nil {
		t.Fatalf("second WriteDocument: %v", err)
	}
	if !second.NoChange {
		t.Fatal("expected second write of identical content to be NoChange")
	}

	after, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if before.Hash() != after.Hash() {
		t.Fatalf("expected no new commit, tip moved from %s to %s", before.Hash(), after.Hash())
	}
}

func TestWriteDocument_WrongBranch(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()

	token := acquireToken(t, arbiter, repo.ProjectID)
	branchRef := plumbing.NewBranchReferenceName("feature")
	headRef, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if err := repo.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, headRef.Hash())); err != nil {
		t.Fatalf("create branch ref: %v", err)
	}
	if err := repo.SwitchBranch("feature", token); err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	token.Release()

	existingBefore, err := os.ReadFile(filepath.Join(repo.Path, "README.md"))
	if err != nil {
		t.Fatalf("read before: %v", err)
	}

	token = acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()
	if _, err := repo.WriteDocument("README.md", "# changed\n", token, nil); KindOf(err) != KindWrongBranch {
		t.Fatalf("kind = %v, want WrongBranch", KindOf(err))
	}

	existingAfter, err := os.ReadFile(filepath.Join(repo.Path, "README.md"))
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if string(existingBefore) != string(existingAfter) {
		t.Fatal("file content changed despite WrongBranch failure")
	}
}

func TestWriteDocument_RequiresLockToken(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.WriteDocument("README.md", "x", nil, nil); KindOf(err) != KindLockNotHeld {
		t.Fatalf("kind = %v, want LockNotHeld", KindOf(err))
	}
}

func TestWriteDocument_EmptyContentIsValid(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	result, err := repo.CreateFile("empty.md", "", token, nil)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected creation of empty document to commit")
	}

	got, err := ReadDocument(repo.Path, "empty.md")
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.Content != "" {
		t.Fatalf("content = %q, want empty", got.Content)
	}
}

func TestWriteDocument_IdentityOverride(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	defer token.Release()

	caller := Identity{Name: "Jamie", Email: "jamie@example.com"}
	if _, err := repo.WriteDocument("README.md", "# changed\n", token, &caller); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}

	head, err := repo.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	commit, err := repo.repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.Author.Name != caller.Name || commit.Author.Email != caller.Email {
		t.Fatalf("author = %+v, want %+v", commit.Author, caller)
	}
}

// a safety check that atomicWrite never leaves a temp file behind, and that
// go-git's storage format is intact after a write (PlainOpen still succeeds).
func TestWriteDocument_LeavesRepositoryValid(t *testing.T) {
	repo := newTestRepository(t)
	arbiter := NewArbiter()
	token := acquireToken(t, arbiter, repo.ProjectID)
	if _, err := repo.WriteDocument("README.md", "# changed\n", token, nil); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	token.Release()

	if _, err := git.PlainOpen(repo.Path); err != nil {
		t.Fatalf("repository no longer opens cleanly: %v", err)
	}

	entries, err := os.ReadDir(repo.Path)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".docrepo-tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
