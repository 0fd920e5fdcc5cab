package docengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var testIdentity = Identity{Name: "Avery", Email: "avery@example.com"}

// initRepo creates a bare-bones Git working tree at dir, on branch `main`,
// with a single initial commit, and returns the go-git handle.
func initRepo(t *testing.T, dir string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName("main"),
		},
	})
	if err != nil {
		t.Fatalf("git init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Hi\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("."); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("docs: add README.md", &git.CommitOptions{
		Author: &object.Signature{Name: testIdentity.Name, Email: testIdentity.Email, When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Name().Short() != "main" {
		t.Fatalf("expected default branch main, got %s", head.Name().Short())
	}
	return repo
}

// newTestRepository opens a fresh Repository handle rooted at a temp dir
// with one seed commit on main.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	initRepo(t, dir)
	repo, err := OpenRepository("proj-1", dir, "main", &testIdentity, "")
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	return repo
}

// newTestEngine builds an Engine over a fresh temp repository.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	initRepo(t, dir)
	engine, err := New(Config{
		ProjectID:    "proj-1",
		WorktreePath: dir,
		DocsBranch:   "main",
		Identity:     &testIdentity,
	}, NewArbiter())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

// acquireToken is a test-only helper for exercising Repository methods that
// require a LockToken without going through an Engine.
func acquireToken(t *testing.T, a *Arbiter, projectID string) *LockToken {
	t.Helper()
	token, err := a.Acquire(context.Background(), projectID, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return token
}
