package docengine

import (
	"context"
	"encoding/json"
	"time"
)

// Config configures an Engine instance (spec §9 Inputs).
type Config struct {
	ProjectID     string
	WorktreePath  string
	DocsBranch    string
	Identity      *Identity
	RemoteName    string
	LockTimeout   time.Duration
	RemoteTimeout time.Duration
	ExtraIgnored  []string
	Cache         Cache
	Sink          Sink
}

// Cache memoizes branch-list and sync-status results for up to a few
// seconds (spec §5). A nil Cache disables memoization.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Del(key string)
}

const defaultCacheTTL = 5 * time.Second

// Engine is the single entry point consumers use; it wires the Path Policy,
// Document Index, Branch Coordinator, Commit Engine, Sync Engine, Worktree
// Propagator, Concurrency Arbiter, and Error/Event Log behind the logical
// operations table in spec §6. It holds no content cache of its own — every
// read goes straight to the working tree (spec D3) — but may consult a
// short-TTL Cache for branch/sync metadata.
type Engine struct {
	repo     *Repository
	arbiter  *Arbiter
	eventLog *EventLog
	cache    Cache

	lockTimeout   time.Duration
	remoteTimeout time.Duration
	extraIgnored  []string
}

// New opens the project's repository and constructs a ready-to-use Engine.
func New(cfg Config, arbiter *Arbiter) (*Engine, error) {
	repo, err := OpenRepository(cfg.ProjectID, cfg.WorktreePath, cfg.DocsBranch, cfg.Identity, cfg.RemoteName)
	if err != nil {
		return nil, err
	}

	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	remoteTimeout := cfg.RemoteTimeout
	if remoteTimeout <= 0 {
		remoteTimeout = 60 * time.Second
	}

	return &Engine{
		repo:          repo,
		arbiter:       arbiter,
		eventLog:      NewEventLog(cfg.Sink),
		cache:         cfg.Cache,
		lockTimeout:   lockTimeout,
		remoteTimeout: remoteTimeout,
		extraIgnored:  cfg.ExtraIgnored,
	}, nil
}

// Close releases resources the Engine holds. Repository handles carry no
// open file descriptors beyond what go-git itself manages per call, so this
// is currently a no-op retained for symmetry with the constructor and to
// give future resource ownership (e.g. a dedicated object cache) somewhere
// to land.
func (e *Engine) Close() error {
	return nil
}

func (e *Engine) withLock(ctx context.Context, fn func(*LockToken) error) error {
	token, err := e.arbiter.Acquire(ctx, e.repo.ProjectID, e.lockTimeout)
	if err != nil {
		return err
	}
	defer token.Release()
	return fn(token)
}

// List returns every document currently in the working tree, whichever
// branch is checked out.
func (e *Engine) List(ctx context.Context) ([]Document, error) {
	stop := timed()
	docs, err := ListDocuments(e.repo.Path, e.extraIgnored)
	e.record(OperationList, "", err, stop())
	return docs, err
}

// Get returns one document's metadata and content.
func (e *Engine) Get(ctx context.Context, relativePath string) (DocumentContent, error) {
	stop := timed()
	doc, err := ReadDocument(e.repo.Path, relativePath)
	e.record(OperationGet, relativePath, err, stop())
	return doc, err
}

// Update writes a document, creating it if it does not exist yet, and
// commits the change.
func (e *Engine) Update(ctx context.Context, relativePath, content string) (WriteResult, error) {
	stop := timed()
	var result WriteResult
	identity := identityFromContext(ctx)
	err := e.withLock(ctx, func(token *LockToken) error {
		var werr error
		result, werr = e.repo.WriteDocument(relativePath, content, token, identity)
		return werr
	})
	e.record(OperationUpdate, relativePath, err, stop())
	e.invalidateCaches()
	return result, err
}

// CreateFile writes a new document and commits it.
func (e *Engine) CreateFile(ctx context.Context, relativePath, content string) (WriteResult, error) {
	stop := timed()
	var result WriteResult
	identity := identityFromContext(ctx)
	err := e.withLock(ctx, func(token *LockToken) error {
		var werr error
		result, werr = e.repo.CreateFile(relativePath, content, token, identity)
		return werr
	})
	e.record(OperationCreateFile, relativePath, err, stop())
	e.invalidateCaches()
	return result, err
}

// ListBranches lists local and remote-tracking branches, served from cache
// when a fresh-enough entry exists.
func (e *Engine) ListBranches(ctx context.Context) ([]BranchDescriptor, error) {
	stop := timed()
	cacheKey := e.repo.ProjectID + ":branches"

	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			var branches []BranchDescriptor
			if err := json.Unmarshal([]byte(cached), &branches); err == nil {
				e.record(OperationListBranches, "", nil, stop())
				return branches, nil
			}
		}
	}

	branches, err := e.repo.ListBranches()
	e.record(OperationListBranches, "", err, stop())
	if err == nil && e.cache != nil {
		if encoded, merr := json.Marshal(branches); merr == nil {
			e.cache.Set(cacheKey, string(encoded), defaultCacheTTL)
		}
	}
	return branches, err
}

// CurrentBranchInfo is the output of GetBranch.
type CurrentBranchInfo struct {
	Name         string
	IsDocsBranch bool
}

// GetBranch reports the current branch and whether it is the docs branch.
func (e *Engine) GetBranch(ctx context.Context) (CurrentBranchInfo, error) {
	name, err := e.repo.CurrentBranch()
	if err != nil {
		return CurrentBranchInfo{}, err
	}
	return CurrentBranchInfo{Name: name, IsDocsBranch: name == e.repo.DocsBranch}, nil
}

// SwitchBranch checks out a different local branch.
func (e *Engine) SwitchBranch(ctx context.Context, name string) error {
	stop := timed()
	err := e.withLock(ctx, func(token *LockToken) error {
		return e.repo.SwitchBranch(name, token)
	})
	e.record(OperationSwitchBranch, name, err, stop())
	if err == nil {
		e.invalidateCaches()
	}
	return err
}

// SyncStatus reports the docs branch's position relative to its remote,
// served from cache when a fresh-enough entry exists (spec §5).
func (e *Engine) SyncStatus(ctx context.Context) (SyncStatus, error) {
	stop := timed()
	cacheKey := e.repo.ProjectID + ":sync-status"

	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			var status SyncStatus
			if err := json.Unmarshal([]byte(cached), &status); err == nil {
				e.record(OperationSyncStatus, "", nil, stop())
				return status, nil
			}
		}
	}

	status, err := e.repo.Status(ctx)
	e.record(OperationSyncStatus, "", err, stop())
	if err == nil && e.cache != nil {
		if encoded, merr := json.Marshal(status); merr == nil {
			e.cache.Set(cacheKey, string(encoded), defaultCacheTTL)
		}
	}
	return status, err
}

// Sync reconciles the docs branch with its remote, rebasing first when
// allowRebase is set and the branch is behind.
func (e *Engine) Sync(ctx context.Context, allowRebase bool) (SyncStatus, error) {
	stop := timed()
	var status SyncStatus
	err := e.withLock(ctx, func(token *LockToken) error {
		var serr error
		status, serr = e.repo.Sync(ctx, allowRebase, token)
		return serr
	})
	e.record(OperationSync, "", err, stop())
	e.invalidateCaches()
	return status, err
}

// PropagateToWorktree copies the docs branch's documents into a task
// worktree and commits them there.
func (e *Engine) PropagateToWorktree(ctx context.Context, worktreePath string) (PropagationResult, error) {
	stop := timed()
	var result PropagationResult
	err := e.withLock(ctx, func(token *LockToken) error {
		var perr error
		result, perr = e.repo.PropagateToWorktree(worktreePath, token)
		return perr
	})
	e.record(OperationPropagate, worktreePath, err, stop())
	return result, err
}

func (e *Engine) record(op Operation, path string, err error, duration time.Duration) {
	outcome := "ok"
	var kind Kind
	if err != nil {
		outcome = "error"
		kind = KindOf(err)
	}
	e.eventLog.Record(Event{
		ProjectID: e.repo.ProjectID,
		Operation: op,
		Path:      path,
		Outcome:   outcome,
		ErrorKind: kind,
		Duration:  duration,
	})
}

func (e *Engine) invalidateCaches() {
	if e.cache == nil {
		return
	}
	e.cache.Del(e.repo.ProjectID + ":sync-status")
	e.cache.Del(e.repo.ProjectID + ":branches")
}
