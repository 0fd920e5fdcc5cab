package app

import (
	"context"
	"fmt"

	"docrepo/internal/docengine"
	"docrepo/internal/export"
	"docrepo/internal/identity"
	"docrepo/internal/search"
)

// Project bundles everything the HTTP layer needs to serve one project's
// documents: its engine, and an export facade scoped to it.
type Project struct {
	Engine *docengine.Engine
	Export *export.Service
}

// Service is the application layer sitting between the HTTP handlers and
// the docengine operations table (spec §6). It has no domain logic of its
// own beyond project lookup, error mapping, and fan-out to the supplemental
// search index.
type Service struct {
	projects map[string]*Project
	search   *search.Service
	identity *identity.Registry
}

// NewService wires a multi-project Service. search and identity may be nil
// to disable the respective feature.
func NewService(projects map[string]*Project, searchSvc *search.Service, identityReg *identity.Registry) *Service {
	return &Service{projects: projects, search: searchSvc, identity: identityReg}
}

var errUnknownProject = domainError(404, "UNKNOWN_PROJECT", "unknown project", nil)

func (s *Service) project(projectID string) (*Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, errUnknownProject
	}
	return p, nil
}

// Ping reports whether every registered project's repository is reachable.
func (s *Service) Ping(ctx context.Context) error {
	for id, p := range s.projects {
		if _, err := p.Engine.GetBranch(ctx); err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}
	}
	return nil
}

func (s *Service) ListDocuments(ctx context.Context, projectID string) ([]docengine.Document, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	docs, err := p.Engine.List(ctx)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return docs, nil
}

func (s *Service) GetDocument(ctx context.Context, projectID, relativePath string) (docengine.DocumentContent, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.DocumentContent{}, err
	}
	doc, err := p.Engine.Get(ctx, relativePath)
	if err != nil {
		return docengine.DocumentContent{}, mapEngineError(err)
	}
	return doc, nil
}

func (s *Service) UpdateDocument(ctx context.Context, projectID, relativePath, content string) (docengine.WriteResult, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.WriteResult{}, err
	}
	result, err := p.Engine.Update(ctx, relativePath, content)
	if err != nil {
		return docengine.WriteResult{}, mapEngineError(err)
	}
	s.indexAfterWrite(ctx, projectID, result.Document)
	return result, nil
}

func (s *Service) CreateFile(ctx context.Context, projectID, relativePath, content string) (docengine.WriteResult, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.WriteResult{}, err
	}
	result, err := p.Engine.CreateFile(ctx, relativePath, content)
	if err != nil {
		return docengine.WriteResult{}, mapEngineError(err)
	}
	s.indexAfterWrite(ctx, projectID, result.Document)
	return result, nil
}

func (s *Service) indexAfterWrite(ctx context.Context, projectID string, doc docengine.Document) {
	if s.search == nil || doc.RelativePath == "" {
		return
	}
	p := s.projects[projectID]
	content, err := p.Engine.Get(ctx, doc.RelativePath)
	if err != nil {
		return
	}
	s.search.IndexDocument(ctx, search.DocumentRecord{
		ID:           search.RecordID(projectID, doc.RelativePath),
		ProjectID:    projectID,
		RelativePath: doc.RelativePath,
		Name:         doc.Name,
		FileType:     string(doc.FileType),
		Content:      content.Content,
	})
}

func (s *Service) ListBranches(ctx context.Context, projectID string) ([]docengine.BranchDescriptor, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	branches, err := p.Engine.ListBranches(ctx)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return branches, nil
}

func (s *Service) GetBranch(ctx context.Context, projectID string) (docengine.CurrentBranchInfo, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.CurrentBranchInfo{}, err
	}
	info, err := p.Engine.GetBranch(ctx)
	if err != nil {
		return docengine.CurrentBranchInfo{}, mapEngineError(err)
	}
	return info, nil
}

func (s *Service) SwitchBranch(ctx context.Context, projectID, name string) error {
	p, err := s.project(projectID)
	if err != nil {
		return err
	}
	if err := p.Engine.SwitchBranch(ctx, name); err != nil {
		return mapEngineError(err)
	}
	return nil
}

func (s *Service) SyncStatus(ctx context.Context, projectID string) (docengine.SyncStatus, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.SyncStatus{}, err
	}
	status, err := p.Engine.SyncStatus(ctx)
	if err != nil {
		return docengine.SyncStatus{}, mapEngineError(err)
	}
	return status, nil
}

func (s *Service) Sync(ctx context.Context, projectID string, allowRebase bool) (docengine.SyncStatus, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.SyncStatus{}, err
	}
	status, err := p.Engine.Sync(ctx, allowRebase)
	if err != nil {
		return docengine.SyncStatus{}, mapEngineError(err)
	}
	return status, nil
}

func (s *Service) PropagateToWorktree(ctx context.Context, projectID, worktreePath string) (docengine.PropagationResult, error) {
	p, err := s.project(projectID)
	if err != nil {
		return docengine.PropagationResult{}, err
	}
	result, err := p.Engine.PropagateToWorktree(ctx, worktreePath)
	if err != nil {
		return docengine.PropagationResult{}, mapEngineError(err)
	}
	return result, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, projectID, relativePath string, format export.Format) (*export.Result, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	result, err := p.Export.Export(ctx, export.Request{ProjectID: projectID, RelativePath: relativePath, Format: format})
	if err != nil {
		return nil, domainError(502, "EXPORT_FAILED", err.Error(), nil)
	}
	return result, nil
}

// ResolveCaller maps a bearer token to the identity that should be
// attributed to commits made during this request.
func (s *Service) ResolveCaller(token string) (docengine.Identity, error) {
	if s.identity == nil {
		return docengine.Identity{}, identity.ErrUnknownToken
	}
	return s.identity.Resolve(token)
}
