package search

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn().Err(err).Msg("search: meilisearch error, falling back to pgfts")
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Error().Err(err).Msg("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a document, synchronously in PG FTS and
// fire-and-forget in Meilisearch — it runs after every successful
// `write_document`/`create_file`, keeping the supplemental search surface
// current without putting Meilisearch's latency on the write path.
func (s *Service) IndexDocument(ctx context.Context, doc DocumentRecord) {
	if s.pgfts != nil {
		if err := s.pgfts.Upsert(ctx, doc); err != nil {
			log.Warn().Err(err).Str("path", doc.RelativePath).Msg("search: pgfts upsert failed")
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(doc); err != nil {
			log.Warn().Err(err).Str("path", doc.RelativePath).Msg("search: index document")
		}
	}()
}

// DeleteDocument removes a document from both search backends.
func (s *Service) DeleteDocument(ctx context.Context, projectID, relativePath string) {
	if s.pgfts != nil {
		if err := s.pgfts.Delete(ctx, projectID, relativePath); err != nil {
			log.Warn().Err(err).Str("path", relativePath).Msg("search: pgfts delete failed")
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(projectID, relativePath); err != nil {
			log.Warn().Err(err).Str("path", relativePath).Msg("search: delete document")
		}
	}()
}

// ReindexAll pushes every already-loaded document into Meilisearch.
func (s *Service) ReindexAll(documents []DocumentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if len(documents) > 0 {
		if err := s.meili.IndexDocuments(documents); err != nil {
			log.Warn().Err(err).Msg("search: reindex documents")
		}
	}
}

// ReindexAllFromPG reindexes every document from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	documents, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("search: reindex load failed")
		return
	}
	s.ReindexAll(documents)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
