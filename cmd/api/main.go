package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docrepo/internal/app"
	"docrepo/internal/cache"
	"docrepo/internal/config"
	"docrepo/internal/docengine"
	"docrepo/internal/eventstore"
	"docrepo/internal/export"
	"docrepo/internal/identity"
	"docrepo/internal/search"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	ctx := context.Background()

	if len(cfg.Projects) == 0 {
		log.Fatal().Msg("no projects configured; set DOCREPO_PROJECTS_FILE to a JSON list of {project_id, path}")
	}

	db, err := eventstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := eventstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	sink := eventstore.NewSink(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	reindexSearch(ctx, pgfts, meiliClient)

	var repoCache docengine.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		repoCache = redisStore
	}

	var identityReg *identity.Registry
	if cfg.APITokensFile != "" {
		entries, err := loadTokenEntries(cfg.APITokensFile)
		if err != nil {
			log.Fatal().Err(err).Msg("loading API tokens failed")
		}
		identityReg, err = identity.NewRegistry(entries)
		if err != nil {
			log.Fatal().Err(err).Msg("building identity registry failed")
		}
	}

	arbiter := docengine.NewArbiter()
	projects := make(map[string]*app.Project, len(cfg.Projects))
	for _, p := range cfg.Projects {
		engine, err := docengine.New(docengine.Config{
			ProjectID:     p.ProjectID,
			WorktreePath:  p.Path,
			DocsBranch:    cfg.DocsBranch,
			RemoteName:    cfg.RemoteName,
			LockTimeout:   cfg.LockTimeout,
			RemoteTimeout: cfg.RemoteTimeout,
			ExtraIgnored:  cfg.ExtraIgnored,
			Cache:         repoCache,
			Sink:          sink,
		}, arbiter)
		if err != nil {
			log.Fatal().Err(err).Str("project_id", p.ProjectID).Msg("opening repository failed")
		}
		projects[p.ProjectID] = &app.Project{
			Engine: engine,
			Export: export.NewService(p.ProjectID, engine),
		}
	}

	service := app.NewService(projects, searchService, identityReg)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("docrepo api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

// reindexSearch pushes every row already in the Postgres-backed document
// index into Meilisearch on startup, so a fresh Meilisearch instance (or one
// recovering from data loss) doesn't serve empty results until the next
// write to each document.
func reindexSearch(ctx context.Context, pgfts *search.PgFTS, meili *search.Meili) {
	if meili == nil {
		return
	}
	records, err := pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("loading records for search reindex failed")
		return
	}
	if err := meili.IndexDocuments(records); err != nil {
		log.Warn().Err(err).Msg("reindexing meilisearch failed")
	}
}

func loadTokenEntries(path string) ([]identity.TokenEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []identity.TokenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
