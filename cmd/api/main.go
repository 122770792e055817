package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/app"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/authpw"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/board"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/claims"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/config"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/docs"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/export"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/identity"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/livesync"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/search"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/session"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	sessionStore := session.NewRedisStoreWithClient(redisClient)
	claimsStore := claims.NewRedisStoreWithClient(redisClient)

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("object storage connection failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	publisher := livesync.NewPublisher(redisClient)
	identityService := identity.NewService(dataStore, claimsStore)
	boardService := board.NewService(dataStore, publisher)
	liveEngine := livesync.NewEngine(redisClient, boardService, boardService)
	docsService := docs.NewService(minioClient, cfg.MinioBucket)
	exportService := export.NewService(boardService)
	authService := authpw.NewService(dataStore)

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Sessions: sessionStore,
		Claims:   claimsStore,
		AuthPW:   authService,
		Identity: identityService,
		Board:    boardService,
		Docs:     docsService,
		Exporter: exportService,
		Search:   searchService,
		Live:     liveEngine,
	})

	if seeded, err := boardService.SeedIfEmpty(ctx); err != nil {
		log.Printf("WARNING: starter seed failed (will retry on first subscribe): %v", err)
	} else if seeded {
		log.Printf("Seeded starter concerns")
	}

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
		log.Printf("Opinion API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
