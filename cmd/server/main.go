package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/vetfieldhq/vetfield/internal/config"
	"github.com/vetfieldhq/vetfield/internal/db"
	"github.com/vetfieldhq/vetfield/internal/export"
	"github.com/vetfieldhq/vetfield/internal/importer"
	"github.com/vetfieldhq/vetfield/internal/middleware"
	"github.com/vetfieldhq/vetfield/internal/reconcile"
	"github.com/vetfieldhq/vetfield/internal/repository"
	mongorepo "github.com/vetfieldhq/vetfield/internal/repository/mongo"
)

type repositories struct {
	clients repository.ClientRepository
	visits  repository.VisitRepository
	logs    repository.ImportLogRepository
	jobs    repository.ExportJobRepository
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	repos, closeStore, err := buildRepositories(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer closeStore()

	matchMode, err := reconcile.ParseMatchMode(cfg.Import.ClientMatch)
	if err != nil {
		log.Fatalf("Invalid import configuration: %v", err)
	}

	tables := importer.NewTables()
	profile := importer.PhoneProfile{
		CountryCode:  cfg.Import.PhoneCountryCode,
		MobilePrefix: cfg.Import.PhoneMobilePrefix,
		TrunkPrefix:  cfg.Import.PhoneTrunkPrefix,
	}
	builder := importer.NewRecordBuilder(profile, cfg.Import.Strict)
	reconciler := reconcile.NewService(repos.clients,
		reconcile.WithMatchMode(matchMode),
		reconcile.WithPhonePrefix("+"+cfg.Import.PhoneCountryCode+cfg.Import.PhoneMobilePrefix),
	)
	importService := importer.NewService(tables, builder, reconciler, repos.visits, repos.logs)
	importHandler := importer.NewHTTPHandler(importService, tables, repos.logs,
		importer.WithWebhookSource(cfg.Import.WebhookSource),
	)

	exportService := export.NewService(repos.visits, repos.clients, repos.jobs, tables,
		export.WithExportDirectory(cfg.Export.Directory),
		export.WithPageSize(cfg.Export.PageSize),
	)
	exportHandler := export.NewHTTPHandler(exportService)

	mux := http.NewServeMux()
	importHandler.Register(mux)
	exportHandler.Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(
			middleware.ActorMiddleware(mux),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (storage=%s)", cfg.Server.Address, cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// buildRepositories wires the configured storage backend and returns its
// repositories plus a close function.
func buildRepositories(ctx context.Context, cfg config.Config) (repositories, func(), error) {
	switch cfg.StorageDriver {
	case "mongo":
		client, err := db.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			return repositories{}, nil, err
		}
		database := client.Database(cfg.Mongo.Database)
		repos := repositories{
			clients: mongorepo.NewClientRepository(database),
			visits:  mongorepo.NewVisitRepository(database),
			logs:    mongorepo.NewImportLogRepository(database),
			jobs:    mongorepo.NewExportJobRepository(database),
		}
		closeStore := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("[db] failed to disconnect mongo: %v", err)
			}
		}
		return repos, closeStore, nil
	default:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return repositories{}, nil, err
		}
		if err := db.RunMigrations(cfg.Database, cfg.MigrationsPath); err != nil {
			conn.Close()
			return repositories{}, nil, err
		}
		repos := repositories{
			clients: repository.NewClientRepository(conn.Pool),
			visits:  repository.NewVisitRepository(conn.Pool),
			logs:    repository.NewImportLogRepository(conn.Pool),
			jobs:    repository.NewExportJobRepository(conn.Pool),
		}
		return repos, conn.Close, nil
	}
}
