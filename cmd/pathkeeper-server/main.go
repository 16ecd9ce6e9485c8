// Package main provides the pathkeeper server entry point. It hosts the
// public path resolver, the admin path API, and the rebuild worker pool in
// a single process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/solaius/pathkeeper/domains/content"
	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/ha"
	"github.com/solaius/pathkeeper/pkg/httpapi"
	"github.com/solaius/pathkeeper/pkg/pathsync"
	"github.com/solaius/pathkeeper/pkg/rebuild"
	"github.com/solaius/pathkeeper/pkg/resolve"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides PATHKEEPER_LISTEN_ADDR)")
	flag.StringVar(&databaseType, "db-type", "postgres", "Database type (postgres, mysql, or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	serverCfg := httpapi.ServerConfigFromEnv()
	if listenAddr != "" {
		serverCfg.ListenAddr = listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	contentStore := content.NewStore(db)
	registry := entity.NewRegistry()
	if err := content.Register(registry, contentStore); err != nil {
		// A type missing its path contract is a programming error; refuse
		// to start rather than fail on the first save.
		logger.Error("failed to register content entity types", "error", err)
		os.Exit(1)
	}

	engine := pathsync.NewEngine(db, registry, pathsync.EngineConfigFromEnv(), logger)
	jobStore := rebuild.NewJobStore(db)

	// Replicas race AutoMigrate without the lock.
	locker := ha.NewMigrationLocker(db)
	err = locker.WithLock(ctx, func() error {
		if err := contentStore.AutoMigrate(); err != nil {
			return err
		}
		if err := engine.SlugStore().AutoMigrate(); err != nil {
			return err
		}
		if err := engine.PathStore().AutoMigrate(); err != nil {
			return err
		}
		return jobStore.AutoMigrate()
	})
	if err != nil {
		logger.Error("failed to migrate database schema", "error", err)
		os.Exit(1)
	}

	resolver := resolve.NewResolver(engine.PathStore(), registry, resolve.ResolverConfigFromEnv(), logger)
	engine.Notifier().Subscribe(resolver.HandleChange)

	rebuildCfg := rebuild.RebuildConfigFromEnv()
	workers := rebuild.NewWorkerPool(jobStore, engine, rebuildCfg, logger)
	go workers.Run(ctx)

	server := httpapi.NewServer(engine, resolver, jobStore, serverCfg, logger)
	server.RegisterMatchHandler(contentMatchHandler)
	router := server.Router()

	logger.Info("pathkeeper server ready",
		"listen", serverCfg.ListenAddr,
		"entityTypes", registry.Types(),
		"rebuildWorkers", rebuildCfg.Concurrency,
	)

	httpServer := &http.Server{
		Addr:    serverCfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("pathkeeper server stopped")
}

// contentMatchHandler serves resolved content entities as JSON. A real
// deployment would render the entity instead.
func contentMatchHandler(m *resolve.Match) {
	m.Respond(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"entityType":%q,"entityId":%q,"path":%q}`+"\n",
			m.Record.EntityType, m.Record.EntityID, m.Record.FullPath)
	}))
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
	}

	if dbType == "" {
		dbType = os.Getenv("DATABASE_TYPE")
		if dbType == "" {
			dbType = "postgres"
		}
	}

	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected postgres, mysql, or sqlite)", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}
	return db, nil
}
