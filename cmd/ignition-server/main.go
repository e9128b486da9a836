package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/hatchstack/ignition/internal/api/http"
	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/compute"
	"github.com/hatchstack/ignition/internal/db"
	"github.com/hatchstack/ignition/internal/ignition"
	"github.com/hatchstack/ignition/internal/partition"
	"github.com/hatchstack/ignition/internal/sidecar"
	"github.com/hatchstack/ignition/internal/vault"
	"github.com/hatchstack/ignition/internal/workflow"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Ignition Control Plane", "version", AppVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	privateKey, err := command.LoadPrivateKey(config.Command.PrivateKeyFile)
	if err != nil {
		slog.Error("Failed to load command signing key", "error", err)
		os.Exit(1)
	}

	var builderOpts []command.BuilderOption
	if config.Command.Issuer != "" {
		builderOpts = append(builderOpts, command.WithIssuer(config.Command.Issuer))
	}
	builder, err := command.NewBuilder(privateKey, builderOpts...)
	if err != nil {
		slog.Error("Failed to init command builder", "error", err)
		os.Exit(1)
	}

	retention := time.Duration(config.Command.RetentionMins) * time.Minute
	if retention <= 0 {
		retention = time.Hour
	}
	queue := command.NewQueue(retention)
	go queue.StartCleanup(ctx, 5*time.Minute)

	client := sidecar.NewClient(builder, queue)
	fleet := sidecar.NewFleet(client)

	vaultKey, err := base64.StdEncoding.DecodeString(config.Vault.Key)
	if err != nil {
		slog.Error("Failed to decode vault key", "error", err)
		os.Exit(1)
	}
	credVault, err := vault.NewMemory(vaultKey)
	if err != nil {
		slog.Error("Failed to init credential vault", "error", err)
		os.Exit(1)
	}

	partitions, err := initPartitions(ctx)
	if err != nil {
		slog.Error("Failed to init partition manager", "error", err)
		os.Exit(1)
	}

	var factory compute.Factory
	if config.Compute.BaseURL != "" {
		factory = compute.NewAPIFactory(config.Compute.BaseURL, config.Compute.Token)
	} else {
		slog.Warn("No compute provider configured, using in-memory factory")
		factory = compute.NewMemory()
	}

	orchestrator := ignition.NewOrchestrator(partitions, factory, credVault, workflow.NewSidecarDeployer(client),
		ignition.WithCredentialInjector(client),
		ignition.WithFleetRegistrar(fleet))

	services := &internalhttp.Services{
		Orchestrator: orchestrator,
		Fleet:        fleet,
		Queue:        queue,
		Vault:        credVault,
		APIKey:       config.Http.APIKey,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}

// initPartitions picks the partition backend: Postgres when a database
// is configured, in-memory otherwise.
func initPartitions(ctx context.Context) (partition.Manager, error) {
	if config.Db.Url == "" {
		slog.Warn("No database configured, using in-memory partitions")
		return partition.NewMemory(), nil
	}

	if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
	if err != nil {
		return nil, err
	}
	return partition.NewPostgres(pool), nil
}

func corsOrigins() []string {
	origins := ParseCommaSeparated(config.Http.CORSOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
