package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatchstack/ignition/internal/agent"
	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/sidecar"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Ignition Agent", "version", AppVersion,
		"workspace_id", config.Agent.WorkspaceID,
		"droplet_id", config.Agent.DropletID)

	if config.Agent.WorkspaceID == "" || config.Agent.DropletID == "" {
		slog.Error("workspace_id and droplet_id must be configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publicKey, err := command.LoadPublicKey(config.Command.PublicKeyFile)
	if err != nil {
		slog.Error("Failed to load command verification key", "error", err)
		os.Exit(1)
	}

	var verifierOpts []command.VerifierOption
	if config.Command.Issuer != "" {
		verifierOpts = append(verifierOpts, command.WithExpectedIssuer(config.Command.Issuer))
	}
	verifier := command.NewVerifier(publicKey, config.Agent.WorkspaceID, config.Agent.DropletID, verifierOpts...)
	go verifier.StartCleanup(ctx, time.Minute)

	engine := agent.NewEngineClient(config.Engine.BaseURL, config.Engine.APIKey)
	runtime := agent.NewDockerRuntime(config.Runtime.Container)
	handler := agent.NewCommandHandler(runtime, engine)

	port := config.Agent.Port
	if port == 0 {
		port = sidecar.DefaultCommandPort
	}
	server := agent.NewServer(port, verifier, handler)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		slog.Error("Agent server error", "error", err)
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("Agent server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
