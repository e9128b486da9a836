package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/api/http/handler"
	"github.com/hatchstack/ignition/internal/api/http/middleware"
	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/ignition"
	"github.com/hatchstack/ignition/internal/sidecar"
	"github.com/hatchstack/ignition/internal/vault"
)

type Services struct {
	Orchestrator *ignition.Orchestrator
	Fleet        *sidecar.Fleet
	Queue        *command.Queue
	Vault        vault.Vault
	APIKey       string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	api := engine.Group("/api/v1")
	if srvs.APIKey != "" {
		api.Use(middleware.APIKeyAuth(srvs.APIKey))
	}

	ignitionHandler := handler.NewIgnitionHandler(srvs.Orchestrator)
	api.POST("/ignitions", ignitionHandler.Ignite)
	api.POST("/ignitions/:workspace_id/cancel", ignitionHandler.Cancel)
	api.GET("/ignitions/:workspace_id", ignitionHandler.GetState)

	fleetHandler := handler.NewFleetHandler(srvs.Fleet, srvs.Vault)
	api.GET("/fleet/:workspace_id/health", fleetHandler.Health)
	api.POST("/fleet/:workspace_id/restart", fleetHandler.Restart)
	api.POST("/fleet/:workspace_id/workflows", fleetHandler.DeployWorkflow)
	api.POST("/fleet/:workspace_id/credentials", fleetHandler.InjectCredential)
	api.POST("/fleet/:workspace_id/droplets", fleetHandler.RegisterDroplet)
	api.DELETE("/fleet/:workspace_id/droplets/:droplet_id", fleetHandler.DeregisterDroplet)

	commandHandler := handler.NewCommandHandler(srvs.Queue)
	api.GET("/commands/:id", commandHandler.Get)
	api.GET("/droplets/:droplet_id/commands", commandHandler.ListPending)
}
