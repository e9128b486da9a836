package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/command"
)

// CommandHandler executes verified control-plane commands against the
// local runtime and automation engine.
type CommandHandler struct {
	runtime Runtime
	engine  WorkflowEngine
}

func NewCommandHandler(runtime Runtime, engine WorkflowEngine) *CommandHandler {
	return &CommandHandler{
		runtime: runtime,
		engine:  engine,
	}
}

// Execute handles POST /v1/commands. The token has already been
// verified; the envelope action must still match the action the token
// was signed for.
func (h *CommandHandler) Execute(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing command claims"})
		return
	}

	var env command.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command envelope"})
		return
	}

	if env.Action != claims.Action {
		slog.Warn("Envelope action does not match signed action",
			"signed", claims.Action,
			"requested", env.Action)
		c.JSON(http.StatusForbidden, gin.H{
			"error": fmt.Sprintf("token was signed for action %q, not %q", claims.Action, env.Action),
		})
		return
	}

	start := time.Now()
	result, err := h.dispatch(c, env)
	resp := command.Response{
		Success:    err == nil,
		Result:     result,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
		slog.Error("Command failed",
			"action", env.Action,
			"error", err)
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	slog.Info("Command executed",
		"action", env.Action,
		"duration_ms", resp.DurationMS)
	c.JSON(http.StatusOK, resp)
}

func (h *CommandHandler) dispatch(c *gin.Context, env command.Envelope) (json.RawMessage, error) {
	ctx := c.Request.Context()

	switch env.Action {
	case command.ActionHealthCheck:
		report, err := h.healthReport(c)
		if err != nil {
			return nil, err
		}
		return json.Marshal(report)

	case command.ActionDeployWorkflow:
		var p command.DeployWorkflowPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode deploy_workflow payload: %w", err)
		}
		id, err := h.engine.Deploy(ctx, p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(command.DeployWorkflowResult{WorkflowID: id})

	case command.ActionActivateWorkflow:
		var p command.ActivateWorkflowPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode activate_workflow payload: %w", err)
		}
		return nil, h.engine.SetActive(ctx, p.WorkflowID, p.Active)

	case command.ActionInjectCredential:
		var p command.InjectCredentialPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode inject_credential payload: %w", err)
		}
		return nil, h.engine.InjectCredential(ctx, p)

	case command.ActionRestartRuntime:
		return nil, h.runtime.Restart(ctx)

	default:
		return nil, fmt.Errorf("unknown action %q", env.Action)
	}
}

func (h *CommandHandler) healthReport(c *gin.Context) (command.HealthReport, error) {
	ctx := c.Request.Context()

	runtimeStatus, err := h.runtime.Status(ctx)
	if err != nil {
		return command.HealthReport{}, fmt.Errorf("runtime status: %w", err)
	}

	report := command.HealthReport{
		Status:  "ok",
		Runtime: runtimeStatus,
	}
	if runtimeStatus != "running" {
		report.Status = "degraded"
	}

	// Engine stats are best effort; a degraded engine should not make
	// the health check itself fail.
	metrics, err := h.engine.Stats(ctx)
	if err != nil {
		slog.Warn("Failed to fetch engine stats", "error", err)
		report.Status = "degraded"
	} else {
		report.Metrics = metrics
	}
	return report, nil
}
