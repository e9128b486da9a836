package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runtime controls the automation runtime container on this droplet.
type Runtime interface {
	Restart(ctx context.Context) error
	Status(ctx context.Context) (string, error)
}

// DockerRuntime manages the runtime through the local docker CLI.
type DockerRuntime struct {
	container string
}

func NewDockerRuntime(container string) *DockerRuntime {
	return &DockerRuntime{container: container}
}

func (r *DockerRuntime) Restart(ctx context.Context) error {
	slog.Info("Restarting runtime container", "container", r.container)

	cmd := exec.CommandContext(ctx, "docker", "restart", r.container)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker restart %s: %w: %s", r.container, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *DockerRuntime) Status(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Status}}", r.container)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker inspect %s: %w: %s", r.container, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
