package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrCommandNotFound = errors.New("command not found")

type CommandStatus string

const (
	StatusPending   CommandStatus = "pending"
	StatusCompleted CommandStatus = "completed"
	StatusFailed    CommandStatus = "failed"
)

// QueuedCommand tracks one issued command from enqueue to its terminal
// status callback.
type QueuedCommand struct {
	ID          string
	WorkspaceID string
	DropletID   string
	Action      Action
	Token       string
	Status      CommandStatus
	// Dispatched marks that a consumer has taken the command; a
	// command is handed out at most once.
	Dispatched bool
	Result     json.RawMessage
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Queue is the control plane's in-memory command ledger. Entries are
// removed once older than the retention window regardless of status, so
// a long-running process does not grow without bound.
type Queue struct {
	mu        sync.Mutex
	commands  map[string]*QueuedCommand
	retention time.Duration
}

func NewQueue(retention time.Duration) *Queue {
	return &Queue{
		commands:  make(map[string]*QueuedCommand),
		retention: retention,
	}
}

// Enqueue records a newly issued command and returns its id.
func (q *Queue) Enqueue(workspaceID, dropletID string, action Action, token string) string {
	now := time.Now()
	cmd := &QueuedCommand{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		DropletID:   dropletID,
		Action:      action,
		Token:       token,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q.mu.Lock()
	q.commands[cmd.ID] = cmd
	q.mu.Unlock()

	return cmd.ID
}

// UpdateStatus transitions a command to completed or failed, attaching
// the result or error and the measured execution duration.
func (q *Queue) UpdateStatus(id string, status CommandStatus, result json.RawMessage, errMsg string, duration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmd, ok := q.commands[id]
	if !ok {
		return ErrCommandNotFound
	}

	cmd.Status = status
	cmd.Result = result
	cmd.Error = errMsg
	cmd.Duration = duration
	cmd.UpdatedAt = time.Now()
	return nil
}

// GetPending returns copies of all pending commands for one droplet.
func (q *Queue) GetPending(dropletID string) []QueuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []QueuedCommand
	for _, cmd := range q.commands {
		if cmd.DropletID == dropletID && cmd.Status == StatusPending {
			result = append(result, *cmd)
		}
	}
	return result
}

// Dequeue hands out the pending, not-yet-dispatched commands for one
// droplet. Marking happens under the same lock as the read, so two
// concurrent consumers can never receive the same command.
func (q *Queue) Dequeue(dropletID string) []QueuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []QueuedCommand
	for _, cmd := range q.commands {
		if cmd.DropletID == dropletID && cmd.Status == StatusPending && !cmd.Dispatched {
			cmd.Dispatched = true
			result = append(result, *cmd)
		}
	}
	return result
}

// Get returns a copy of one command.
func (q *Queue) Get(id string) (QueuedCommand, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmd, ok := q.commands[id]
	if !ok {
		return QueuedCommand{}, ErrCommandNotFound
	}
	return *cmd, nil
}

func (q *Queue) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.cleanup()
		}
	}
}

func (q *Queue) cleanup() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.retention)
	removed := 0
	for id, cmd := range q.commands {
		if cmd.CreatedAt.Before(cutoff) {
			delete(q.commands, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Cleaned up expired commands", "removed", removed)
	}
}
