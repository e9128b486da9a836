package ignition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/compute"
	"github.com/hatchstack/ignition/internal/partition"
	"github.com/hatchstack/ignition/internal/sidecar"
	"github.com/hatchstack/ignition/internal/vault"
	"github.com/hatchstack/ignition/internal/workflow"
)

const (
	defaultPartitionTimeout = 30 * time.Second
	defaultDropletTimeout   = 120 * time.Second
)

// ErrCancelled marks an ignition aborted by a cancel request. The
// capitalized message is part of the result contract.
var ErrCancelled = errors.New("Cancelled")

// CredentialInjector pushes a sealed credential to the agent on a
// provisioned droplet. *sidecar.Client satisfies it.
type CredentialInjector interface {
	InjectCredential(ctx context.Context, t sidecar.Target, p command.InjectCredentialPayload) error
}

// FleetRegistrar learns about droplets that finished igniting so fleet
// commands can reach them. *sidecar.Fleet satisfies it.
type FleetRegistrar interface {
	Register(workspaceID string, t sidecar.Target)
}

// Orchestrator runs ignitions: the multi-step provisioning of one
// tenant's automation environment. Steps within one ignition run
// strictly sequentially; ignitions for different workspaces run
// concurrently with no shared step state.
type Orchestrator struct {
	partitions partition.Manager
	compute    compute.Factory
	vault      vault.Vault
	deployer   workflow.Deployer

	injector  CredentialInjector
	registrar FleetRegistrar
	progress  ProgressFunc
	actor     string

	partitionTimeout time.Duration
	dropletTimeout   time.Duration

	mu      sync.Mutex
	states  map[string]*State
	cancels map[string]bool
}

type Option func(*Orchestrator)

// WithStepTimeouts overrides the partition-creation and
// droplet-provisioning bounds.
func WithStepTimeouts(partitionTimeout, dropletTimeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.partitionTimeout = partitionTimeout
		o.dropletTimeout = dropletTimeout
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func WithCredentialInjector(i CredentialInjector) Option {
	return func(o *Orchestrator) { o.injector = i }
}

func WithFleetRegistrar(r FleetRegistrar) Option {
	return func(o *Orchestrator) { o.registrar = r }
}

// WithActor sets the audit identity recorded on stored credentials.
func WithActor(actor string) Option {
	return func(o *Orchestrator) { o.actor = actor }
}

func NewOrchestrator(partitions partition.Manager, factory compute.Factory, credVault vault.Vault, deployer workflow.Deployer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		partitions:       partitions,
		compute:          factory,
		vault:            credVault,
		deployer:         deployer,
		actor:            "system",
		partitionTimeout: defaultPartitionTimeout,
		dropletTimeout:   defaultDropletTimeout,
		states:           make(map[string]*State),
		cancels:          make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ignite provisions a workspace end to end. It always returns a
// structured Result; it never panics and never returns a bare error.
// A duplicate call for a workspace whose ignition is active or
// completed succeeds idempotently without creating new resources.
func (o *Orchestrator) Ignite(ctx context.Context, cfg Config) Result {
	if cfg.WorkspaceID == "" {
		return Result{
			Success:   false,
			Error:     "validation failed: workspace ID is required",
			ErrorStep: StepValidating,
		}
	}

	o.mu.Lock()
	if existing, ok := o.states[cfg.WorkspaceID]; ok &&
		(existing.Status == StatusInProgress || existing.Status == StatusCompleted) {
		res := Result{
			Success:       true,
			WorkspaceID:   cfg.WorkspaceID,
			PartitionName: existing.PartitionName,
			DropletID:     existing.DropletID,
		}
		o.mu.Unlock()
		slog.Info("Duplicate ignite accepted", "workspace_id", cfg.WorkspaceID)
		return res
	}
	st := newState(cfg.WorkspaceID)
	o.states[cfg.WorkspaceID] = st
	delete(o.cancels, cfg.WorkspaceID)
	o.mu.Unlock()

	slog.Info("Ignition started",
		"workspace_id", cfg.WorkspaceID,
		"size", cfg.Size,
		"region", cfg.Region,
		"credentials", len(cfg.Credentials),
		"workflows", len(cfg.Workflows))

	rb := &rollbackStack{}

	// validating
	if err := o.runStep(ctx, st, StepValidating, 0, func(context.Context) error {
		return validateConfig(cfg)
	}); err != nil {
		return o.fail(ctx, st, rb, err)
	}

	// partition_creating
	var part partition.CreateResult
	if err := o.runStep(ctx, st, StepPartitionCreating, o.partitionTimeout, func(c context.Context) error {
		res, err := o.partitions.Create(c, cfg.WorkspaceID)
		if err != nil {
			return fmt.Errorf("create partition: %w", err)
		}
		part = res
		return nil
	}); err != nil {
		return o.fail(ctx, st, rb, err)
	}
	o.setPartition(st, part.PartitionName)
	if !part.AlreadyExisted {
		name := part.PartitionName
		rb.push("drop partition "+name, func(c context.Context) error {
			return o.partitions.Drop(c, name)
		})
	}

	// droplet_provisioning
	var inst compute.Instance
	if err := o.runStep(ctx, st, StepDropletProvisioning, o.dropletTimeout, func(c context.Context) error {
		in, err := o.compute.Provision(c, compute.ProvisionRequest{
			WorkspaceID: cfg.WorkspaceID,
			Size:        cfg.Size,
			Region:      cfg.Region,
		})
		if err != nil {
			return fmt.Errorf("provision droplet: %w", err)
		}
		inst = in
		return nil
	}); err != nil {
		return o.fail(ctx, st, rb, err)
	}
	o.setDroplet(st, inst.ID)
	rb.push("terminate droplet "+inst.ID, func(c context.Context) error {
		return o.compute.Terminate(c, inst.ID)
	})

	// credentials_injecting. All-or-nothing: the first failure aborts
	// the phase and everything stored so far is rolled back.
	var injected int
	if err := o.runStep(ctx, st, StepCredentialsInjecting, 0, func(c context.Context) error {
		for i, def := range cfg.Credentials {
			credID, err := o.vault.Store(c, cfg.WorkspaceID, def, o.actor)
			if err != nil {
				return fmt.Errorf("credential %d (%s): %w", i+1, def.Name, err)
			}
			rb.push("delete credential "+credID, func(c context.Context) error {
				return o.vault.Delete(c, credID)
			})

			if o.injector != nil && inst.Address != "" {
				cred, err := o.vault.Get(c, credID)
				if err != nil {
					return fmt.Errorf("credential %d (%s): %w", i+1, def.Name, err)
				}
				if err := o.injector.InjectCredential(c, sidecar.Target{
					WorkspaceID: cfg.WorkspaceID,
					DropletID:   inst.ID,
					Address:     inst.Address,
				}, command.InjectCredentialPayload{
					Type:        cred.Type,
					Name:        cred.Name,
					SealedValue: cred.SealedValue,
				}); err != nil {
					return fmt.Errorf("credential %d (%s): inject into droplet: %w", i+1, def.Name, err)
				}
			}
			injected++
		}
		return nil
	}); err != nil {
		return o.fail(ctx, st, rb, err)
	}

	// workflows_deploying
	wfInst := workflow.Instance{
		WorkspaceID: cfg.WorkspaceID,
		DropletID:   inst.ID,
		Address:     inst.Address,
	}
	var deployedIDs []string
	if err := o.runStep(ctx, st, StepWorkflowsDeploying, 0, func(c context.Context) error {
		if len(cfg.Workflows) > 0 && inst.Address == "" {
			return fmt.Errorf("droplet %s has no network address; cannot deploy workflows", inst.ID)
		}
		for i, def := range cfg.Workflows {
			def = substituteVariables(def, cfg.Variables)
			id, err := o.deployer.Deploy(c, wfInst, def)
			if err != nil {
				return fmt.Errorf("deploy workflow %d (%s): %w", i+1, def.Name, err)
			}
			workflowID := id
			rb.push("remove workflow "+workflowID, func(c context.Context) error {
				return o.deployer.Remove(c, wfInst, workflowID)
			})
			deployedIDs = append(deployedIDs, id)
		}
		return nil
	}); err != nil {
		return o.fail(ctx, st, rb, err)
	}

	// activating
	if !cfg.SkipActivation && len(deployedIDs) > 0 {
		if err := o.runStep(ctx, st, StepActivating, 0, func(c context.Context) error {
			for _, id := range deployedIDs {
				if err := o.deployer.Activate(c, wfInst, id); err != nil {
					return fmt.Errorf("activate workflow %s: %w", id, err)
				}
			}
			return nil
		}); err != nil {
			return o.fail(ctx, st, rb, err)
		}
	}

	o.complete(st)
	o.reportProgress(cfg.WorkspaceID, StepCompleted)

	if o.registrar != nil && inst.ID != "" {
		o.registrar.Register(cfg.WorkspaceID, sidecar.Target{
			WorkspaceID: cfg.WorkspaceID,
			DropletID:   inst.ID,
			Address:     inst.Address,
		})
	}

	slog.Info("Ignition completed",
		"workspace_id", cfg.WorkspaceID,
		"partition", part.PartitionName,
		"droplet_id", inst.ID,
		"credentials", injected,
		"workflows", len(deployedIDs))

	return Result{
		Success:             true,
		WorkspaceID:         cfg.WorkspaceID,
		PartitionName:       part.PartitionName,
		DropletID:           inst.ID,
		CredentialsInjected: injected,
		WorkflowsDeployed:   len(deployedIDs),
	}
}

// Cancel requests cooperative cancellation of an in-flight ignition.
// The flag is honored at the next step boundary; a step whose external
// call is outstanding finishes (or times out) first.
func (o *Orchestrator) Cancel(workspaceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.states[workspaceID]
	if !ok || st.Status != StatusInProgress {
		return fmt.Errorf("ignition for workspace %s not found", workspaceID)
	}

	o.cancels[workspaceID] = true
	slog.Info("Cancellation requested", "workspace_id", workspaceID, "step", st.Step)
	return nil
}

// GetState returns a copy of the workspace's ignition state, or nil if
// it was never ignited.
func (o *Orchestrator) GetState(workspaceID string) *State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.states[workspaceID]
	if !ok {
		return nil
	}
	cp := st.clone()
	return &cp
}

// runStep advances the state machine by one step. The cancellation flag
// is checked before the step starts; a bounded step races its work
// against the timeout, and a late result cannot un-fail a step that
// already timed out.
func (o *Orchestrator) runStep(ctx context.Context, st *State, step Step, timeout time.Duration, fn func(context.Context) error) error {
	if o.cancelRequested(st.WorkspaceID) {
		return fmt.Errorf("%w before step %s", ErrCancelled, step)
	}

	o.setStep(st, step)
	o.reportProgress(st.WorkspaceID, step)

	if timeout <= 0 {
		return fn(ctx)
	}

	done := make(chan error, 1)
	go func() {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("step %s timed out after %s", step, timeout)
	}
}

// fail settles a failed or cancelled ignition: best-effort rollback in
// reverse order, terminal state, structured result. Rollback failures
// are collected and logged but never change the outcome.
func (o *Orchestrator) fail(ctx context.Context, st *State, rb *rollbackStack, stepErr error) Result {
	failedStep := o.currentStep(st)

	status := StatusFailed
	if errors.Is(stepErr, ErrCancelled) {
		status = StatusCancelled
	}

	rollbackPerformed := false
	if rb.len() > 0 {
		// Rollback must run even if the caller's context is already
		// done; cleanup uses a detached context.
		errs := rb.run(context.WithoutCancel(ctx), st.WorkspaceID)
		rollbackPerformed = true
		if len(errs) > 0 {
			slog.Warn("Rollback finished with failures",
				"workspace_id", st.WorkspaceID,
				"failed_actions", len(errs))
		}
	}

	o.mu.Lock()
	st.Status = status
	st.Error = stepErr.Error()
	st.ErrorStep = failedStep
	st.RollbackPerformed = rollbackPerformed
	st.FinishedAt = time.Now()
	o.mu.Unlock()

	slog.Error("Ignition failed",
		"workspace_id", st.WorkspaceID,
		"step", failedStep,
		"status", status,
		"rollback_performed", rollbackPerformed,
		"error", stepErr)

	return Result{
		Success:           false,
		WorkspaceID:       st.WorkspaceID,
		Error:             stepErr.Error(),
		ErrorStep:         failedStep,
		RollbackPerformed: rollbackPerformed,
	}
}

func (o *Orchestrator) complete(st *State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.Step = StepCompleted
	st.Status = StatusCompleted
	st.StepStartedAt[StepCompleted] = time.Now()
	st.FinishedAt = time.Now()
}

func (o *Orchestrator) setStep(st *State, step Step) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.Step = step
	st.StepStartedAt[step] = time.Now()
}

func (o *Orchestrator) currentStep(st *State) Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return st.Step
}

func (o *Orchestrator) setPartition(st *State, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.PartitionName = name
}

func (o *Orchestrator) setDroplet(st *State, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.DropletID = id
}

func (o *Orchestrator) cancelRequested(workspaceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancels[workspaceID]
}

func (o *Orchestrator) reportProgress(workspaceID string, step Step) {
	if o.progress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("Progress callback panicked",
				"workspace_id", workspaceID,
				"step", step,
				"panic", rec)
		}
	}()
	if err := o.progress(workspaceID, step); err != nil {
		slog.Warn("Progress callback failed",
			"workspace_id", workspaceID,
			"step", step,
			"error", err)
	}
}

func validateConfig(cfg Config) error {
	if cfg.Size == "" {
		return fmt.Errorf("validation failed: droplet size is required")
	}
	if cfg.Region == "" {
		return fmt.Errorf("validation failed: region is required")
	}
	for i, def := range cfg.Credentials {
		if def.Type == "" || def.Name == "" {
			return fmt.Errorf("validation failed: credential %d is missing type or name", i+1)
		}
	}
	for i, def := range cfg.Workflows {
		if def.Name == "" || len(def.Spec) == 0 {
			return fmt.Errorf("validation failed: workflow %d is missing name or spec", i+1)
		}
	}
	return nil
}

// substituteVariables rewrites {{name}} placeholders in the workflow
// spec. The definition is copied; templates are shared across tenants.
func substituteVariables(def workflow.Definition, vars map[string]string) workflow.Definition {
	if len(vars) == 0 || len(def.Spec) == 0 {
		return def
	}

	spec := string(def.Spec)
	for name, value := range vars {
		spec = strings.ReplaceAll(spec, "{{"+name+"}}", value)
	}
	def.Spec = []byte(spec)
	return def
}
