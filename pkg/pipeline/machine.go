// Package pipeline owns the restoration job lifecycle: the state
// machine, the per-job task that drives stages, and the registry of
// live jobs. State changes flow through exactly one place
// (Machine.Transition) so history and the audit trail can never
// disagree with the state itself.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/relightlabs/relight/pkg/asyncx"
	"github.com/relightlabs/relight/pkg/auditx"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/qc"
	"github.com/relightlabs/relight/pkg/ratex"
	"github.com/relightlabs/relight/pkg/retryx"
	"github.com/relightlabs/relight/pkg/workflowstore"
)

// DefaultRetention is how long a terminal job stays queryable before
// eviction.
const DefaultRetention = 15 * time.Minute

// DefaultStageTimeout bounds a single stage, including rate-limiter
// waits and the external call. An expired deadline is a transient
// stage error: it consumes retry budget when any remains and takes
// the fault edge otherwise.
const DefaultStageTimeout = 2 * time.Minute

// Stage step numbers as projected to the workflow datastore.
const (
	stepAnalyze  = 1
	stepPlan     = 2
	stepEdit     = 3
	stepValidate = 4
)

// MachineConfig wires the machine's collaborators. All fields except
// Retention are required.
type MachineConfig struct {
	Engine  *qc.Engine
	Retries *retryx.Manager
	Audit   *auditx.Log
	Store   workflowstore.Store
	Stager  Stager
	Logger  *logx.Logger

	// Retention is how long terminal jobs stay resident; zero means
	// DefaultRetention.
	Retention time.Duration

	// StageTimeout is the deadline for one stage execution; zero means
	// DefaultStageTimeout.
	StageTimeout time.Duration
}

// Machine is the top-level coordinator. One instance serves all jobs;
// each job's task is single-writer, the registry is the shared map.
type Machine struct {
	registry     *registry
	engine       *qc.Engine
	retries      *retryx.Manager
	audit        *auditx.Log
	store        workflowstore.Store
	stager       Stager
	logger       *logx.Logger
	retention    time.Duration
	stageTimeout time.Duration
	now          func() time.Time
}

func NewMachine(cfg MachineConfig) *Machine {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &Machine{
		registry:     newRegistry(),
		engine:       cfg.Engine,
		retries:      cfg.Retries,
		audit:        cfg.Audit,
		store:        cfg.Store,
		stager:       cfg.Stager,
		logger:       cfg.Logger,
		retention:    retention,
		stageTimeout: stageTimeout,
		now:          time.Now,
	}
}

// CreateJob accepts a restoration request and registers a QUEUED job.
func (m *Machine) CreateJob(ctx context.Context, params CreateJobParams) (Job, error) {
	correlationID, ok := kernel.CorrelationFromContext(ctx)
	if !ok {
		correlationID = kernel.NewCorrelationID()
	}

	now := m.now()
	job := &Job{
		ID:            kernel.NewJobID(),
		SessionID:     kernel.NewSessionID(),
		CorrelationID: correlationID,
		Mode:          params.Mode,
		State:         StateQueued,
		InputRef:      params.InputRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e := m.registry.add(job)

	m.project(ctx, func(ctx context.Context) {
		run := workflowstore.Run{
			ID:        job.ID,
			SessionID: job.SessionID,
			Status:    workflowstore.RunStatusRunning,
			Mode:      job.Mode.String(),
			StartedAt: now,
		}
		if err := m.store.UpsertRun(ctx, run); err != nil {
			m.logWarn(job.ID, "run projection write failed", err)
		}
		image := workflowstore.RunImage{
			RunID:     job.ID,
			Role:      workflowstore.ImageRoleInput,
			URL:       params.InputRef,
			CreatedAt: now,
		}
		if err := m.store.LinkImage(ctx, image); err != nil {
			m.logWarn(job.ID, "image projection write failed", err)
		}
	})

	m.logger.WithFields(logx.Fields{
		"job_id":     job.ID,
		"session_id": job.SessionID,
		"mode":       job.Mode,
	}).Info("Job created")

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.snapshot(), nil
}

// GetJob returns a snapshot of the job. No other component may
// observe job state except through this.
func (m *Machine) GetJob(jobID kernel.JobID) (Job, error) {
	e, ok := m.registry.get(jobID)
	if !ok {
		return Job{}, pipelineErrors.New(ErrJobNotFound).WithDetail("job_id", jobID.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.snapshot(), nil
}

// Transition moves the job to target if the state graph permits it,
// appends history, and emits a state_transition audit event. It is
// the only way job state may change. An impermissible target fails
// with PIPELINE_INVALID_TRANSITION and leaves the state untouched.
func (m *Machine) Transition(ctx context.Context, jobID kernel.JobID, target State, reason string) error {
	e, ok := m.registry.get(jobID)
	if !ok {
		return pipelineErrors.New(ErrJobNotFound).WithDetail("job_id", jobID.String())
	}

	e.mu.Lock()
	from := e.job.State
	if !from.CanTransitionTo(target) {
		e.mu.Unlock()
		return pipelineErrors.New(ErrInvalidTransition).
			WithDetail("job_id", jobID.String()).
			WithDetail("from", string(from)).
			WithDetail("to", string(target))
	}
	now := m.now()
	e.job.State = target
	e.job.UpdatedAt = now
	e.job.History = append(e.job.History, TransitionRecord{
		From:      from,
		To:        target,
		Timestamp: now,
		Reason:    reason,
	})
	sessionID := e.job.SessionID
	ctx = kernel.WithCorrelationID(ctx, e.job.CorrelationID)
	e.mu.Unlock()

	payload := map[string]any{
		auditx.KeyFromState: string(from),
		auditx.KeyToState:   string(target),
		auditx.KeyReason:    reason,
	}
	if err := m.audit.Record(ctx, sessionID, auditx.EventStateTransition, payload, nil); err != nil {
		m.logWarn(jobID, "audit append failed", err)
	}

	m.logger.WithFields(logx.Fields{
		"job_id": jobID,
		"from":   string(from),
		"to":     string(target),
		"reason": reason,
	}).Info("Job transition")

	if target.IsTerminal() {
		m.finalize(ctx, e, target)
	}
	return nil
}

// Cancel aborts a job from any non-terminal state: the job takes the
// fault edge with reason "cancelled" and the task's context is
// released so an in-flight rate-limiter wait or external call is
// abandoned rather than having its result ignored.
func (m *Machine) Cancel(ctx context.Context, jobID kernel.JobID) error {
	e, ok := m.registry.get(jobID)
	if !ok {
		return pipelineErrors.New(ErrJobNotFound).WithDetail("job_id", jobID.String())
	}

	e.mu.Lock()
	if e.job.State.IsTerminal() {
		e.mu.Unlock()
		return pipelineErrors.New(ErrJobTerminal).WithDetail("job_id", jobID.String())
	}
	cancel := e.cancel
	e.mu.Unlock()

	// Transition first so the terminal state and its reason are ours;
	// the task then observes a cancelled context and stands down
	// without taking its own fault edge.
	if err := m.Transition(ctx, jobID, StateFailed, ReasonCancelled); err != nil {
		return err
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Run is the per-job task: it drives the job through its stages until
// a terminal state. Suspension points are inside the stager (rate
// limiter waits and the external calls); everything here is
// non-blocking computation plus transitions.
func (m *Machine) Run(ctx context.Context, jobID kernel.JobID) error {
	e, ok := m.registry.get(jobID)
	if !ok {
		return pipelineErrors.New(ErrJobNotFound).WithDetail("job_id", jobID.String())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	sessionID := e.job.SessionID
	ctx = kernel.WithSessionID(kernel.WithCorrelationID(ctx, e.job.CorrelationID), sessionID)
	e.cancel = cancel
	e.mu.Unlock()

	if err := m.Transition(ctx, jobID, StateAnalyzing, "analysis started"); err != nil {
		return err
	}
	stageCtx, cancelStage := context.WithTimeout(ctx, m.stageTimeout)
	analysis, err := m.stager.Analyze(stageCtx, m.mustSnapshot(e))
	cancelStage()
	if err != nil {
		return m.stageFailed(ctx, e, "analyze", stepAnalyze, err)
	}
	m.recordStep(ctx, e, stepAnalyze, "analyze", workflowstore.StepStatusCompleted, stepUsage{})

	if err := m.Transition(ctx, jobID, StatePlanning, "analysis complete"); err != nil {
		return err
	}
	stageCtx, cancelStage = context.WithTimeout(ctx, m.stageTimeout)
	p, err := m.stager.BuildPlan(stageCtx, m.mustSnapshot(e), analysis)
	cancelStage()
	if err != nil {
		return m.stageFailed(ctx, e, "plan", stepPlan, err)
	}
	e.mu.Lock()
	e.job.Plan = &p
	e.mu.Unlock()
	m.recordStep(ctx, e, stepPlan, "plan", workflowstore.StepStatusCompleted, stepUsage{})

	if err := m.Transition(ctx, jobID, StateEditing, "plan ready"); err != nil {
		return err
	}
	return m.runRetryLoop(ctx, e)
}

// runRetryLoop drives EDITING→VALIDATING and the validating fork
// until the job reaches DECIDED. Transient stage errors inside the
// loop consume QC retry budget like any other retryable validation
// failure; everything else takes the fault edge.
func (m *Machine) runRetryLoop(ctx context.Context, e *entry) error {
	jobID := m.jobID(e)

	for {
		snap := m.mustSnapshot(e)

		stageCtx, cancelStage := context.WithTimeout(ctx, m.stageTimeout)
		edit, err := m.stager.Edit(stageCtx, snap, *snap.Plan)
		cancelStage()
		if err != nil {
			if m.consumeRetryForTransient(ctx, e, err) {
				continue
			}
			return m.stageFailed(ctx, e, "edit", stepEdit, err)
		}
		m.recordStep(ctx, e, stepEdit, "edit", workflowstore.StepStatusCompleted, stepUsage{
			tokensUsed:  edit.TokensUsed,
			outputBytes: int64(len(edit.OutputBytes)),
		})

		if err := m.Transition(ctx, jobID, StateValidating, "edit complete"); err != nil {
			return err
		}

		stageCtx, cancelStage = context.WithTimeout(ctx, m.stageTimeout)
		result, err := m.stager.Validate(stageCtx, m.mustSnapshot(e), edit)
		cancelStage()
		if err != nil {
			if m.consumeRetryForTransient(ctx, e, err) {
				if terr := m.Transition(ctx, jobID, StateEditing, "transient validation error"); terr != nil {
					return terr
				}
				continue
			}
			return m.stageFailed(ctx, e, "validate", stepValidate, err)
		}
		m.recordStep(ctx, e, stepValidate, "validate", workflowstore.StepStatusCompleted, stepUsage{
			inputBytes: int64(len(edit.OutputBytes)),
		})

		e.mu.Lock()
		e.job.QualityScore = result.OverallScore
		sessionID := e.job.SessionID
		mode := e.job.Mode
		retryCount := e.job.RetryCount
		e.mu.Unlock()

		decision := m.engine.Decide(sessionID, result, qc.DecideContext{
			Mode:       mode,
			RetryCount: retryCount,
		})
		m.auditDecision(ctx, sessionID, decision)

		switch decision.Action {
		case qc.ActionApprove:
			if err := m.Transition(ctx, jobID, StateDecided, decision.Reason); err != nil {
				return err
			}
			m.linkOutput(ctx, e, edit)
			return m.Transition(ctx, jobID, StateCompleted, decision.Reason)

		case qc.ActionReject:
			if err := m.Transition(ctx, jobID, StateDecided, decision.Reason); err != nil {
				return err
			}
			return m.Transition(ctx, jobID, StateFailed, decision.Reason)

		case qc.ActionRetry:
			if err := m.applyRetry(ctx, e, result, decision.RetryReasons); err != nil {
				return m.stageFailed(ctx, e, "retry", stepValidate, err)
			}
			if err := m.Transition(ctx, jobID, StateEditing, "retry: "+strings.Join(decision.RetryReasons, ",")); err != nil {
				return err
			}

		default:
			return m.stageFailed(ctx, e, "decide", stepValidate,
				pipelineErrors.NewWithMessage(ErrInvalidTransition, "unknown decision action"))
		}
	}
}

// applyRetry asks the retry manager for adjusted parameters and syncs
// the job's plan and retry count from the adjustment. The prior plan
// stays in the audit trail untouched.
func (m *Machine) applyRetry(ctx context.Context, e *entry, result qc.ValidationResult, reasons []string) error {
	e.mu.Lock()
	sessionID := e.job.SessionID
	prior := *e.job.Plan
	e.mu.Unlock()

	adj, err := m.retries.GenerateRetryParameters(sessionID, result, prior, reasons)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.job.Plan = &adj.Plan
	e.job.RetryCount = adj.Metadata.RetryAttempt
	e.mu.Unlock()

	payload := map[string]any{
		"retry_attempt":     adj.Metadata.RetryAttempt,
		"retry_reasons":     adj.Metadata.RetryReasons,
		"parameter_changes": adj.ParameterChanges,
		"plan_changes":      adj.PlanModifications,
		"strategic_changes": adj.StrategicChanges,
	}
	if aerr := m.audit.Record(ctx, sessionID, auditx.EventRetryAdjustment, payload, nil); aerr != nil {
		m.logWarn(m.jobID(e), "audit append failed", aerr)
	}
	return nil
}

// consumeRetryForTransient handles a stage error inside the retry
// loop: a transient failure with budget remaining is treated like a
// retryable validation failure and consumes one attempt. Returns
// false when the caller must take the fault edge.
func (m *Machine) consumeRetryForTransient(ctx context.Context, e *entry, stageErr error) bool {
	if ratex.Categorize(stageErr) == ratex.CategoryPermanent {
		return false
	}

	e.mu.Lock()
	sessionID := e.job.SessionID
	retryCount := e.job.RetryCount
	e.mu.Unlock()
	if retryCount >= m.engine.MaxRetries() {
		return false
	}

	payload := map[string]any{
		auditx.KeyError:  stageErr.Error(),
		auditx.KeyReason: "transient_stage_error",
	}
	if aerr := m.audit.Record(ctx, sessionID, auditx.EventStageError, payload, nil); aerr != nil {
		m.logWarn(m.jobID(e), "audit append failed", aerr)
	}

	err := m.applyRetry(ctx, e, qc.ValidationResult{}, []string{"transient_stage_error"})
	if err != nil {
		return false
	}
	return true
}

// stageFailed records the failure and takes the fault edge. If a
// concurrent Cancel already drove the job terminal, the original
// stage error is still returned.
func (m *Machine) stageFailed(ctx context.Context, e *entry, stage string, stepNumber int, stageErr error) error {
	e.mu.Lock()
	sessionID := e.job.SessionID
	terminal := e.job.State.IsTerminal()
	e.mu.Unlock()

	payload := map[string]any{
		auditx.KeyStepName: stage,
		auditx.KeyError:    stageErr.Error(),
	}
	if aerr := m.audit.Record(ctx, sessionID, auditx.EventStageError, payload, nil); aerr != nil {
		m.logWarn(m.jobID(e), "audit append failed", aerr)
	}
	m.recordStep(ctx, e, stepNumber, stage, workflowstore.StepStatusFailed, stepUsage{})

	if !terminal {
		if terr := m.Transition(ctx, m.jobID(e), StateFailed, ReasonStageFault); terr != nil {
			m.logWarn(m.jobID(e), "fault transition failed", terr)
		}
	}
	return stageErr
}

// finalize runs once, on the terminal transition: retry bookkeeping
// is dropped, the audit session is folded, the datastore projection
// gets its final row, and eviction is scheduled.
func (m *Machine) finalize(ctx context.Context, e *entry, target State) {
	e.mu.Lock()
	job := e.job.snapshot()
	e.mu.Unlock()

	m.retries.Forget(job.SessionID)

	summary, err := m.audit.FinalizeSession(job.SessionID)
	if err != nil {
		m.logWarn(job.ID, "audit finalize failed", err)
	}

	m.project(ctx, func(ctx context.Context) {
		finished := job.UpdatedAt
		status := workflowstore.RunStatusCompleted
		if target == StateFailed {
			status = workflowstore.RunStatusFailed
		}
		run := workflowstore.Run{
			ID:                job.ID,
			SessionID:         job.SessionID,
			Status:            status,
			Mode:              job.Mode.String(),
			StartedAt:         job.CreatedAt,
			FinishedAt:        &finished,
			StepsCompleted:    summary.StepsCompleted,
			FinalQualityScore: job.QualityScore,
			QCDecision:        lastReason(job.History),
		}
		if err := m.store.UpsertRun(ctx, run); err != nil {
			m.logWarn(job.ID, "run projection write failed", err)
		}
	})

	m.registry.scheduleEviction(job.ID, m.retention, func() {
		if err := m.audit.EvictSession(job.SessionID); err != nil {
			m.logWarn(job.ID, "audit eviction failed", err)
		}
	})
}

func (m *Machine) auditDecision(ctx context.Context, sessionID kernel.SessionID, d qc.Decision) {
	payload := map[string]any{
		"action":               string(d.Action),
		auditx.KeyReason:       d.Reason,
		auditx.KeyQualityScore: d.QualityScore,
		"confidence":           d.Confidence,
		"retry_reasons":        d.RetryReasons,
		"current_attempt":      d.CurrentAttempt,
	}
	if err := m.audit.Record(ctx, sessionID, auditx.EventQCDecision, payload, nil); err != nil {
		m.logger.WithError(err).Warn("audit append failed")
	}
}

// stepUsage carries the measurable cost of a stage into its projected
// row: model tokens spent and the image payload sizes that crossed the
// stage boundary. Stages without an edit result project zeroes.
type stepUsage struct {
	tokensUsed  int
	inputBytes  int64
	outputBytes int64
}

// recordStep projects one stage row; failures are logged, never
// surfaced, since the datastore is downstream of the audit trail.
func (m *Machine) recordStep(ctx context.Context, e *entry, number int, name string, status workflowstore.StepStatus, usage stepUsage) {
	e.mu.Lock()
	job := e.job.snapshot()
	e.mu.Unlock()

	now := m.now()
	step := workflowstore.RunStep{
		RunID:       job.ID,
		StepNumber:  number,
		Name:        name,
		Status:      status,
		StartedAt:   job.UpdatedAt,
		FinishedAt:  &now,
		RetryCount:  job.RetryCount,
		TokensUsed:  usage.tokensUsed,
		InputBytes:  usage.inputBytes,
		OutputBytes: usage.outputBytes,
	}
	if job.Plan != nil {
		step.ModelID = job.Plan.ModelID
		step.Temperature = job.Plan.Temperature
	}
	m.project(ctx, func(ctx context.Context) {
		if err := m.store.RecordStep(ctx, step); err != nil {
			m.logWarn(job.ID, "step projection write failed", err)
		}
	})
}

func (m *Machine) linkOutput(ctx context.Context, e *entry, edit EditResult) {
	jobID := m.jobID(e)
	now := m.now()
	stepNumber := stepEdit
	m.project(ctx, func(ctx context.Context) {
		image := workflowstore.RunImage{
			RunID:      jobID,
			StepNumber: &stepNumber,
			Role:       workflowstore.ImageRoleOutput,
			URL:        edit.OutputRef,
			CreatedAt:  now,
		}
		if err := m.store.LinkImage(ctx, image); err != nil {
			m.logWarn(jobID, "image projection write failed", err)
		}
	})
}

// project fires a datastore write detached from the job's
// cancellation: a cancelled job still gets its final rows.
func (m *Machine) project(ctx context.Context, fn func(context.Context)) {
	asyncx.DoCtx(context.WithoutCancel(ctx), fn)
}

func (m *Machine) mustSnapshot(e *entry) Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.snapshot()
}

func (m *Machine) jobID(e *entry) kernel.JobID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.ID
}

func (m *Machine) logWarn(jobID kernel.JobID, msg string, err error) {
	m.logger.WithField("job_id", jobID).WithError(err).Warn(msg)
}

func lastReason(history []TransitionRecord) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Reason
}
