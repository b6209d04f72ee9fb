package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/dag"
	"github.com/tombee/stepflow/pkg/workflow/ref"
)

// DefaultParallelConcurrency bounds how many steps of one level run at
// once.
const DefaultParallelConcurrency = 4

// retryBackoffMs is the delay before re-driving an execution after a
// stuck step claim.
const retryBackoffMs = 2_000

// OutcomeStatus summarizes one drive of an execution.
type OutcomeStatus string

const (
	// OutcomeCompleted means the execution reached success.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeError means the execution failed terminally, or a stuck step
	// aborted this drive pending a retry delivery.
	OutcomeError OutcomeStatus = "error"
	// OutcomeCancelled means cancellation was observed at a gate.
	OutcomeCancelled OutcomeStatus = "cancelled"
	// OutcomeWaitingForSignal means the execution is parked on a signal.
	OutcomeWaitingForSignal OutcomeStatus = "waiting_for_signal"
	// OutcomeDurableSleep means the execution is parked on a timer.
	OutcomeDurableSleep OutcomeStatus = "durable_sleep"
)

// Outcome is the result of driving an execution once.
type Outcome struct {
	ExecutionID string
	Status      OutcomeStatus
	Output      any
	Err         error
}

// Executor drives whole executions: it claims the execution, analyzes
// the step DAG, schedules each dependency level with bounded
// parallelism, applies conditional skips, and writes the terminal row.
// Driving is idempotent; a crashed or duplicated drive converges through
// the step checkpoints.
type Executor struct {
	store       Store
	steps       *StepExecutor
	bus         Bus
	clock       Clock
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

// New creates an executor.
func New(store Store, steps *StepExecutor, bus Bus, clock Clock) *Executor {
	return &Executor{
		store:       store,
		steps:       steps,
		bus:         bus,
		clock:       clock,
		logger:      slog.Default(),
		tracer:      otel.Tracer("stepflow/engine"),
		concurrency: DefaultParallelConcurrency,
	}
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// WithParallelConcurrency sets the per-level parallelism bound.
func (e *Executor) WithParallelConcurrency(n int) *Executor {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// Execute drives the execution as far as it can go right now.
func (e *Executor) Execute(ctx context.Context, executionID string) (*Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Execute",
		trace.WithAttributes(attribute.String("execution.id", executionID)))
	defer span.End()

	now := e.clock.Now()
	exec, err := e.store.ClaimExecution(ctx, executionID, now)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		// Claim lost: terminal, or already running. A running execution is
		// re-driven anyway; a parked wait resumes this way, and concurrent
		// drives are harmless because step claims serialize real work.
		current, err := e.store.GetExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case StatusSuccess:
			return &Outcome{ExecutionID: executionID, Status: OutcomeCompleted, Output: current.Output}, nil
		case StatusError:
			return &Outcome{ExecutionID: executionID, Status: OutcomeError}, nil
		case StatusCancelled:
			return &Outcome{ExecutionID: executionID, Status: OutcomeCancelled}, nil
		}
		exec = current
	} else {
		executionsStarted.Inc()
		e.appendLifecycleEvent(ctx, executionID, EventWorkflowStarted, "")
		e.logger.Info("execution claimed",
			"execution_id", executionID,
			"workflow_id", exec.WorkflowID)
	}

	outcome, err := e.drive(ctx, exec)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}
	span.SetAttributes(attribute.String("execution.outcome", string(outcome.Status)))
	return outcome, nil
}

func (e *Executor) drive(ctx context.Context, exec *Execution) (*Outcome, error) {
	refCtx := ref.NewContext(parseInput(exec.Input), nil)

	results, err := e.store.GetStepResults(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	skippedRoots := make(map[string]string)
	for _, r := range results {
		if !r.Completed() {
			continue
		}
		refCtx.SetOutput(r.StepID, r.Output)
		if IsSkippedOutput(r.Output) {
			skippedRoots[r.StepID] = skipReason(r.Output)
		}
	}

	analysis, err := dag.Analyze(exec.Steps)
	if err != nil {
		return e.finishError(ctx, exec, "", err)
	}

	completedSteps, skippedSteps := 0, 0
	lastStep := ""

	for _, group := range analysis.Groups {
		var runnable []workflow.Step
		resolver := ref.NewResolver(refCtx)

		for _, step := range group {
			if out, done := refCtx.StepOutputs[step.Name]; done {
				lastStep = step.Name
				if IsSkippedOutput(out) {
					skippedSteps++
				} else {
					completedSteps++
				}
				continue
			}

			if root, ok := analysis.BranchMembership[step.Name]; ok {
				if _, rootSkipped := skippedRoots[root]; rootSkipped {
					reason := fmt.Sprintf("branch %q skipped", root)
					if err := e.persistSkip(ctx, exec, step, reason, refCtx, skippedRoots); err != nil {
						return nil, err
					}
					skippedSteps++
					lastStep = step.Name
					continue
				}
			}

			if step.If != nil {
				res := resolver.EvaluateCondition(step.If)
				if len(res.Errors) > 0 {
					// Fail open: a condition that cannot be evaluated never
					// skips the step.
					e.logger.Warn("condition evaluation failed, running step",
						"execution_id", exec.ID,
						"step", step.Name,
						"errors", res.Errors)
				} else if !res.Satisfied {
					if err := e.persistSkip(ctx, exec, step, "condition evaluated to false", refCtx, skippedRoots); err != nil {
						return nil, err
					}
					skippedSteps++
					lastStep = step.Name
					continue
				}
			}

			runnable = append(runnable, step)
		}

		if len(runnable) == 0 {
			continue
		}

		levelErrs := e.runLevel(ctx, exec, runnable, refCtx)
		for _, step := range runnable {
			if out, ok := refCtx.StepOutputs[step.Name]; ok {
				lastStep = step.Name
				completedSteps++
				if step.If != nil && IsSkippedOutput(out) {
					skippedRoots[step.Name] = skipReason(out)
				}
			}
		}

		if len(levelErrs) > 0 {
			return e.classify(ctx, exec, levelErrs)
		}
	}

	output := map[string]any{
		"completedSteps": completedSteps,
		"skippedSteps":   skippedSteps,
		"lastStep":       lastStep,
		"message":        "workflow completed",
	}
	now := e.clock.Now()
	if _, err := e.store.UpdateExecution(ctx, exec.ID, ExecutionUpdate{
		Status:             StatusSuccess,
		SetOutput:          true,
		Output:             output,
		SetCompletedAt:     true,
		CompletedAtEpochMs: now,
	}, now); err != nil {
		return nil, err
	}
	e.appendLifecycleEvent(ctx, exec.ID, EventWorkflowCompleted, "")
	executionsCompleted.WithLabelValues(string(StatusSuccess)).Inc()
	e.logger.Info("execution completed",
		"execution_id", exec.ID,
		"completed_steps", completedSteps,
		"skipped_steps", skippedSteps)
	return &Outcome{ExecutionID: exec.ID, Status: OutcomeCompleted, Output: output}, nil
}

type stepOutcome struct {
	name   string
	output any
	err    error
}

// runLevel fans the level's steps out over a bounded worker set and
// merges their outputs into the context after the level joins.
func (e *Executor) runLevel(ctx context.Context, exec *Execution, steps []workflow.Step, refCtx *ref.Context) []error {
	sem := make(chan struct{}, e.concurrency)
	results := make(chan stepOutcome, len(steps))

	for _, step := range steps {
		sem <- struct{}{}
		go func(step workflow.Step) {
			defer func() { <-sem }()
			output, err := e.runStep(ctx, exec, step, refCtx)
			results <- stepOutcome{name: step.Name, output: output, err: err}
		}(step)
	}

	// Workers read refCtx while they run, so the context stays untouched
	// until every worker has reported.
	outcomes := make([]stepOutcome, 0, len(steps))
	for range steps {
		outcomes = append(outcomes, <-results)
	}

	var errs []error
	for _, r := range outcomes {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		refCtx.SetOutput(r.name, r.output)
		e.appendLifecycleEvent(ctx, exec.ID, EventStepCompleted, r.name)
	}
	return errs
}

// runStep resolves the step's input against the current context and runs
// it, expanding a for-each loop into per-item checkpoints.
func (e *Executor) runStep(ctx context.Context, exec *Execution, step workflow.Step, refCtx *ref.Context) (any, error) {
	ctx, span := e.tracer.Start(ctx, "engine.runStep",
		trace.WithAttributes(
			attribute.String("step.name", step.Name),
			attribute.String("step.action", string(step.Action))))
	defer span.End()

	if loop := step.LoopFor(); loop != nil {
		return e.runForEach(ctx, exec, step, loop, refCtx)
	}

	input := resolveInput(refCtx, step.Input, e.logger, exec.ID, step.Name)
	output, err := e.steps.Execute(ctx, exec, step, step.Name, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return output, nil
}

// runForEach iterates the step body over the resolved items array. Each
// iteration checkpoints under "name[i]", so a rerun resumes at the first
// incomplete item; the aggregate array is the parent step's output.
func (e *Executor) runForEach(ctx context.Context, exec *Execution, step workflow.Step, loop *workflow.ForClause, refCtx *ref.Context) (any, error) {
	resolver := ref.NewResolver(refCtx)
	resolved, errs := resolver.ResolveString(loop.Items)
	if len(errs) > 0 {
		return nil, &StepFailedError{
			ExecutionID: exec.ID,
			StepName:    step.Name,
			Message:     fmt.Sprintf("cannot resolve loop items %s: %s", loop.Items, errs[0].Reason),
		}
	}
	items, err := itemsArray(resolved)
	if err != nil {
		return nil, &StepFailedError{
			ExecutionID: exec.ID,
			StepName:    step.Name,
			Message:     fmt.Sprintf("loop items %s: %v", loop.Items, err),
		}
	}
	if loop.Limit > 0 && len(items) > loop.Limit {
		items = items[:loop.Limit]
	}

	outputs := make([]any, 0, len(items))
	for i, item := range items {
		iterCtx := refCtx.WithItem(item, i)
		input := resolveInput(iterCtx, step.Input, e.logger, exec.ID, step.Name)
		stepID := fmt.Sprintf("%s[%d]", step.Name, i)
		out, err := e.steps.Execute(ctx, exec, step, stepID, input)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}

	return e.writeParentResult(ctx, exec, step, outputs)
}

// writeParentResult records the aggregate array on the parent step's row.
func (e *Executor) writeParentResult(ctx context.Context, exec *Execution, step workflow.Step, outputs []any) (any, error) {
	now := e.clock.Now()
	claimed, err := e.store.ClaimStep(ctx, exec.ID, step.Name, step.EffectiveTimeoutMs(), now)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		existing, err := e.store.GetStepResult(ctx, exec.ID, step.Name)
		if err != nil {
			return nil, err
		}
		if existing.Completed() {
			return existing.Output, nil
		}
		return nil, &StuckStepError{ExecutionID: exec.ID, StepName: step.Name}
	}
	updated, err := e.store.UpdateStep(ctx, exec.ID, step.Name, StepUpdate{
		SetOutput:          true,
		Output:             any(outputs),
		SetCompletedAt:     true,
		CompletedAtEpochMs: now,
	})
	if err != nil {
		return nil, err
	}
	return updated.Output, nil
}

// persistSkip writes the skip marker as the step's terminal output and
// records it in the context and, for branch roots, the skipped set.
func (e *Executor) persistSkip(ctx context.Context, exec *Execution, step workflow.Step, reason string, refCtx *ref.Context, skippedRoots map[string]string) error {
	marker := SkippedOutput{Skipped: true, Reason: reason}.AsValue()
	now := e.clock.Now()
	claimed, err := e.store.ClaimStep(ctx, exec.ID, step.Name, step.EffectiveTimeoutMs(), now)
	if err != nil {
		return err
	}
	effective := any(marker)
	if claimed == nil {
		existing, err := e.store.GetStepResult(ctx, exec.ID, step.Name)
		if err != nil {
			return err
		}
		if existing.Completed() {
			effective = existing.Output
		}
	} else {
		updated, err := e.store.UpdateStep(ctx, exec.ID, step.Name, StepUpdate{
			SetOutput:          true,
			Output:             marker,
			SetCompletedAt:     true,
			CompletedAtEpochMs: now,
		})
		if err != nil {
			return err
		}
		effective = updated.Output
	}

	refCtx.SetOutput(step.Name, effective)
	if step.If != nil && IsSkippedOutput(effective) {
		skippedRoots[step.Name] = skipReason(effective)
	}
	e.logger.Info("step skipped",
		"execution_id", exec.ID,
		"step", step.Name,
		"reason", reason)
	return nil
}

// classify maps the level's errors to one outcome, most decisive first:
// cancellation, then terminal failure, then stuck, then waits.
func (e *Executor) classify(ctx context.Context, exec *Execution, errs []error) (*Outcome, error) {
	var stuck *StuckStepError
	var waitSignal *WaitingForSignalError
	var waitTimer *WaitingForTimerError
	var terminal error

	for _, err := range errs {
		var cancelled *ExecutionCancelledError
		if stderrors.As(err, &cancelled) {
			return e.finishCancelled(ctx, exec)
		}
		var s *StuckStepError
		if stderrors.As(err, &s) {
			stuck = s
			continue
		}
		var ws *WaitingForSignalError
		if stderrors.As(err, &ws) {
			waitSignal = ws
			continue
		}
		var wt *WaitingForTimerError
		if stderrors.As(err, &wt) {
			waitTimer = wt
			continue
		}
		if terminal == nil {
			terminal = err
		}
	}

	if terminal != nil {
		var failed *StepFailedError
		stepName := ""
		if stderrors.As(terminal, &failed) {
			stepName = failed.StepName
		}
		return e.finishError(ctx, exec, stepName, terminal)
	}

	if stuck != nil {
		// No terminal write: the claim window will lapse and a delayed
		// retry delivery re-drives the execution.
		if err := e.bus.Publish(ctx, Delivery{
			Type:      DeliveryExecutionRetry,
			Subject:   exec.ID,
			DeliverAt: e.clock.Now() + retryBackoffMs,
		}); err != nil {
			e.logger.Warn("failed to publish stuck-step retry",
				"execution_id", exec.ID,
				"step", stuck.StepName,
				"error", err)
		}
		return &Outcome{ExecutionID: exec.ID, Status: OutcomeError, Err: stuck}, nil
	}

	if waitSignal != nil {
		e.logger.Info("execution waiting for signal",
			"execution_id", exec.ID,
			"step", waitSignal.StepName,
			"signal", waitSignal.Signal)
		return &Outcome{ExecutionID: exec.ID, Status: OutcomeWaitingForSignal, Err: waitSignal}, nil
	}
	if waitTimer != nil {
		e.logger.Info("execution sleeping",
			"execution_id", exec.ID,
			"step", waitTimer.StepName,
			"wake_at_epoch_ms", waitTimer.WakeAtEpochMs)
		return &Outcome{ExecutionID: exec.ID, Status: OutcomeDurableSleep, Err: waitTimer}, nil
	}

	// Unreachable unless classify is called with no errors.
	return &Outcome{ExecutionID: exec.ID, Status: OutcomeError}, nil
}

func (e *Executor) finishError(ctx context.Context, exec *Execution, stepName string, cause error) (*Outcome, error) {
	errValue := map[string]any{"message": cause.Error()}
	if stepName != "" {
		errValue["step"] = stepName
	}
	now := e.clock.Now()
	if _, err := e.store.UpdateExecution(ctx, exec.ID, ExecutionUpdate{
		Status:             StatusError,
		SetError:           true,
		Error:              errValue,
		SetCompletedAt:     true,
		CompletedAtEpochMs: now,
	}, now); err != nil {
		return nil, err
	}
	e.appendLifecycleEvent(ctx, exec.ID, EventWorkflowCompleted, "")
	executionsCompleted.WithLabelValues(string(StatusError)).Inc()
	e.logger.Error("execution failed",
		"execution_id", exec.ID,
		"step", stepName,
		"error", cause)
	return &Outcome{ExecutionID: exec.ID, Status: OutcomeError, Err: cause}, nil
}

func (e *Executor) finishCancelled(ctx context.Context, exec *Execution) (*Outcome, error) {
	now := e.clock.Now()
	if _, err := e.store.UpdateExecution(ctx, exec.ID, ExecutionUpdate{
		SetCompletedAt:     true,
		CompletedAtEpochMs: now,
	}, now); err != nil {
		return nil, err
	}
	e.appendLifecycleEvent(ctx, exec.ID, EventWorkflowCompleted, "")
	executionsCompleted.WithLabelValues(string(StatusCancelled)).Inc()
	e.logger.Info("execution cancelled", "execution_id", exec.ID)
	return &Outcome{ExecutionID: exec.ID, Status: OutcomeCancelled}, nil
}

func (e *Executor) appendLifecycleEvent(ctx context.Context, executionID string, typ EventType, name string) {
	event := NewEvent(executionID, typ, name, nil, e.clock.Now())
	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.logger.Warn("failed to append lifecycle event",
			"execution_id", executionID,
			"type", typ,
			"error", err)
	}
}

// resolveInput resolves a step input best-effort: unresolved refs
// interpolate to empty and are logged, never fatal.
func resolveInput(refCtx *ref.Context, input any, logger *slog.Logger, executionID, stepName string) any {
	if input == nil {
		return nil
	}
	resolved, errs := ref.NewResolver(refCtx).ResolveAll(input)
	for _, rerr := range errs {
		logger.Warn("unresolved ref in step input",
			"execution_id", executionID,
			"step", stepName,
			"ref", rerr.Ref,
			"reason", rerr.Reason)
	}
	return resolved
}

// parseInput decodes a JSON-encoded string input into its value; any
// other shape passes through.
func parseInput(input any) any {
	s, ok := input.(string)
	if !ok {
		return input
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return input
	}
	return decoded
}

// itemsArray coerces a resolved loop-items value to an array. Tool
// outputs of the shape {content: [{text: "<json>"}]} unwrap to the JSON
// array inside the text block.
func itemsArray(v any) ([]any, error) {
	switch val := v.(type) {
	case []any:
		return val, nil
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(val), &arr); err != nil {
			return nil, fmt.Errorf("string does not decode to an array")
		}
		return arr, nil
	case map[string]any:
		content, ok := val["content"].([]any)
		if !ok || len(content) == 0 {
			return nil, fmt.Errorf("value is an object without a content block")
		}
		block, ok := content[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("content block has unexpected shape")
		}
		text, ok := block["text"].(string)
		if !ok {
			return nil, fmt.Errorf("content block has no text")
		}
		var arr []any
		if err := json.Unmarshal([]byte(text), &arr); err != nil {
			return nil, fmt.Errorf("content text does not decode to an array")
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("value of type %T is not an array", v)
	}
}
