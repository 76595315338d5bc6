package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type ActionKind int

const (
	ActionTerminate ActionKind = iota
	ActionEnqueue
	ActionCleanup
)

// Action is what the pipeline does after a stage reports its outcome.
type Action struct {
	Kind ActionKind
	Next Step // set for ActionEnqueue
}

// Advance returns the action that follows step finishing.
// Any failure forks to cleanup. Success moves to the next step in order
// and ends the pipeline after tidy.
func Advance(step Step, failed bool) Action {
	if failed {
		return Action{Kind: ActionCleanup}
	}
	switch step {
	case StepDownload:
		return Action{Kind: ActionEnqueue, Next: StepCompile}
	case StepCompile:
		return Action{Kind: ActionEnqueue, Next: StepUpload}
	case StepUpload:
		return Action{Kind: ActionEnqueue, Next: StepTidy}
	default:
		return Action{Kind: ActionTerminate}
	}
}

// Pipeline runs stage jobs and moves builds between steps.
type Pipeline struct {
	Store    Store          // required
	Queue    Queue          // required
	Recorder Recorder       // required
	Stages   map[Step]Stage // required, one per step
	Cleaner  Stage          // required

	Logger *slog.Logger     // default: slog.Default()
	Now    func() time.Time // default: time.Now
}

func (p *Pipeline) RunDownload(ctx context.Context, id uuid.UUID) error {
	return p.runStage(ctx, StepDownload, id)
}

func (p *Pipeline) RunCompile(ctx context.Context, id uuid.UUID) error {
	return p.runStage(ctx, StepCompile, id)
}

func (p *Pipeline) RunUpload(ctx context.Context, id uuid.UUID) error {
	return p.runStage(ctx, StepUpload, id)
}

func (p *Pipeline) RunTidy(ctx context.Context, id uuid.UUID) error {
	return p.runStage(ctx, StepTidy, id)
}

// RunCleanup removes what a failed build left behind.
// Its own failure is logged and not reported.
func (p *Pipeline) RunCleanup(ctx context.Context, id uuid.UUID) error {
	err := p.runSafely(ctx, p.Cleaner, &Build{ID: id})
	if err != nil {
		p.logger().Error("didn't clean up", "build_id", id, "err", err)
	}
	return nil
}

// Handlers binds every job type to its run method.
func (p *Pipeline) Handlers() map[JobType]HandlerFunc {
	return map[JobType]HandlerFunc{
		JobDownload: p.RunDownload,
		JobCompile:  p.RunCompile,
		JobUpload:   p.RunUpload,
		JobTidy:     p.RunTidy,
		JobCleanup:  p.RunCleanup,
	}
}

func (p *Pipeline) runStage(ctx context.Context, step Step, id uuid.UUID) error {
	log := p.logger().With("build_id", id, "stage", step)

	b, err := p.Store.GetBuild(ctx, id)
	if err != nil {
		return fmt.Errorf("build.Pipeline: %w", err)
	}

	// A redelivered job may find its build already past this step or failed.
	if b.Step != step || b.State == StateDone || b.State == StateError {
		log.Warn("skipping stale job", "step", b.Step, "state", b.State)
		return nil
	}

	// Once the build is claimed, its record is written to the end
	// even if ctx is cancelled while the stage runs.
	recordCtx := context.WithoutCancel(ctx)

	if err = p.Store.SetField(recordCtx, id, FieldState, string(StateWorking)); err != nil {
		return p.fail(recordCtx, step, b, err)
	}
	if err = p.appendTiming(recordCtx, b, startedEvent(step)); err != nil {
		return p.fail(recordCtx, step, b, err)
	}

	stage, ok := p.Stages[step]
	if !ok {
		err = fmt.Errorf("no stage for %s", step)
	} else {
		err = p.runSafely(ctx, stage, b)
	}
	if err != nil {
		log.Error("stage failed", "err", err)
		return p.fail(recordCtx, step, b, err)
	}

	if err = p.advance(recordCtx, step, b); err != nil {
		log.Error("didn't advance build", "err", err)
		return p.fail(recordCtx, step, b, err)
	}
	return nil
}

// advance records a finished stage and moves the build on.
func (p *Pipeline) advance(ctx context.Context, step Step, b *Build) error {
	if err := p.Store.SetField(ctx, b.ID, FieldState, string(StateDone)); err != nil {
		return err
	}
	if err := p.appendTiming(ctx, b, finishedEvent(step)); err != nil {
		return err
	}

	action := Advance(step, false)
	switch action.Kind {
	case ActionEnqueue:
		// The record moves to the next step before its job is published
		// so the next worker never sees its own state overwritten.
		if err := p.Store.SetField(ctx, b.ID, FieldStep, string(action.Next)); err != nil {
			return err
		}
		if err := p.Store.SetField(ctx, b.ID, FieldState, string(StateQueued)); err != nil {
			return err
		}
		if err := p.Queue.Enqueue(ctx, JobType(action.Next), b.ID); err != nil {
			return err
		}
	case ActionTerminate:
		if err := p.appendTiming(ctx, b, EventDone); err != nil {
			return err
		}
		p.recordTimingStats(ctx, b.Timings)
		p.logger().Info("build done", "build_id", b.ID)
	}
	return nil
}

// fail records a failure and forks the build to cleanup.
// The returned error reports the failure to the queue.
func (p *Pipeline) fail(ctx context.Context, step Step, b *Build, stageErr error) error {
	if step != StepTidy {
		p.Recorder.Count(ctx, string(step)+" failures")
	}

	detail := stageErr.Error()
	if detail == "" {
		detail = "unknown error"
	}

	var errs []error
	if err := p.Store.SetField(ctx, b.ID, FieldError, detail); err != nil {
		errs = append(errs, err)
	}
	if err := p.Store.SetField(ctx, b.ID, FieldState, string(StateError)); err != nil {
		errs = append(errs, err)
	}
	if action := Advance(step, true); action.Kind == ActionCleanup {
		if err := p.Queue.Enqueue(ctx, JobCleanup, b.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger().Error("didn't record failure", "build_id", b.ID, "stage", step, "err", err)
	}

	return fmt.Errorf("build.Pipeline: %s: %w", step, stageErr)
}

// runSafely runs stage and turns a panic into an error.
func (p *Pipeline) runSafely(ctx context.Context, stage Stage, b *Build) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, b)
}

// appendTiming records event no earlier than any event already recorded for b.
func (p *Pipeline) appendTiming(ctx context.Context, b *Build, event string) error {
	t := p.now()
	if latest := b.Timings.Latest(); t.Before(latest) {
		t = latest
	}
	if err := p.Store.AppendTiming(ctx, b.ID, event, t); err != nil {
		return err
	}
	if b.Timings == nil {
		b.Timings = Timings{}
	}
	if _, ok := b.Timings[event]; !ok {
		b.Timings[event] = t
	}
	return nil
}

func (p *Pipeline) recordTimingStats(ctx context.Context, t Timings) {
	for _, s := range TimingStats(t) {
		p.Recorder.Value(ctx, s.Name, s.Seconds)
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return p.Now().UTC().Truncate(time.Millisecond)
}
