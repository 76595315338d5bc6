package build

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Creator admits build submissions.
type Creator struct {
	Validator  *Validator  // required
	Workspaces *Workspaces // required
	Store      Store       // required
	Queue      Queue       // required
	Recorder   Recorder    // required

	Logger *slog.Logger     // default: slog.Default()
	Now    func() time.Time // default: time.Now
}

// Create validates req, stores a new build queued for download and enqueues its first job.
// It returns a *ValidationError for bad submissions and ErrUnknown for any
// other failure, whose cause is logged instead of returned.
func (c *Creator) Create(ctx context.Context, req *Request) (*Build, error) {
	valid, err := c.Validator.Validate(req)
	if err != nil {
		return nil, err
	}

	log := c.logger()
	id := c.Workspaces.Allocate()
	log = log.With("build_id", id)

	if err = c.Workspaces.Create(id); err != nil {
		log.Error("didn't create workspace", "err", err)
		return nil, ErrUnknown
	}

	b := &Build{
		ID:         id,
		Step:       StepDownload,
		State:      StateQueued,
		Timings:    Timings{EventCreated: c.now()},
		Files:      valid.Files,
		SDKVersion: valid.SDKVersion,
		AppName:    valid.AppName,
	}
	if err = c.Store.CreateBuild(ctx, b); err != nil {
		log.Error("didn't create build", "err", err)
		c.removeWorkspace(log, b)
		return nil, ErrUnknown
	}

	if err = c.Queue.Enqueue(ctx, JobDownload, id); err != nil {
		log.Error("didn't enqueue download", "err", err)
		err = errors.Join(
			c.Store.SetField(ctx, id, FieldError, "didn't enqueue download"),
			c.Store.SetField(ctx, id, FieldState, string(StateError)),
		)
		if err != nil {
			log.Error("didn't mark build failed", "err", err)
		}
		c.removeWorkspace(log, b)
		return nil, ErrUnknown
	}

	c.Recorder.Count(ctx, "builds")
	log.Info("created build")
	return b, nil
}

func (c *Creator) removeWorkspace(log *slog.Logger, b *Build) {
	if err := c.Workspaces.Remove(b.ID); err != nil {
		log.Error("didn't remove workspace", "err", err)
	}
}

func (c *Creator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Creator) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return c.Now().UTC().Truncate(time.Millisecond)
}
