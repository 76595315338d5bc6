// Package stats records pipeline counts and values in external metric backends.
package stats

import (
	"context"
	"log/slog"

	"github.com/k11v/pblbuild/internal/build"
)

// Backend receives metrics and reports an HTTP-like status for each.
type Backend interface {
	CountMetric(ctx context.Context, name string, count int) (status int, err error)
	ValueMetric(ctx context.Context, name string, value float64) (status int, err error)
}

var _ build.Recorder = (*Recorder)(nil)

// Recorder prefixes stat names and fans them out to its backends.
// Without backends it only logs what it would have sent.
// Failed sends are logged and never retried.
type Recorder struct {
	Prefix   string
	Backends []Backend
	Logger   *slog.Logger // default: slog.Default()
}

// Name returns the full name name is recorded under.
func (r *Recorder) Name(name string) string {
	if r.Prefix == "" {
		return name
	}
	return r.Prefix + " " + name
}

func (r *Recorder) Count(ctx context.Context, name string) {
	name = r.Name(name)
	if len(r.Backends) == 0 {
		r.logger().Info("fake stat count", "stat", name, "count", 1)
		return
	}
	for _, b := range r.Backends {
		status, err := b.CountMetric(ctx, name, 1)
		r.check(name, status, err)
	}
}

func (r *Recorder) Value(ctx context.Context, name string, v float64) {
	name = r.Name(name)
	if len(r.Backends) == 0 {
		r.logger().Info("fake stat value", "stat", name, "value", v)
		return
	}
	for _, b := range r.Backends {
		status, err := b.ValueMetric(ctx, name, v)
		r.check(name, status, err)
	}
}

func (r *Recorder) check(name string, status int, err error) {
	if err != nil {
		r.logger().Error("stat failed", "stat", name, "err", err)
		return
	}
	if status < 200 || status > 299 {
		r.logger().Error("stat failed", "stat", name, "status", status)
	}
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
