package build

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store persists build records.
// Implementations must make each SetField and AppendTiming call atomic.
type Store interface {
	CreateBuild(ctx context.Context, b *Build) error
	GetBuild(ctx context.Context, id uuid.UUID) (*Build, error)
	SetField(ctx context.Context, id uuid.UUID, field Field, value string) error

	// AppendTiming records event at t unless event is already recorded.
	AppendTiming(ctx context.Context, id uuid.UUID, event string, t time.Time) error
}

// Queue delivers jobs to workers.
type Queue interface {
	Enqueue(ctx context.Context, job JobType, id uuid.UUID) error
}

// HandlerFunc processes one job for a build.
// A non-nil error reports the job as failed to the queue.
type HandlerFunc func(ctx context.Context, id uuid.UUID) error

// Recorder receives pipeline metrics.
type Recorder interface {
	Count(ctx context.Context, name string)
	Value(ctx context.Context, name string, v float64)
}

// ToolchainResult is the outcome of a toolchain phase.
type ToolchainResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Toolchain compiles a project directory in three phases.
type Toolchain interface {
	InitProject(ctx context.Context, dir string) (*ToolchainResult, error)
	Configure(ctx context.Context, dir string) (*ToolchainResult, error)
	Build(ctx context.Context, dir string) (*ToolchainResult, error)
}

// Toolchains is the set of toolchains loaded at startup.
type Toolchains interface {
	Lookup(version string) (Toolchain, bool)
}

type BlobStorePutParams struct {
	Bucket string
	Key    string
	Body   io.Reader
	Public bool
}

type BlobStore interface {
	Put(ctx context.Context, params *BlobStorePutParams) error
}

// Stage does the work of a single pipeline step for a build.
type Stage interface {
	Run(ctx context.Context, b *Build) error
}
