package build

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknown is returned by admission for infrastructure failures.
	// Its message is shown to clients; the cause is only logged.
	ErrUnknown = errors.New("Unknown error occurred.")
)

// Step is the pipeline stage a build is currently at or queued for.
type Step string

const (
	StepDownload Step = "download"
	StepCompile  Step = "compile"
	StepUpload   Step = "upload"
	StepTidy     Step = "tidy"
)

// State is the status of a build's current step.
type State string

const (
	StateQueued  State = "queued"
	StateWorking State = "working"
	StateDone    State = "done"
	StateError   State = "error"
)

// JobType names a unit of work delivered by the queue.
// Every Step is a JobType; cleanup only runs after a failure.
type JobType string

const (
	JobDownload JobType = JobType(StepDownload)
	JobCompile  JobType = JobType(StepCompile)
	JobUpload   JobType = JobType(StepUpload)
	JobTidy     JobType = JobType(StepTidy)
	JobCleanup  JobType = "cleanup"
)

// Field is a single-valued build attribute that stores can write atomically.
type Field string

const (
	FieldStep  Field = "step"
	FieldState Field = "state"
	FieldError Field = "error"
)

// Timing event names.
const (
	EventCreated = "created"
	EventDone    = "done"
)

func startedEvent(s Step) string  { return string(s) + " started" }
func finishedEvent(s Step) string { return string(s) + " finished" }

// File is a remote source file and its path inside the build workspace.
type File struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Request is a build submission.
// Files is nil when the submission didn't include the field at all.
type Request struct {
	SDKVersion string `json:"sdkVersion"`
	Files      []File `json:"files"`
	UserToken  string `json:"userToken"`
	AppName    string `json:"appName"`
}

type Build struct {
	ID         uuid.UUID
	Step       Step
	State      State
	Error      string
	Timings    Timings
	Files      []File
	SDKVersion string
	AppName    string
}

// Status is the client-visible part of a Build.
type Status struct {
	Step  Step  `json:"step"`
	State State `json:"state"`
}

// Timings maps event names to when they happened.
type Timings map[string]time.Time

// Latest returns the greatest recorded time or the zero time.
func (t Timings) Latest() time.Time {
	var latest time.Time
	for _, v := range t {
		if v.After(latest) {
			latest = v
		}
	}
	return latest
}

// between returns the seconds from event a to event b.
// It reports false when either event is missing or the result is negative.
func (t Timings) between(a, b string) (float64, bool) {
	from, ok := t[a]
	if !ok {
		return 0, false
	}
	to, ok := t[b]
	if !ok {
		return 0, false
	}
	d := to.Sub(from)
	if d < 0 {
		return 0, false
	}
	return d.Seconds(), true
}
