package build

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SpyStore is an in-memory Store that records every write.
// Like a real store, it refuses work once ctx is done.
type SpyStore struct {
	CreateBuildErr error
	SetFieldErr    error

	mu     sync.Mutex
	builds map[uuid.UUID]*Build
	Calls  []string
}

func (s *SpyStore) appendCall(format string, a ...any) {
	s.Calls = append(s.Calls, fmt.Sprintf(format, a...))
}

func (s *SpyStore) CreateBuild(ctx context.Context, b *Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCall("CreateBuild")
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.CreateBuildErr != nil {
		return s.CreateBuildErr
	}
	if s.builds == nil {
		s.builds = make(map[uuid.UUID]*Build)
	}
	if _, ok := s.builds[b.ID]; ok {
		return ErrAlreadyExists
	}
	s.builds[b.ID] = copyBuild(b)
	return nil
}

func (s *SpyStore) GetBuild(ctx context.Context, id uuid.UUID) (*Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := s.builds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBuild(b), nil
}

func (s *SpyStore) SetField(ctx context.Context, id uuid.UUID, field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCall("SetField %s=%s", field, value)
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.SetFieldErr != nil {
		return s.SetFieldErr
	}
	b, ok := s.builds[id]
	if !ok {
		return ErrNotFound
	}
	switch field {
	case FieldStep:
		b.Step = Step(value)
	case FieldState:
		b.State = State(value)
	case FieldError:
		b.Error = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func (s *SpyStore) AppendTiming(ctx context.Context, id uuid.UUID, event string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCall("AppendTiming %s", event)
	if err := ctx.Err(); err != nil {
		return err
	}
	b, ok := s.builds[id]
	if !ok {
		return ErrNotFound
	}
	if b.Timings == nil {
		b.Timings = Timings{}
	}
	if _, ok = b.Timings[event]; !ok {
		b.Timings[event] = t
	}
	return nil
}

// put stores b directly, bypassing call recording.
func (s *SpyStore) put(b *Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.builds == nil {
		s.builds = make(map[uuid.UUID]*Build)
	}
	s.builds[b.ID] = copyBuild(b)
}

func (s *SpyStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.builds)
}

func copyBuild(b *Build) *Build {
	c := *b
	c.Timings = maps.Clone(b.Timings)
	c.Files = slices.Clone(b.Files)
	return &c
}

type job struct {
	Type JobType
	ID   uuid.UUID
}

// SpyQueue records enqueued jobs.
type SpyQueue struct {
	EnqueueErr error

	// EnqueueErrs fails only the job types it names.
	EnqueueErrs map[JobType]error

	// OnEnqueue runs before a job is recorded.
	OnEnqueue func(j job)

	mu   sync.Mutex
	Jobs []job
}

func (q *SpyQueue) Enqueue(ctx context.Context, jt JobType, id uuid.UUID) error {
	if q.OnEnqueue != nil {
		q.OnEnqueue(job{Type: jt, ID: id})
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	if err := q.EnqueueErrs[jt]; err != nil {
		return err
	}
	q.Jobs = append(q.Jobs, job{Type: jt, ID: id})
	return nil
}

func (q *SpyQueue) count(jt JobType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.Jobs {
		if j.Type == jt {
			n++
		}
	}
	return n
}

// SpyRecorder records metrics.
type SpyRecorder struct {
	mu     sync.Mutex
	Counts []string
	Values map[string]float64
}

func (r *SpyRecorder) Count(_ context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts = append(r.Counts, name)
}

func (r *SpyRecorder) Value(_ context.Context, name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[name] = v
}
