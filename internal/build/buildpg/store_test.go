package buildpg

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/pblbuild/internal/apppg/apppgtest"
	"github.com/k11v/pblbuild/internal/build"
)

func NewTestStore(tb testing.TB, ctx context.Context) *Store {
	tb.Helper()
	return NewStore(apppgtest.NewPool(tb, ctx))
}

func testBuild() *build.Build {
	return &build.Build{
		ID:      uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000"),
		Step:    build.StepDownload,
		State:   build.StateQueued,
		Timings: build.Timings{"created": time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC)},
		Files: []build.File{
			{URL: "https://example.com/main.c", Path: "src/main.c"},
			{URL: "https://example.com/appinfo.json", Path: "appinfo.json"},
		},
		SDKVersion: "1.12",
		AppName:    "My App",
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t, ctx)

	t.Run("creates and gets a build", func(t *testing.T) {
		b := testBuild()
		b.ID = uuid.New()

		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		got, err := store.GetBuild(ctx, b.ID)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := b; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("doesn't create a build twice", func(t *testing.T) {
		b := testBuild()
		b.ID = uuid.New()

		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		err := store.CreateBuild(ctx, b)
		if got, want := err, build.ErrAlreadyExists; !errors.Is(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("sets fields", func(t *testing.T) {
		b := testBuild()
		b.ID = uuid.New()
		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		for field, value := range map[build.Field]string{
			build.FieldStep:  "compile",
			build.FieldState: "error",
			build.FieldError: "wscript not found",
		} {
			if err := store.SetField(ctx, b.ID, field, value); err != nil {
				t.Fatalf("didn't want %q", err)
			}
		}

		got, err := store.GetBuild(ctx, b.ID)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got.Step != build.StepCompile || got.State != build.StateError || got.Error != "wscript not found" {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("appends a timing only once", func(t *testing.T) {
		b := testBuild()
		b.ID = uuid.New()
		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		first := time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC)
		second := first.Add(time.Hour)

		if err := store.AppendTiming(ctx, b.ID, "download started", first); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if err := store.AppendTiming(ctx, b.ID, "download started", second); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		got, err := store.GetBuild(ctx, b.ID)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := first; !got.Timings["download started"].Equal(want) {
			t.Fatalf("got %v, want %v", got.Timings["download started"], want)
		}
		if want := b.Timings["created"]; !got.Timings["created"].Equal(want) {
			t.Fatalf("got %v, want %v", got.Timings["created"], want)
		}
	})

	t.Run("returns not found for an unknown build", func(t *testing.T) {
		id := uuid.New()

		if _, err := store.GetBuild(ctx, id); !errors.Is(err, build.ErrNotFound) {
			t.Fatalf("got %v, want %v", err, build.ErrNotFound)
		}
		if err := store.SetField(ctx, id, build.FieldState, "done"); !errors.Is(err, build.ErrNotFound) {
			t.Fatalf("got %v, want %v", err, build.ErrNotFound)
		}
		if err := store.AppendTiming(ctx, id, "done", time.Now()); !errors.Is(err, build.ErrNotFound) {
			t.Fatalf("got %v, want %v", err, build.ErrNotFound)
		}
	})
}
