package stats

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

type stubMetric struct {
	Name  string
	Value float64
}

type StubBackend struct {
	Status int
	Err    error

	Counts []stubMetric
	Values []stubMetric
}

func (b *StubBackend) CountMetric(_ context.Context, name string, count int) (int, error) {
	b.Counts = append(b.Counts, stubMetric{Name: name, Value: float64(count)})
	return b.Status, b.Err
}

func (b *StubBackend) ValueMetric(_ context.Context, name string, value float64) (int, error) {
	b.Values = append(b.Values, stubMetric{Name: name, Value: value})
	return b.Status, b.Err
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	logs := new(bytes.Buffer)
	return slog.New(slog.NewTextHandler(logs, nil)), logs
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("prefixes stat names", func(t *testing.T) {
		backend := &StubBackend{Status: 200}
		r := &Recorder{Prefix: "pblbuild", Backends: []Backend{backend}}

		r.Count(ctx, "builds")
		r.Value(ctx, "total time", 3.5)

		if got, want := backend.Counts, []stubMetric{{"pblbuild builds", 1}}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := backend.Values, []stubMetric{{"pblbuild total time", 3.5}}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("sends to every backend", func(t *testing.T) {
		first, second := &StubBackend{Status: 200}, &StubBackend{Status: 200}
		r := &Recorder{Backends: []Backend{first, second}}

		r.Count(ctx, "compile failures")

		if len(first.Counts) != 1 || len(second.Counts) != 1 {
			t.Fatalf("got %v and %v, want one count each", first.Counts, second.Counts)
		}
		if got, want := first.Counts[0].Name, "compile failures"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("logs a fake stat without backends", func(t *testing.T) {
		logger, logs := newTestLogger()
		r := &Recorder{Prefix: "pblbuild", Logger: logger}

		r.Count(ctx, "builds")
		r.Value(ctx, "download time", 1)

		got := logs.String()
		if !strings.Contains(got, `msg="fake stat count" stat="pblbuild builds" count=1`) {
			t.Fatalf("got %q, want a fake count line", got)
		}
		if !strings.Contains(got, `msg="fake stat value" stat="pblbuild download time" value=1`) {
			t.Fatalf("got %q, want a fake value line", got)
		}
	})

	t.Run("logs a failed send", func(t *testing.T) {
		logger, logs := newTestLogger()
		r := &Recorder{
			Backends: []Backend{&StubBackend{Status: 500}, &StubBackend{Err: errors.New("connection refused")}},
			Logger:   logger,
		}

		r.Count(ctx, "builds")

		got := logs.String()
		if !strings.Contains(got, "status=500") {
			t.Fatalf("got %q, want a status line", got)
		}
		if !strings.Contains(got, `err="connection refused"`) {
			t.Fatalf("got %q, want an error line", got)
		}
	})
}
