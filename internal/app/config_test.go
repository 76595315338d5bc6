package app

import (
	"context"
	"log/slog"
	"reflect"
	"testing"

	"github.com/k11v/pblbuild/internal/build"
)

func TestParseConfig(t *testing.T) {
	t.Run("uses defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		if got, want := cfg.Build.MaxDownloadSize, int64(1<<20); got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := cfg.Build.TrustedHosts, []string{"gist.github.com"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := cfg.Build.SDKVersions, []string{"1.12"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := cfg.AMQP.WorkerPoolSize, 2; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := cfg.Store.driver(), StoreDriverPostgres; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := cfg.S3.BucketName(), "builder.pblweb.com"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("reads prefixed variables", func(t *testing.T) {
		cfg, err := ParseConfig([]string{
			"PBL_DEVELOPMENT=true",
			"PBL_SERVER_PORT=9000",
			"PBL_USER_TOKEN=secret",
			"PBL_TRUSTED_HOSTS=gist.github.com,*.example.com",
			"PBL_STORE_DRIVER=redis",
			"PBL_POSTGRES_DSN=postgres://pg/builds",
			"PBL_S3_BUCKET=artifacts",
			"PBL_STATHAT_PREFIX=pblbuild",
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		if !cfg.Development {
			t.Fatal("want development")
		}
		if got, want := cfg.Server.Port, 9000; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := cfg.Build.UserToken, "secret"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := cfg.Build.TrustedHosts, []string{"gist.github.com", "*.example.com"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := cfg.Store.driver(), StoreDriverRedis; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := cfg.Store.Postgres.ConnectionString(), "postgres://pg/builds"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := cfg.S3.BucketName(), "artifacts"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := cfg.Stats.StatHatPrefix, "pblbuild"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("rejects a malformed number", func(t *testing.T) {
		if _, err := ParseConfig([]string{"PBL_MAX_DOWNLOAD_SIZE=big"}); err == nil {
			t.Fatal("want error")
		}
	})
}

func TestNewStore(t *testing.T) {
	_, _, err := NewStore(context.Background(), &StoreConfig{Driver: "mysql"})
	if err == nil {
		t.Fatal("want error")
	}
}

func TestNewRecorder(t *testing.T) {
	log := slog.Default()

	r, prometheus := NewRecorder(&StatsConfig{}, log)
	if len(r.Backends) != 0 || prometheus != nil {
		t.Fatalf("got %d backends, want none", len(r.Backends))
	}

	r, prometheus = NewRecorder(&StatsConfig{StatHatEnabled: true, PrometheusEnabled: true, StatHatPrefix: "pblbuild"}, log)
	if len(r.Backends) != 2 || prometheus == nil {
		t.Fatalf("got %d backends, want 2", len(r.Backends))
	}
	if got, want := r.Name("builds"), "pblbuild builds"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewPipeline(t *testing.T) {
	cfg, err := ParseConfig([]string{"PBL_BUILD_DIR=" + t.TempDir(), "PBL_SDK_ROOT=" + t.TempDir()})
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}

	p, err := NewPipeline(&NewPipelineParams{Config: cfg, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}

	for _, step := range []string{"download", "compile", "upload", "tidy"} {
		if p.Stages[build.Step(step)] == nil {
			t.Fatalf("want a stage for %s", step)
		}
	}
	if len(p.Handlers()) != 5 {
		t.Fatalf("got %d handlers, want 5", len(p.Handlers()))
	}
}
