package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/k11v/pblbuild/internal/apppg"
	"github.com/k11v/pblbuild/internal/apps3"
	"github.com/k11v/pblbuild/internal/build"
	"github.com/k11v/pblbuild/internal/build/buildpg"
	"github.com/k11v/pblbuild/internal/build/buildredis"
	"github.com/k11v/pblbuild/internal/build/builds3"
	"github.com/k11v/pblbuild/internal/pebblesdk"
	"github.com/k11v/pblbuild/internal/stats"
)

// NewLogger returns the process logger, text unless JSON is configured.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Development {
		opts.Level = slog.LevelDebug
	}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewStore connects to the configured record store.
// The returned func closes the connection.
func NewStore(ctx context.Context, cfg *StoreConfig) (build.Store, func(), error) {
	switch d := cfg.driver(); d {
	case StoreDriverPostgres:
		pool, err := apppg.NewPool(ctx, cfg.Postgres.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		return buildpg.NewStore(pool), pool.Close, nil
	case StoreDriverRedis:
		client, err := buildredis.NewClient(ctx, cfg.redisURL())
		if err != nil {
			return nil, nil, err
		}
		return buildredis.NewStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", d)
	}
}

// NewRecorder returns the metrics recorder and, when enabled, the Prometheus
// backend whose handler exposes the metrics.
func NewRecorder(cfg *StatsConfig, log *slog.Logger) (*stats.Recorder, *stats.Prometheus) {
	r := &stats.Recorder{
		Prefix: cfg.StatHatPrefix,
		Logger: log.With("component", "stats"),
	}

	if cfg.StatHatEnabled {
		r.Backends = append(r.Backends, &stats.StatHat{EZKey: cfg.StatHatEZKey})
	}

	var prometheus *stats.Prometheus
	if cfg.PrometheusEnabled {
		prometheus = stats.NewPrometheus(nil)
		r.Backends = append(r.Backends, prometheus)
	}

	return r, prometheus
}

// NewToolchains loads the configured SDK versions that are installed.
func NewToolchains(cfg *BuildConfig, log *slog.Logger) pebblesdk.Set {
	return pebblesdk.Load(cfg.SDKRoot, cfg.SDKVersions, log.With("component", "pebblesdk"))
}

func NewWorkspaces(cfg *BuildConfig) *build.Workspaces {
	return &build.Workspaces{Root: cfg.dir()}
}

type NewPipelineParams struct {
	Config   *Config        // required
	Logger   *slog.Logger   // required
	Store    build.Store    // required
	Queue    build.Queue    // required
	Recorder build.Recorder // required
}

// NewPipeline wires the stage executors into a pipeline.
func NewPipeline(params *NewPipelineParams) (*build.Pipeline, error) {
	cfg := params.Config

	s3Client, err := apps3.NewClient(cfg.S3.ConnectionString())
	if err != nil {
		return nil, err
	}

	workspaces := NewWorkspaces(&cfg.Build)
	remover := &build.Remover{Workspaces: workspaces}

	return &build.Pipeline{
		Store:    params.Store,
		Queue:    params.Queue,
		Recorder: params.Recorder,
		Stages: map[build.Step]build.Stage{
			build.StepDownload: &build.Downloader{
				Workspaces:   workspaces,
				MaxSize:      cfg.Build.MaxDownloadSize,
				TrustedHosts: cfg.Build.TrustedHosts,
				Concurrency:  cfg.Build.DownloadConcurrency,
			},
			build.StepCompile: &build.Compiler{
				Workspaces: workspaces,
				Toolchains: NewToolchains(&cfg.Build, params.Logger),
			},
			build.StepUpload: &build.Uploader{
				Workspaces: workspaces,
				BlobStore:  builds3.NewStorage(s3Client),
				Bucket:     cfg.S3.BucketName(),
			},
			build.StepTidy: remover,
		},
		Cleaner: remover,
		Logger:  params.Logger.With("component", "pipeline"),
	}, nil
}
