package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k11v/pblbuild/internal/app"
	"github.com/k11v/pblbuild/internal/build/buildamqp"
)

func main() {
	run := func() int {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := app.ParseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		log := app.NewLogger(cfg, os.Stderr)

		store, closeStore, err := app.NewStore(ctx, &cfg.Store)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer closeStore()

		queue := buildamqp.NewQueue(cfg.AMQP.ConnectionString())
		defer func() {
			_ = queue.Close()
		}()

		recorder, prometheus := app.NewRecorder(&cfg.Stats, log)
		if prometheus != nil {
			metricsServer := &http.Server{
				Addr:              cfg.AMQP.MetricsAddr(),
				Handler:           prometheus.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				log.Info("starting metrics server", "addr", metricsServer.Addr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", "err", err)
				}
			}()
			defer func() {
				_ = metricsServer.Close()
			}()
		}

		pipeline, err := app.NewPipeline(&app.NewPipelineParams{
			Config:   cfg,
			Logger:   log,
			Store:    store,
			Queue:    queue,
			Recorder: recorder,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		worker := &buildamqp.Worker{
			ConnectionString: cfg.AMQP.ConnectionString(),
			Handlers:         pipeline.Handlers(),
			PoolSize:         cfg.AMQP.WorkerPoolSize,
			Logger:           log.With("component", "worker"),
		}

		log.Info("starting worker")
		err = worker.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		return 0
	}
	os.Exit(run())
}
