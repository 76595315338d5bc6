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
	"github.com/k11v/pblbuild/internal/build"
	"github.com/k11v/pblbuild/internal/build/buildamqp"
	"github.com/k11v/pblbuild/internal/server"
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
		if cfg.Build.UserToken == "" {
			_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", "missing PBL_USER_TOKEN")
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
		toolchains := app.NewToolchains(&cfg.Build, log)

		creator := &build.Creator{
			Validator:  &build.Validator{Toolchains: toolchains, UserToken: cfg.Build.UserToken},
			Workspaces: app.NewWorkspaces(&cfg.Build),
			Store:      store,
			Queue:      queue,
			Recorder:   recorder,
			Logger:     log.With("component", "creator"),
		}
		getter := &build.Getter{Store: store}

		params := &server.HandlerParams{
			Creator:     creator,
			Getter:      getter,
			Development: cfg.Development,
		}
		if prometheus != nil {
			params.Metrics = prometheus.Handler()
		}
		srv := server.New(&cfg.Server, log, params)

		serveErr := make(chan error, 1)
		go func() {
			log.Info("starting server", "addr", srv.Addr)
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case err = <-serveErr:
		case <-ctx.Done():
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		return 0
	}
	os.Exit(run())
}
