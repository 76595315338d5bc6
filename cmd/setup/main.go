package main

import (
	"context"
	"fmt"
	"os"

	"github.com/k11v/pblbuild/internal/app"
	"github.com/k11v/pblbuild/internal/apppg"
	"github.com/k11v/pblbuild/internal/apps3"
)

func main() {
	if err := run(os.Environ()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(environ []string) error {
	ctx := context.Background()

	cfg, err := app.ParseConfig(environ)
	if err != nil {
		return err
	}

	if cfg.Store.Driver == "" || cfg.Store.Driver == app.StoreDriverPostgres {
		if err = apppg.Setup(cfg.Store.Postgres.ConnectionString()); err != nil {
			return err
		}
	}

	client, err := apps3.NewClient(cfg.S3.ConnectionString())
	if err != nil {
		return err
	}
	return apps3.Setup(ctx, client, cfg.S3.BucketName())
}
