// Package pebblesdk runs the Pebble SDK toolchain installed on the host.
//
// Every SDK version lives in <root>/PebbleSDK-<version>. A project is
// initialised with the SDK's create_pebble_project.py and compiled with
// the waf script the project ships with.
package pebblesdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/k11v/pblbuild/internal/build"
)

var ErrNotInstalled = errors.New("sdk is not installed")

var _ build.Toolchain = (*SDK)(nil)

type SDK struct {
	Version string // required
	Root    string // required
}

// Dir returns the install directory of the SDK.
func (s *SDK) Dir() string {
	return filepath.Join(s.Root, "PebbleSDK-"+s.Version)
}

// Probe reports whether the SDK is installed.
func (s *SDK) Probe() error {
	info, err := os.Stat(s.Dir())
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, s.Dir())
	} else if err != nil {
		return fmt.Errorf("pebblesdk: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotInstalled, s.Dir())
	}
	return nil
}

// InitProject links the SDK into the project directory.
func (s *SDK) InitProject(ctx context.Context, dir string) (*build.ToolchainResult, error) {
	return run(ctx, "",
		filepath.Join(s.Dir(), "Pebble", "tools", "create_pebble_project.py"),
		"--symlink-only",
		filepath.Join(s.Dir(), "Pebble", "sdk"),
		dir,
	)
}

func (s *SDK) Configure(ctx context.Context, dir string) (*build.ToolchainResult, error) {
	return run(ctx, dir, "./waf", "configure")
}

func (s *SDK) Build(ctx context.Context, dir string) (*build.ToolchainResult, error) {
	return run(ctx, dir, "./waf", "clean", "build")
}

// run runs name in dir and captures its output.
// A non-zero exit is reported in the result, not as an error.
func run(ctx context.Context, dir string, name string, args ...string) (*build.ToolchainResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	exitCode := 0
	err := cmd.Run()
	if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, fmt.Errorf("pebblesdk: %w", err)
	}

	return &build.ToolchainResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

var _ build.Toolchains = Set(nil)

// Set is the SDKs available to builds, keyed by version.
type Set map[string]*SDK

func (s Set) Lookup(version string) (build.Toolchain, bool) {
	sdk, ok := s[version]
	if !ok {
		return nil, false
	}
	return sdk, true
}

// Load probes every version under root and returns the installed ones.
// Versions that fail the probe are logged and left out.
func Load(root string, versions []string, logger *slog.Logger) Set {
	set := make(Set)
	for _, v := range versions {
		sdk := &SDK{Version: v, Root: root}
		if err := sdk.Probe(); err != nil {
			logger.Warn("sdk is not ok", "version", v, "err", err)
			continue
		}
		set[v] = sdk
	}
	return set
}
