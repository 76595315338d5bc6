package build

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownSDK = errors.New("unknown SDK")

// ExitError is a toolchain phase that exited with a non-zero code.
type ExitError struct {
	Phase    string
	ExitCode int
	Stderr   string
}

// Error returns the captured stderr of the phase.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with code %d", e.Phase, e.ExitCode)
}

// Compiler is the compile stage.
type Compiler struct {
	Workspaces *Workspaces // required
	Toolchains Toolchains  // required
}

func (c *Compiler) Run(ctx context.Context, b *Build) error {
	tc, ok := c.Toolchains.Lookup(b.SDKVersion)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownSDK, b.SDKVersion)
	}
	dir := c.Workspaces.Dir(b.ID)

	phases := []struct {
		name string
		run  func(context.Context, string) (*ToolchainResult, error)
	}{
		{"init", tc.InitProject},
		{"configure", tc.Configure},
		{"build", tc.Build},
	}
	for _, p := range phases {
		res, err := p.run(ctx, dir)
		if err != nil {
			return fmt.Errorf("build.Compiler: %s: %w", p.name, err)
		}
		if res.ExitCode != 0 {
			return &ExitError{Phase: p.name, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
	}
	return nil
}
