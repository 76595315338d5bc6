package build

import (
	"context"
)

// StubToolchain returns a fixed result per phase and records the phases it ran.
type StubToolchain struct {
	Results map[string]*ToolchainResult // by phase; missing means exit code 0
	Calls   []string
}

func (tc *StubToolchain) result(phase string) (*ToolchainResult, error) {
	tc.Calls = append(tc.Calls, phase)
	if r, ok := tc.Results[phase]; ok {
		return r, nil
	}
	return &ToolchainResult{}, nil
}

func (tc *StubToolchain) InitProject(_ context.Context, _ string) (*ToolchainResult, error) {
	return tc.result("init")
}

func (tc *StubToolchain) Configure(_ context.Context, _ string) (*ToolchainResult, error) {
	return tc.result("configure")
}

func (tc *StubToolchain) Build(_ context.Context, _ string) (*ToolchainResult, error) {
	return tc.result("build")
}

type StubToolchains map[string]Toolchain

func (s StubToolchains) Lookup(version string) (Toolchain, bool) {
	tc, ok := s[version]
	return tc, ok
}

// StubStage returns Err, or panics with Panic when it is set.
type StubStage struct {
	Err   error
	Panic any
	Calls int
}

func (s *StubStage) Run(_ context.Context, _ *Build) error {
	s.Calls++
	if s.Panic != nil {
		panic(s.Panic)
	}
	return s.Err
}

// BlockingStage closes Started once it runs and then waits for ctx to be done.
type BlockingStage struct {
	Started chan struct{}
}

func (s *BlockingStage) Run(ctx context.Context, _ *Build) error {
	close(s.Started)
	<-ctx.Done()
	return ctx.Err()
}
