package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspaces allocates build ids and their directories under Root.
type Workspaces struct {
	Root string // required
}

// Allocate returns a fresh random build id.
func (w *Workspaces) Allocate() uuid.UUID {
	return uuid.New()
}

func (w *Workspaces) Dir(id uuid.UUID) string {
	return filepath.Join(w.Root, id.String())
}

// ArtifactPath is where the toolchain leaves the compiled app for id.
func (w *Workspaces) ArtifactPath(id uuid.UUID) string {
	return filepath.Join(w.Dir(id), "build", id.String()+".pbw")
}

// Create makes the workspace directory for id. It is safe to call again.
func (w *Workspaces) Create(id uuid.UUID) error {
	if err := os.MkdirAll(w.Dir(id), 0o777); err != nil {
		return fmt.Errorf("build.Workspaces: %w", err)
	}
	return nil
}

// Remove deletes the workspace directory for id.
// Removing a workspace that doesn't exist is not an error.
func (w *Workspaces) Remove(id uuid.UUID) error {
	if err := os.RemoveAll(w.Dir(id)); err != nil {
		return fmt.Errorf("build.Workspaces: %w", err)
	}
	return nil
}

// Remover is the tidy and cleanup stage.
type Remover struct {
	Workspaces *Workspaces // required
}

func (r *Remover) Run(_ context.Context, b *Build) error {
	return r.Workspaces.Remove(b.ID)
}
