package build

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Getter struct {
	Store Store // required
}

type GetterStatusParams struct {
	ID uuid.UUID
}

// Status returns the current step and state of a build.
func (g *Getter) Status(ctx context.Context, params *GetterStatusParams) (*Status, error) {
	b, err := g.Store.GetBuild(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("build.Getter: %w", err)
	}
	return &Status{Step: b.Step, State: b.State}, nil
}
