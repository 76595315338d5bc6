package buildpg

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/pblbuild/internal/build"
)

type row struct {
	ID         uuid.UUID     `db:"id"`
	Step       string        `db:"step"`
	State      string        `db:"state"`
	Error      string        `db:"error"`
	Timings    build.Timings `db:"timings"`
	Files      []build.File  `db:"files"`
	SDKVersion string        `db:"sdk_version"`
	AppName    string        `db:"app_name"`
}

func rowToBuild(collectableRow pgx.CollectableRow) (*build.Build, error) {
	collectedRow, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to build: %w", err)
	}

	switch build.State(collectedRow.State) {
	case build.StateQueued, build.StateWorking, build.StateDone, build.StateError:
	default:
		slog.Default().Warn(
			"unknown state encountered while reading build",
			"state", collectedRow.State,
			"build_id", collectedRow.ID,
		)
	}

	return &build.Build{
		ID:         collectedRow.ID,
		Step:       build.Step(collectedRow.Step),
		State:      build.State(collectedRow.State),
		Error:      collectedRow.Error,
		Timings:    collectedRow.Timings,
		Files:      collectedRow.Files,
		SDKVersion: collectedRow.SDKVersion,
		AppName:    collectedRow.AppName,
	}, nil
}
