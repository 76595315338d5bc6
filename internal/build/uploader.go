package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
)

var ErrBuildFileNotExist = errors.New("build file does not exist")

// ArtifactKey is the blob key the compiled app of id is published under.
func ArtifactKey(id uuid.UUID) string {
	return id.String() + "/build.pbw"
}

// Uploader is the upload stage.
type Uploader struct {
	Workspaces *Workspaces // required
	BlobStore  BlobStore   // required
	Bucket     string      // required
}

func (u *Uploader) Run(ctx context.Context, b *Build) error {
	f, err := os.Open(u.Workspaces.ArtifactPath(b.ID))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBuildFileNotExist
	} else if err != nil {
		return fmt.Errorf("build.Uploader: %w", err)
	}
	defer f.Close()

	err = u.BlobStore.Put(ctx, &BlobStorePutParams{
		Bucket: u.Bucket,
		Key:    ArtifactKey(b.ID),
		Body:   f,
		Public: true,
	})
	if err != nil {
		return fmt.Errorf("build.Uploader: %w", err)
	}
	return nil
}
