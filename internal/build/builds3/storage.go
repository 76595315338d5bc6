// Package builds3 publishes build artifacts to S3-compatible object storage.
package builds3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/k11v/pblbuild/internal/build"
)

var ErrEntityTooLarge = errors.New("entity too large")

var _ build.BlobStore = (*Storage)(nil)

type Storage struct {
	client *s3.Client

	// uploadPartSize should be greater than or equal 5MB.
	// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
	uploadPartSize int
}

func NewStorage(client *s3.Client) *Storage {
	return &Storage{
		client:         client,
		uploadPartSize: 10 * 1024 * 1024, // 10MB
	}
}

// Put implements build.BlobStore.
// It returns once the object is visible to readers.
func (s *Storage) Put(ctx context.Context, params *build.BlobStorePutParams) error {
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = int64(s.uploadPartSize)
	})

	input := &s3.PutObjectInput{
		Bucket:      &params.Bucket,
		Key:         &params.Key,
		Body:        params.Body,
		ContentType: aws.String("application/octet-stream"),
	}
	if params.Public {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	_, err := uploader.Upload(ctx, input)
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			err = errors.Join(ErrEntityTooLarge, err)
		}
		return fmt.Errorf("builds3.Storage: %w", err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &params.Bucket,
		Key:    &params.Key,
	}, time.Minute)
	if err != nil {
		return fmt.Errorf("builds3.Storage: %w", err)
	}

	return nil
}
