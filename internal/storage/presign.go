package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const uploadExpiry = time.Hour

// Uploader hands out presigned PUT URLs so browsers can push campaign
// attachments straight to object storage without proxying the bytes
// through the backend.
type Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewUploader(endpoint, accessKey, secretKey, bucket, publicURL string, secure bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// PresignUpload returns a one-hour PUT URL and the object key the
// caller must reference when submitting the campaign.
func (u *Uploader) PresignUpload(ctx context.Context, fileName string) (uploadURL, objectKey string, err error) {
	objectKey = ObjectKey(fileName)
	signed, err := u.client.PresignedPutObject(ctx, u.bucket, objectKey, uploadExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presigning upload for %q: %w", objectKey, err)
	}
	return signed.String(), objectKey, nil
}

// PublicURL resolves an object key to its public download URL.
func (u *Uploader) PublicURL(objectKey string) string {
	return u.publicURL + "/" + objectKey
}

// ObjectKey builds a collision-free key from a user-supplied file name.
// Spaces are replaced so the resulting URL needs no escaping.
func ObjectKey(fileName string) string {
	return uuid.NewString() + "-" + strings.ReplaceAll(fileName, " ", "_")
}
