package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/parleyhq/parley/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Archive stores rendered report documents using gocloud.dev/blob,
// supporting S3, GCS, Azure Blob Storage, and S3-compatible stores
type Archive struct {
	bucket *blob.Bucket
	prefix string
}

var ErrNotFound = errors.New("report not found")

func NewArchive(
	ctx context.Context, bucketURL, prefix string,
) (*Archive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &Archive{bucket: bucket, prefix: prefix}, nil
}

func (a *Archive) Get(
	ctx context.Context, userID api.UserID, reportID string,
) (*Document, error) {
	key := a.keyFor(userID, reportID)
	data, err := a.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (a *Archive) Put(ctx context.Context, doc *Document) error {
	key := a.keyFor(doc.UserID, doc.ID)
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, key, data, nil)
}

func (a *Archive) Delete(
	ctx context.Context, userID api.UserID, reportID string,
) error {
	key := a.keyFor(userID, reportID)
	err := a.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (a *Archive) Close() error {
	return a.bucket.Close()
}

func (a *Archive) keyFor(userID api.UserID, reportID string) string {
	return fmt.Sprintf("%s%s/%s.json", a.prefix, userID, reportID)
}
