// Package s3blob backs blob.Store with presigned S3 GetObject URLs,
// grounded line-for-line in the original s3_utils.py's
// generate_presigned_url (boto3 equivalent is the SDK's
// Request.Presign call).
package s3blob

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/crowdtask-platform/engine/blob"
	"github.com/crowdtask-platform/engine/common"
)

// Store presigns GetObject requests against a single configured bucket.
type Store struct {
	api    s3iface.S3API
	bucket string
}

func New(sess *session.Session, bucket string) *Store {
	return &Store{api: s3.New(sess), bucket: bucket}
}

func (s *Store) PresignedURL(ctx context.Context, key string, expirationSeconds int) (string, error) {
	if key == "" {
		return key, nil
	}
	req, _ := s.api.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)
	url, err := req.Presign(time.Duration(expirationSeconds) * time.Second)
	if err != nil {
		// Matches the original's fail-open behavior: return the bare key
		// rather than blocking the caller on a signing error.
		return key, common.Wrap(common.TransientExternal, err, "presign failed")
	}
	return url, nil
}

var _ blob.Store = (*Store)(nil)
