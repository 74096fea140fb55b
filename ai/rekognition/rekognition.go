// Package rekognition backs ai.ImageLabeler with Amazon Rekognition,
// grounded in the original ai_services.py's lazily-built rekognition
// client and the REKOGNITION_MIN_CONFIDENCE config knob.
package rekognition

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"

	aiport "github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/common"
)

// Client backs ai.ImageLabeler with Rekognition's DetectLabels.
type Client struct {
	api    rekognitioniface.RekognitionAPI
	bucket string
}

func New(sess *session.Session, bucket string) *Client {
	return &Client{api: rekognition.New(sess), bucket: bucket}
}

func (c *Client) DetectLabels(ctx context.Context, blobKey string, minConfidence float64, maxLabels int) ([]aiport.Label, error) {
	out, err := c.api.DetectLabelsWithContext(ctx, &rekognition.DetectLabelsInput{
		Image: &rekognition.Image{
			S3Object: &rekognition.S3Object{Bucket: aws.String(c.bucket), Name: aws.String(blobKey)},
		},
		MinConfidence: aws.Float64(minConfidence),
		MaxLabels:     aws.Int64(int64(maxLabels)),
	})
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "rekognition detect labels failed")
	}

	labels := make([]aiport.Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		parents := make([]string, 0, len(l.Parents))
		for _, p := range l.Parents {
			parents = append(parents, aws.StringValue(p.Name))
		}
		labels = append(labels, aiport.Label{
			Name:       aws.StringValue(l.Name),
			Confidence: aws.Float64Value(l.Confidence),
			Parents:    parents,
		})
	}
	return labels, nil
}

var _ aiport.ImageLabeler = (*Client)(nil)
