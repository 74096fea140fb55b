// Package transcribe backs ai.Transcriber with Amazon Transcribe,
// grounded in the original ai_services.py's lazily-built transcribe
// client and the TRANSCRIBE_LANGUAGE config knob.
package transcribe

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/transcribeservice"
	"github.com/aws/aws-sdk-go/service/transcribeservice/transcribeserviceiface"

	aiport "github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/common"
)

// Client backs ai.Transcriber with StartTranscriptionJob.
type Client struct {
	api    transcribeserviceiface.TranscribeServiceAPI
	bucket string
}

func New(sess *session.Session, bucket string) *Client {
	return &Client{api: transcribeservice.New(sess), bucket: bucket}
}

func (c *Client) StartJob(ctx context.Context, jobName, blobKey, languageCode string) error {
	mediaURI := fmt.Sprintf("s3://%s/%s", c.bucket, blobKey)
	_, err := c.api.StartTranscriptionJobWithContext(ctx, &transcribeservice.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		LanguageCode:         aws.String(languageCode),
		Media:                &transcribeservice.Media{MediaFileUri: aws.String(mediaURI)},
	})
	if err != nil {
		return common.Wrap(common.TransientExternal, err, "start transcription job failed")
	}
	return nil
}

var _ aiport.Transcriber = (*Client)(nil)
