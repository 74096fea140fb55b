// Package ses backs notify.Notifier with Amazon SES, grounded in the
// original withdraw_funds.py / process_payment.py's direct
// boto3.client('ses').send_email calls.
package ses

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/notify"
)

// Notifier sends mail via SES from a fixed source address.
type Notifier struct {
	api  sesiface.SESAPI
	from string
}

func New(sess *session.Session, from string) *Notifier {
	return &Notifier{api: ses.New(sess), from: from}
}

func (n *Notifier) Send(ctx context.Context, email notify.Email) error {
	_, err := n.api.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(email.To)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(email.Subject)},
			Body: &ses.Body{
				Text: &ses.Content{Data: aws.String(email.Body)},
			},
		},
	})
	if err != nil {
		return common.Wrap(common.TransientExternal, err, "ses send email failed")
	}
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
