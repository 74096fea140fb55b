// Package notify defines the best-effort outbound email port used by
// the Wallet and Payment Engine to confirm withdrawals and payouts,
// grounded in the original's direct boto3 ses.send_email calls.
package notify

import "context"

// Email is a single outbound notification.
type Email struct {
	To string
	Subject string
	Body string
}

// Notifier sends a single email. Callers treat failures as non-fatal
// — a notification is never allowed to roll back a
// ledger write.
type Notifier interface {
	Send(ctx context.Context, email Email) error
}
