package common

import uuid "github.com/hashicorp/go-uuid"

// NewID generates a fresh random identifier for a new Task, Assignment,
// Submission, Dispute, or Transaction row, using
// github.com/hashicorp/go-uuid the way node/client identifiers are
// generated elsewhere in this stack.
func NewID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		// GenerateUUID only fails if crypto/rand is exhausted; there is no
		// sane fallback that preserves uniqueness, so this is Fatal.
		panic(Wrap(Fatal, err, "generate id"))
	}
	return id
}
