package chat

import (
	"github.com/pkg/errors"
)

// Validation failures. These are returned synchronously, mutate no state,
// and never produce an in-history error message.
var (
	// ErrSendInFlight rejects a send while a previous one has not finalized.
	// There is no queueing; the caller simply retries later.
	ErrSendInFlight = errors.New("a send is already in flight")

	// ErrEmptyMessage rejects a send with no text and no usable attachment.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUploadInProgress rejects a send while a staged file is still
	// uploading.
	ErrUploadInProgress = errors.New("attachment upload in progress")

	// ErrAttachmentFailed rejects a send while a staged file is in error
	// state. The user must clear or retry the staging first; broken
	// attachments are never silently sent.
	ErrAttachmentFailed = errors.New("attachment upload failed")

	// ErrNoPrecedingUser rejects regeneration when the target assistant
	// message has no user message immediately before it.
	ErrNoPrecedingUser = errors.New("no preceding user message")

	// ErrNotUserMessage rejects editing a non-user message.
	ErrNotUserMessage = errors.New("not a user message")

	// ErrSessionExpired marks an invalid or expired auth session. Hard
	// failure of the current operation, never retried transparently.
	ErrSessionExpired = errors.New("session expired")

	// ErrReplyInFlight rejects starting a second reconciliation while a
	// placeholder is still active.
	ErrReplyInFlight = errors.New("a reply is already being reconciled")
)
