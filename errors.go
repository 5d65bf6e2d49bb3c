package wabuilder

import "errors"

var (
	// ErrSaveInProgress is returned when Save is called while another save of the same session runs.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrVerificationFailed is returned when the webhook challenge does not match the record's token.
	ErrVerificationFailed = errors.New("webhook verification challenge failed")

	// ErrUnreadableFlow is returned when a save would overwrite a stored flow
	// document that cannot be decoded.
	ErrUnreadableFlow = errors.New("stored flow document is unreadable")

	// ErrInvalidInput is returned for an empty search query or a phone number without digits.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPayload is returned when a webhook body is not a WhatsApp notification.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)
