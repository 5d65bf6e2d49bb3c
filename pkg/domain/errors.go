package domain

import "errors"

// ErrConfigNotFound is returned when a configuration record cannot be found by name.
var ErrConfigNotFound = errors.New("config not found")

// ErrMessageNotFound is returned when the message log has no matching entry.
var ErrMessageNotFound = errors.New("message not found")

// ErrInvalidMessage is returned when a template message cannot be decoded for its type.
var ErrInvalidMessage = errors.New("invalid template message")

// ErrDuplicateMessage is returned when a message with the same ID is already logged.
var ErrDuplicateMessage = errors.New("duplicate message")
