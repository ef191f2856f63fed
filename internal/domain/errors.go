package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConfirmationConflict is returned when a confirm attempt targets a
	// pending record that is no longer open. The losing caller of a
	// concurrent confirm race sees this; no state changes on its behalf.
	ErrConfirmationConflict = errors.New("pending confirmation already decided")

	// ErrIndexOutOfRange is returned when a confirm index does not address
	// one of the stored candidates.
	ErrIndexOutOfRange = errors.New("candidate index out of range")
)
