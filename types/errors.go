package types

import "errors"

var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrInvalidTarget         = errors.New("invalid target")
	ErrInvoiceCreationFailed = errors.New("invoice creation failed")
	ErrBindingNotFound       = errors.New("invoice binding not found")
	ErrAlreadyConsumed       = errors.New("invoice binding already consumed")
	ErrSessionNotFound       = errors.New("session not found")
	ErrUpdateRejected        = errors.New("session update rejected")
	ErrInvalidSession        = errors.New("invalid session")
)
