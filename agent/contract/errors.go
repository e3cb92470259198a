package contract

import "errors"

var (
	ErrValidation        = errors.New("tool arguments failed validation")
	ErrCapability        = errors.New("tool not permitted for role")
	ErrInvalidTransition = errors.New("invalid sales stage transition")
	ErrNotFound          = errors.New("vehicle not found")
	ErrAlreadySold       = errors.New("vehicle already sold")
	ErrDelegation        = errors.New("delegation failed")
	ErrBudgetExhausted   = errors.New("turn budget exhausted")
	ErrConversationBusy  = errors.New("conversation already processing a message")
	ErrNoResults         = errors.New("no research results")
	ErrInference         = errors.New("inference failed")
)
