package campaign

import "errors"

var (
	ErrNotFound           = errors.New("campaign not found")
	ErrNotSendable        = errors.New("campaign is paused, cancelled or already sent")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrEmptyAudience      = errors.New("campaign audience is empty")
	ErrDispatchInProgress = errors.New("campaign dispatch already in progress")
)
