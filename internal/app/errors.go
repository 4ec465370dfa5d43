package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound           = errors.New("not found")
	ErrPrivilegeRequired  = errors.New("privileged actor required")
	ErrHonorLimitExceeded = errors.New("monthly honor limit exceeded")
)
