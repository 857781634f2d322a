package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoItems          = errors.New("no items in request")
	ErrUnknownStrategy  = errors.New("unknown build strategy")
	ErrBuildReplaced    = errors.New("build replaced by newer request")
	ErrLLMUnavailable   = errors.New("llm collaborator unavailable")
	ErrStoreUnavailable = errors.New("store unavailable")
)
