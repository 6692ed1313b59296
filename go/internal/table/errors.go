package table

import "errors"

var (
	ErrAlreadyHeld   = errors.New("cue already held")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidShot   = errors.New("invalid shot")
)
