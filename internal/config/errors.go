package config

import "errors"

// MaxChannel is the highest channel number accepted from the configuration.
const MaxChannel = 255

var (
	ErrMissingField     = errors.New("config: missing required field")
	ErrInvalidValue     = errors.New("config: invalid value")
	ErrNoTags           = errors.New("config: no tags configured")
	ErrNoCycles         = errors.New("config: no update cycles configured")
	ErrDuplicateChannel = errors.New("config: duplicate tag channel")
	ErrDuplicateCycle   = errors.New("config: duplicate update cycle id")
)
