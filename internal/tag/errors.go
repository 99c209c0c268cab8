package tag

import "errors"

var (
	ErrUnknownChannel = errors.New("tag: unknown channel")
	ErrBadValue       = errors.New("tag: value is not numeric or boolean")
)
