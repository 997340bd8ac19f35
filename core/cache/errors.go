package cache

import "errors"

var (
	ErrInvalidConfig = errors.New("cache: invalid configuration")
	ErrSerialization = errors.New("cache: serialization failed")
	ErrOversizeEntry = errors.New("cache: entry exceeds max size")
)
