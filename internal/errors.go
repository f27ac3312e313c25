package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when a construction parameter is outside its supported range.
	ErrConfig = errors.New("invalid sketch configuration")
	// ErrFormat is returned when a serialized image is malformed, truncated or of an unknown version.
	ErrFormat = errors.New("invalid sketch image")
	// ErrSeedMismatch is returned when sketches built with different hash seeds meet.
	ErrSeedMismatch = errors.New("incompatible seed hashes")
	// ErrAllocation is returned when an image asks for more memory than its configuration allows.
	ErrAllocation = errors.New("sketch allocation refused")
)

func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func Formatf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

func SeedMismatchf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSeedMismatch, fmt.Sprintf(format, args...))
}

func Allocationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAllocation, fmt.Sprintf(format, args...))
}
