package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")

	// ErrMisaligned is returned when an address or size that must sit on a word boundary does not
	ErrMisaligned error = errors.New("value is not word aligned")

	// ErrInvalidPointer is returned when a pointer does not match the payload of any block in the arena
	ErrInvalidPointer error = errors.New("pointer does not refer to a live allocation")

	// ErrDoubleRelease is returned when a pointer refers to a block that has already been released
	ErrDoubleRelease error = errors.New("block is already free")

	// ErrArenaExhausted is returned when growing the arena would pass its configured bound or the
	// end of the 32-bit address space
	ErrArenaExhausted error = errors.New("arena exhausted")
)
