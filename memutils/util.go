package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// WordSize is the granularity of every block size and payload address in the arena
const WordSize uint32 = 4

func CheckPow2[T constraints.Unsigned](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckAligned returns ErrMisaligned, wrapped with the value's name, if value is not a multiple of alignment.
func CheckAligned[T constraints.Unsigned](value T, alignment T, name string) error {
	if err := CheckPow2(alignment, "alignment"); err != nil {
		return err
	}

	if value&(alignment-1) != 0 {
		return cerrors.Wrapf(ErrMisaligned, "%s is %#x, alignment %d", name, value, alignment)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment. The second return value is false if
// the result does not fit in T.
func AlignUp[T constraints.Unsigned](value T, alignment T) (T, bool) {
	aligned := (value + alignment - 1) &^ (alignment - 1)
	return aligned, aligned >= value
}

func AlignDown[T constraints.Unsigned](value T, alignment T) T {
	return value &^ (alignment - 1)
}
