package heap

import (
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heapmgr/internal/utils"
	"github.com/vkngwrapper/heapmgr/memutils"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateSynchronized causes every public method of the heap to take an internal mutex, so that
	// the heap can be shared between goroutines. Without it, the consumer must guarantee the heap is
	// used from only one goroutine at a time.
	CreateSynchronized CreateFlags = 1 << iota
	// CreateEagerTailRetraction retracts the arena cursor whenever a release leaves the last block
	// free, even if no merge took place. Without it, the cursor only moves back when coalescing
	// merges a free run into the tail, so a lone free block at the end of the arena stays in the list.
	CreateEagerTailRetraction
	// CreateUncheckedRelease skips the live-allocation lookup in Release. Releasing a pointer that is
	// not currently allocated then silently corrupts the block list instead of returning
	// memutils.ErrInvalidPointer or memutils.ErrDoubleRelease. Pointers outside the arena are still
	// rejected.
	CreateUncheckedRelease
)

var createFlagsMapping = []struct {
	flag CreateFlags
	name string
}{
	{CreateSynchronized, "CreateSynchronized"},
	{CreateEagerTailRetraction, "CreateEagerTailRetraction"},
	{CreateUncheckedRelease, "CreateUncheckedRelease"},
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for _, mapping := range createFlagsMapping {
		if f&mapping.flag != 0 {
			names = append(names, mapping.name)
		}
	}

	return strings.Join(names, "|")
}

const (
	// DefaultBase is the address of the first arena byte when CreateOptions.Base is left at 0
	DefaultBase Pointer = 0x10000000

	defaultLiveIndexSize = 42
)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// Base is the address reported for the first byte of the arena. Pointers returned by Allocate are
	// Base plus an offset into the arena. It must be a multiple of memutils.WordSize. 0 selects DefaultBase.
	Base Pointer

	// MaxArenaSize bounds the number of bytes, headers included, that the arena may grow to. Allocations
	// that would grow the arena past it return memutils.ErrArenaExhausted. 0 means the arena may grow
	// until the 32-bit address space above Base runs out.
	MaxArenaSize uint32

	// InitialCapacity is the number of bytes to reserve for the arena's backing buffer up front
	InitialCapacity int
}

// New creates a new, empty Heap
//
// logger - Receives debug output for heap operations. It may be nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Heap, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base := options.Base
	if base == 0 {
		base = DefaultBase
	}

	err := memutils.CheckAligned(uint32(base), memutils.WordSize, "CreateOptions.Base")
	if err != nil {
		return nil, err
	}

	limit := uint32(math.MaxUint32 - base)
	if options.MaxArenaSize != 0 && options.MaxArenaSize < limit {
		limit = options.MaxArenaSize
	}

	if limit < HeaderSize {
		return nil, errors.Wrapf(memutils.ErrArenaExhausted, "an arena at base %#x bounded to %d bytes cannot hold a single block header", base, limit)
	}

	if options.InitialCapacity < 0 {
		return nil, errors.Newf("CreateOptions.InitialCapacity must not be negative, but was %d", options.InitialCapacity)
	}

	capacity := options.InitialCapacity
	if uint64(capacity) > uint64(limit) {
		capacity = int(limit)
	}

	h := &Heap{
		logger:     logger,
		flags:      options.Flags,
		mutex:      utils.OptionalMutex{UseMutex: options.Flags&CreateSynchronized != 0},
		base:       base,
		limit:      limit,
		arena:      make([]byte, 0, capacity),
		firstBlock: noBlock,
		lastBlock:  noBlock,
		live:       swiss.NewMap[Pointer, uint32](defaultLiveIndexSize),
	}

	logger.Debug("Heap::New",
		slog.String("Flags", options.Flags.String()),
		slog.Uint64("Base", uint64(base)),
		slog.Uint64("Limit", uint64(limit)))

	return h, nil
}
