// Package heap implements a first-fit heap manager over a single growable arena.
//
// Every block in the arena is a HeaderSize-byte header followed by its payload. Blocks are kept
// in address order and exactly cover the arena, so the block list needs no separate links:
// the block after b starts where b's payload ends. Allocate reuses the first free block that is
// large enough, splitting it when the remainder can hold another header, and otherwise grows the
// arena at its cursor. Release marks a block free and coalesces runs of free blocks. When a run
// reaches the end of the arena, the cursor is retracted to the start of the run.
package heap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heapmgr/internal/utils"
	"github.com/vkngwrapper/heapmgr/memutils"
)

// Pointer is an address in the heap's arena, as handed out by Allocate. It is only meaningful
// to the Heap that produced it.
type Pointer uint32

// Heap is the heap manager. It owns the arena buffer and the block list that partitions it.
// A Heap must be created with New.
type Heap struct {
	logger *slog.Logger
	flags  CreateFlags
	mutex  utils.OptionalMutex

	base  Pointer
	limit uint32

	// arena always has a length equal to cursor
	arena      []byte
	cursor     uint32
	firstBlock uint32
	lastBlock  uint32

	// payload pointer of every used block to the size the caller requested
	live *swiss.Map[Pointer, uint32]
}

var _ memutils.Validatable = &Heap{}

func (h *Heap) pointerAt(offset uint32) Pointer {
	return h.base + Pointer(offset)
}

func (h *Heap) payloadPointer(b block) Pointer {
	return h.pointerAt(b.payloadOffset())
}

// headerOffsetFor maps a payload pointer back to the offset of the header in front of it. It
// fails if no header could fit there, but does not check that a block actually starts there.
func (h *Heap) headerOffsetFor(p Pointer) (uint32, bool) {
	if p < h.base {
		return 0, false
	}

	payloadOffset := uint32(p - h.base)
	if payloadOffset < HeaderSize || payloadOffset > h.cursor {
		return 0, false
	}

	return payloadOffset - HeaderSize, true
}

// Base returns the address of the first byte of the arena
func (h *Heap) Base() Pointer {
	return h.base
}

// Cursor returns the address of the first byte that has not been carved into a block
func (h *Heap) Cursor() Pointer {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.pointerAt(h.cursor)
}

// Allocate returns a pointer to a payload of at least size bytes. The payload is word aligned and
// does not overlap any other live allocation. Its contents are undefined.
//
// The only failure is memutils.ErrArenaExhausted, when no free block fits and the arena cannot grow
// by the rounded size plus a header.
func (h *Heap) Allocate(size uint32) (Pointer, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Allocate", slog.Uint64("Size", uint64(size)))

	realSize, ok := memutils.AlignUp(size, memutils.WordSize)
	if !ok {
		return 0, errors.Wrapf(memutils.ErrArenaExhausted, "a request for %d bytes cannot be rounded up to a word boundary", size)
	}

	memutils.DebugValidate(h)

	b, found := h.findFirstFit(realSize)
	if found {
		b = h.claim(b, realSize)
	} else {
		var err error
		b, err = h.grow(realSize)
		if err != nil {
			return 0, err
		}
	}

	p := h.payloadPointer(b)
	h.live.Put(p, size)

	memutils.DebugValidate(h)

	return p, nil
}

// findFirstFit walks the block list in address order and returns the first free block whose
// payload can hold size bytes
func (h *Heap) findFirstFit(size uint32) (block, bool) {
	for offset := h.firstBlock; offset != noBlock; {
		b := h.block(offset)
		if b.IsFree() && b.size >= size {
			return b, true
		}

		offset = h.nextOffset(b)
	}

	return block{}, false
}

// claim marks a free block used for an allocation of size bytes. If the block has room for
// another header after size bytes, the rest is split off into a new free block that takes the
// claimed block's place in the list; otherwise the whole block is handed out at its stated size.
func (h *Heap) claim(b block, size uint32) block {
	if b.size < HeaderSize || size > b.size-HeaderSize {
		b.state = BlockUsed
		h.writeBlock(b)

		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Reused whole free block",
			slog.Uint64("Offset", uint64(b.offset)),
			slog.Uint64("BlockSize", uint64(b.size)))

		return b
	}

	remainder := block{
		offset: b.offset + HeaderSize + size,
		size:   b.size - size - HeaderSize,
		state:  BlockFree,
	}
	h.writeBlock(remainder)

	if h.lastBlock == b.offset {
		h.lastBlock = remainder.offset
	}

	b.size = size
	b.state = BlockUsed
	h.writeBlock(b)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Split free block",
		slog.Uint64("Offset", uint64(b.offset)),
		slog.Uint64("BlockSize", uint64(b.size)),
		slog.Uint64("RemainderSize", uint64(remainder.size)))

	return b
}

// grow appends a new used block with a payload of size bytes at the arena cursor
func (h *Heap) grow(size uint32) (block, error) {
	required := size + HeaderSize
	if required < size || required > h.limit-h.cursor {
		return block{}, errors.Wrapf(memutils.ErrArenaExhausted,
			"growing the arena by %d bytes from %d would pass its limit of %d bytes", uint64(size)+uint64(HeaderSize), h.cursor, h.limit)
	}

	offset := h.cursor
	h.extend(required)

	b := block{
		offset: offset,
		size:   size,
		state:  BlockUsed,
	}
	h.writeBlock(b)

	if h.lastBlock == noBlock {
		h.firstBlock = offset
	}
	h.lastBlock = offset

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Grew arena",
		slog.Uint64("Offset", uint64(offset)),
		slog.Uint64("BlockSize", uint64(size)),
		slog.Uint64("Cursor", uint64(h.cursor)))

	return b, nil
}

// extend moves the arena cursor forward by n bytes, reallocating the backing buffer if it is out
// of capacity. n must already have been checked against the arena limit.
func (h *Heap) extend(n uint32) {
	newCursor := h.cursor + n
	if int(newCursor) > cap(h.arena) {
		newCapacity := 2 * cap(h.arena)
		if newCapacity < int(newCursor) {
			newCapacity = int(newCursor)
		}
		if uint64(newCapacity) > uint64(h.limit) {
			newCapacity = int(h.limit)
		}

		grown := make([]byte, h.cursor, newCapacity)
		copy(grown, h.arena)
		h.arena = grown
	}

	h.arena = h.arena[:newCursor]
	h.cursor = newCursor
}

// Release returns an allocation to the heap, making its block available to later Allocate
// calls, and coalesces free blocks.
//
// Unless the heap was created with CreateUncheckedRelease, p must be a pointer returned by
// Allocate that has not been released since: memutils.ErrDoubleRelease is returned for a pointer
// that was already released and memutils.ErrInvalidPointer for anything else. The heap is left
// unchanged when an error is returned.
func (h *Heap) Release(p Pointer) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Release", slog.Uint64("Pointer", uint64(p)))

	b, err := h.resolveRelease(p)
	if err != nil {
		return err
	}

	b.state = BlockFree
	h.writeBlock(b)
	h.live.Delete(p)

	if memutils.DebugEnabled {
		memutils.ScrubPayload(h.payload(b))
	}

	h.mergeBlocks()

	memutils.DebugValidate(h)

	return nil
}

func (h *Heap) resolveRelease(p Pointer) (block, error) {
	if h.flags&CreateUncheckedRelease != 0 {
		offset, ok := h.headerOffsetFor(p)
		if !ok {
			return block{}, errors.Wrapf(memutils.ErrInvalidPointer, "pointer %#x lies outside the arena", p)
		}
		return h.block(offset), nil
	}

	return h.liveBlock(p)
}

// liveBlock returns the used block whose payload starts at p
func (h *Heap) liveBlock(p Pointer) (block, error) {
	if h.live.Has(p) {
		offset, _ := h.headerOffsetFor(p)
		return h.block(offset), nil
	}

	// Not live, so work out whether it ever was
	offset, ok := h.headerOffsetFor(p)
	if ok {
		for current := h.firstBlock; current != noBlock; {
			b := h.block(current)
			if b.offset == offset {
				return block{}, errors.Wrapf(memutils.ErrDoubleRelease, "pointer %#x", p)
			}
			if b.offset > offset {
				break
			}

			current = h.nextOffset(b)
		}
	}

	return block{}, errors.Wrapf(memutils.ErrInvalidPointer, "pointer %#x", p)
}

// Payload returns the memory of the live allocation at p. The slice covers the block's whole
// payload, which may be longer than the size passed to Allocate. It shares memory with the arena
// and must not be used after the next call to Allocate, which may move the arena.
func (h *Heap) Payload(p Pointer) ([]byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	b, err := h.liveBlock(p)
	if err != nil {
		return nil, err
	}

	return h.payload(b), nil
}

// BlockSize returns the payload size of the block backing the live allocation at p
func (h *Heap) BlockSize(p Pointer) (uint32, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	b, err := h.liveBlock(p)
	if err != nil {
		return 0, err
	}

	return b.size, nil
}

// Clear instantly forgets every block and returns the arena cursor to the base. Every pointer handed
// out so far becomes invalid.
func (h *Heap) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Clear")

	h.arena = h.arena[:0]
	h.cursor = 0
	h.firstBlock = noBlock
	h.lastBlock = noBlock
	h.live = swiss.NewMap[Pointer, uint32](defaultLiveIndexSize)
}
