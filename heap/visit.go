package heap

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapmgr/memutils"
)

// Validate performs internal consistency checks on the block list. It walks every block, so it is
// linear in the number of blocks. When the heap is functioning correctly, it should not be possible
// for this method to return an error. Validate does not take the heap's mutex.
func (h *Heap) Validate() error {
	if len(h.arena) != int(h.cursor) {
		return errors.Errorf("the arena buffer holds %d bytes, but the cursor is at %d", len(h.arena), h.cursor)
	}

	if h.cursor > h.limit {
		return errors.Errorf("the cursor is at %d, past the arena limit of %d", h.cursor, h.limit)
	}

	if h.firstBlock == noBlock {
		if h.lastBlock != noBlock {
			return errors.Errorf("the block list is empty, but the last block is at offset %d", h.lastBlock)
		}
		if h.cursor != 0 {
			return errors.Errorf("the block list is empty, but the cursor is at %d", h.cursor)
		}
		if h.live.Count() != 0 {
			return errors.Errorf("the block list is empty, but %d allocations are live", h.live.Count())
		}
		return nil
	}

	if h.firstBlock != 0 {
		return errors.Errorf("the first block should have an offset of 0, but instead it has an offset of %d", h.firstBlock)
	}

	var allocCount int
	var prev block
	hasPrev := false
	offset := h.firstBlock

	for {
		if offset > h.cursor || h.cursor-offset < HeaderSize {
			return errors.Errorf("block at offset %d does not leave room for its header below the cursor at %d", offset, h.cursor)
		}

		b := h.block(offset)

		if b.state != BlockFree && b.state != BlockUsed {
			return errors.Errorf("block at offset %d has an unknown state %d", b.offset, b.state)
		}

		if b.size%memutils.WordSize != 0 {
			return errors.Errorf("block at offset %d has a size of %d, which is not word aligned", b.offset, b.size)
		}

		if b.size > h.cursor-b.offset-HeaderSize {
			return errors.Errorf("block at offset %d has a size of %d, which runs past the cursor at %d", b.offset, b.size, h.cursor)
		}

		if hasPrev && prev.IsFree() && b.IsFree() {
			return errors.Errorf("adjacent blocks at offsets %d and %d are both free", prev.offset, b.offset)
		}

		if !b.IsFree() {
			allocCount++

			requested, live := h.live.Get(h.payloadPointer(b))
			if !live {
				return errors.Errorf("block at offset %d is used, but is not in the live allocation index", b.offset)
			}
			if requested > b.size {
				return errors.Errorf("block at offset %d has a size of %d, but %d bytes were requested", b.offset, b.size, requested)
			}
		}

		prev = b
		hasPrev = true

		next := h.nextOffset(b)
		if next == noBlock {
			if b.end() != h.cursor {
				return errors.Errorf("the last block ends at %d, but the cursor is at %d", b.end(), h.cursor)
			}
			break
		}
		offset = next
	}

	if prev.offset != h.lastBlock {
		return errors.Errorf("the last block is at offset %d, but the heap records offset %d", prev.offset, h.lastBlock)
	}

	if allocCount != h.live.Count() {
		return errors.Errorf("%d blocks are used, but the live allocation index holds %d", allocCount, h.live.Count())
	}

	return nil
}

// VisitAllRegions will call the provided callback once for each block in address order, passing
// the block's payload pointer, its payload size and whether it is free. Iteration stops at the
// first error returned by the callback, which is passed back to the caller.
func (h *Heap) VisitAllRegions(handleBlock func(p Pointer, size uint32, free bool) error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.visitAllRegions(handleBlock)
}

func (h *Heap) visitAllRegions(handleBlock func(p Pointer, size uint32, free bool) error) error {
	for offset := h.firstBlock; offset != noBlock; {
		b := h.block(offset)

		err := handleBlock(h.payloadPointer(b), b.size, b.IsFree())
		if err != nil {
			return err
		}

		offset = h.nextOffset(b)
	}

	return nil
}

// AllocationCount returns the number of allocations that have not been released
func (h *Heap) AllocationCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.live.Count()
}

// FreeRegionsCount returns the number of free blocks in the block list
func (h *Heap) FreeRegionsCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	count := 0
	_ = h.visitAllRegions(func(p Pointer, size uint32, free bool) error {
		if free {
			count++
		}
		return nil
	})

	return count
}

// SumFreeSize returns the number of payload bytes held by free blocks
func (h *Heap) SumFreeSize() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sum := 0
	_ = h.visitAllRegions(func(p Pointer, size uint32, free bool) error {
		if free {
			sum += int(size)
		}
		return nil
	})

	return sum
}

// IsEmpty will return true if the block list is empty, which means the cursor is back at the base
func (h *Heap) IsEmpty() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.firstBlock == noBlock
}

// AddStatistics sums this heap's statistics into the statistics currently present in the provided
// memutils.Statistics object
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.addStatistics(stats)
}

func (h *Heap) addStatistics(stats *memutils.Statistics) {
	stats.ArenaBytes += int(h.cursor)

	_ = h.visitAllRegions(func(p Pointer, size uint32, free bool) error {
		stats.BlockCount++
		stats.HeaderBytes += int(HeaderSize)
		if !free {
			stats.AllocationCount++
			stats.AllocationBytes += int(size)
		}
		return nil
	})

	h.live.Iter(func(p Pointer, requested uint32) bool {
		stats.RequestedBytes += int(requested)
		return false
	})
}

// AddDetailedStatistics sums this heap's statistics, including the size extremes of its used and
// free blocks, into the statistics currently present in the provided memutils.DetailedStatistics object
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats.ArenaBytes += int(h.cursor)

	_ = h.visitAllRegions(func(p Pointer, size uint32, free bool) error {
		stats.BlockCount++
		stats.HeaderBytes += int(HeaderSize)
		if free {
			stats.AddUnusedRange(int(size))
		} else {
			stats.AddAllocation(int(size))
		}
		return nil
	})

	h.live.Iter(func(p Pointer, requested uint32) bool {
		stats.RequestedBytes += int(requested)
		return false
	})
}
