package heap

import (
	"context"
	"log/slog"
)

// mergeBlocks rescans the whole block list, folding each run of adjacent free blocks into the
// first block of the run. A run that reaches the end of the arena is retracted instead, which
// ends the scan.
func (h *Heap) mergeBlocks() {
	for offset := h.firstBlock; offset != noBlock; {
		left := h.block(offset)

		for left.IsFree() {
			rightOffset := h.nextOffset(left)
			if rightOffset == noBlock {
				break
			}

			right := h.block(rightOffset)
			if !right.IsFree() {
				break
			}

			left.size += right.size + HeaderSize
			h.writeBlock(left)

			h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Merged free blocks",
				slog.Uint64("Offset", uint64(left.offset)),
				slog.Uint64("AbsorbedOffset", uint64(right.offset)),
				slog.Uint64("BlockSize", uint64(left.size)))

			if h.nextOffset(left) == noBlock {
				h.retractTail(left)
				return
			}
		}

		offset = h.nextOffset(left)
	}

	if h.flags&CreateEagerTailRetraction != 0 && h.lastBlock != noBlock {
		tail := h.block(h.lastBlock)
		if tail.IsFree() {
			h.retractTail(tail)
		}
	}
}

// retractTail hands the free block at the end of the arena back to the arena by moving the
// cursor to its header and unlinking it
func (h *Heap) retractTail(tail block) {
	h.cursor = tail.offset
	h.arena = h.arena[:h.cursor]

	if tail.offset == h.firstBlock {
		h.firstBlock = noBlock
		h.lastBlock = noBlock
	} else {
		var b block
		for offset := h.firstBlock; offset != noBlock; offset = h.nextOffset(b) {
			b = h.block(offset)
		}
		h.lastBlock = b.offset
	}

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Retracted arena tail",
		slog.Uint64("Cursor", uint64(h.cursor)),
		slog.Uint64("ReleasedBytes", uint64(tail.size+HeaderSize)))
}
