package heap

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderSize is the number of bytes of bookkeeping that precede every payload in the arena:
	// one word for the payload size and one word for the block state
	HeaderSize uint32 = 8

	sizeWordOffset  = 0
	stateWordOffset = 4

	noBlock uint32 = math.MaxUint32
)

// BlockState indicates whether a block's payload is handed out to a caller
type BlockState uint32

const (
	// BlockFree indicates that the block can be reused by a later Allocate call
	BlockFree BlockState = iota
	// BlockUsed indicates that the block's payload belongs to a caller until it is released
	BlockUsed
)

var blockStateMapping = map[BlockState]string{
	BlockFree: "Free",
	BlockUsed: "Used",
}

func (s BlockState) String() string {
	return blockStateMapping[s]
}

// block is a decoded copy of a header in the arena. Changes are not visible to the heap
// until the block is passed back to writeBlock.
type block struct {
	offset uint32
	size   uint32
	state  BlockState
}

func (b block) IsFree() bool {
	return b.state == BlockFree
}

// end is the offset of the first byte after the block's payload, which is also the offset
// of the next block's header when there is one
func (b block) end() uint32 {
	return b.offset + HeaderSize + b.size
}

func (b block) payloadOffset() uint32 {
	return b.offset + HeaderSize
}

func (h *Heap) headerBytes(offset uint32) []byte {
	if offset > h.cursor || h.cursor-offset < HeaderSize {
		panic(fmt.Sprintf("block header at offset %d does not fit below the arena cursor at %d", offset, h.cursor))
	}
	return h.arena[offset : offset+HeaderSize : offset+HeaderSize]
}

func (h *Heap) block(offset uint32) block {
	header := h.headerBytes(offset)
	return block{
		offset: offset,
		size:   binary.LittleEndian.Uint32(header[sizeWordOffset:]),
		state:  BlockState(binary.LittleEndian.Uint32(header[stateWordOffset:])),
	}
}

func (h *Heap) writeBlock(b block) {
	header := h.headerBytes(b.offset)
	binary.LittleEndian.PutUint32(header[sizeWordOffset:], b.size)
	binary.LittleEndian.PutUint32(header[stateWordOffset:], uint32(b.state))
}

// nextOffset returns the header offset of the block after b in address order, or noBlock
// if b is the last block in the arena
func (h *Heap) nextOffset(b block) uint32 {
	next := b.end()
	if next >= h.cursor {
		return noBlock
	}
	return next
}

func (h *Heap) payload(b block) []byte {
	start := b.payloadOffset()
	end := b.end()
	if end > h.cursor || end < start {
		panic(fmt.Sprintf("block at offset %d has a payload of %d bytes that runs past the arena cursor at %d", b.offset, b.size, h.cursor))
	}
	return h.arena[start:end:end]
}
