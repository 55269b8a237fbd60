package heap

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapmgr/memutils"
)

// BlockJsonData populates a json object with summary information about the arena
func (h *Heap) BlockJsonData(json jwriter.ObjectState) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.blockJsonData(&json)
}

func (h *Heap) blockJsonData(json *jwriter.ObjectState) {
	var stats memutils.Statistics
	h.addStatistics(&stats)

	json.Name("Base").String(formatPointer(h.base))
	json.Name("Cursor").String(formatPointer(h.pointerAt(h.cursor)))
	json.Name("TotalBytes").Int(stats.ArenaBytes)
	json.Name("UnusedBytes").Int(stats.FreeBytes())
	json.Name("Blocks").Int(stats.BlockCount)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.BlockCount - stats.AllocationCount)
}

// PrintDetailedMap writes a json object describing the arena and every block in it, in address order
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	h.blockJsonData(&objState)

	arrayState := objState.Name("Suballocations").Array()
	defer arrayState.End()

	_ = h.visitAllRegions(func(p Pointer, size uint32, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Pointer").String(formatPointer(p))
		obj.Name("Size").Int(int(size))

		if free {
			obj.Name("Type").String(BlockFree.String())
			return nil
		}

		obj.Name("Type").String(BlockUsed.String())
		requested, _ := h.live.Get(p)
		obj.Name("RequestedSize").Int(int(requested))

		return nil
	})
}

func formatPointer(p Pointer) string {
	return "0x" + strconv.FormatUint(uint64(p), 16)
}
