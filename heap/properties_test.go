package heap_test

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmgr/heap"
	"github.com/vkngwrapper/heapmgr/memutils"
)

type liveAllocation struct {
	p         heap.Pointer
	requested uint32
	fill      byte
}

// checkLiveAllocations verifies that every live allocation still holds the pattern written into
// it, that its block is word sized and large enough, and that no two payloads overlap
func checkLiveAllocations(t *testing.T, h *heap.Heap, live []liveAllocation) {
	type span struct {
		start, end heap.Pointer
	}
	spans := make([]span, 0, len(live))

	for _, alloc := range live {
		size, err := h.BlockSize(alloc.p)
		require.NoError(t, err)
		require.Zero(t, size%memutils.WordSize)
		require.GreaterOrEqual(t, size, alloc.requested)

		payload, err := h.Payload(alloc.p)
		require.NoError(t, err)
		for i := uint32(0); i < alloc.requested; i++ {
			require.Equal(t, alloc.fill, payload[i], "allocation at %#x was overwritten at byte %d", alloc.p, i)
		}

		spans = append(spans, span{alloc.p, alloc.p + heap.Pointer(size)})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		require.LessOrEqual(t, spans[i-1].end, spans[i].start)
	}
}

func runRandomSequence(t *testing.T, flags heap.CreateFlags, seed int64) *heap.Heap {
	rng := rand.New(rand.NewSource(seed))
	h := newHeap(t, heap.CreateOptions{Flags: flags})

	var live []liveAllocation
	fill := byte(0)

	for step := 0; step < 2000; step++ {
		if len(live) == 0 || rng.Intn(100) < 55 {
			requested := uint32(rng.Intn(300))

			p, err := h.Allocate(requested)
			require.NoError(t, err)
			require.NoError(t, h.Validate())

			fill++
			payload, err := h.Payload(p)
			require.NoError(t, err)
			for i := uint32(0); i < requested; i++ {
				payload[i] = fill
			}

			live = append(live, liveAllocation{p: p, requested: requested, fill: fill})
		} else {
			index := rng.Intn(len(live))
			require.NoError(t, h.Release(live[index].p))
			require.NoError(t, h.Validate())

			live[index] = live[len(live)-1]
			live = live[:len(live)-1]
		}

		if step%50 == 0 {
			checkLiveAllocations(t, h, live)
		}
	}

	checkLiveAllocations(t, h, live)
	require.Equal(t, len(live), h.AllocationCount())

	rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	for _, alloc := range live {
		require.NoError(t, h.Release(alloc.p))
		require.NoError(t, h.Validate())
	}

	require.Equal(t, 0, h.AllocationCount())

	return h
}

func TestRandomSequencePreservesInvariants(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		h := runRandomSequence(t, 0, seed)

		// Without eager retraction, a single block that was never merged can be left behind
		if !h.IsEmpty() {
			var stats memutils.Statistics
			h.AddStatistics(&stats)
			require.Equal(t, 1, stats.BlockCount)
			require.Equal(t, 0, stats.AllocationCount)
		}
	}
}

func TestRandomSequenceEagerRetractionEmptiesArena(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		h := runRandomSequence(t, heap.CreateEagerTailRetraction, seed)

		require.True(t, h.IsEmpty())
		require.Equal(t, h.Base(), h.Cursor())
	}
}

func TestSynchronizedHeap(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{Flags: heap.CreateSynchronized | heap.CreateEagerTailRetraction})

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(seed))
			var mine []heap.Pointer
			for step := 0; step < 500; step++ {
				if len(mine) == 0 || rng.Intn(2) == 0 {
					p, err := h.Allocate(uint32(rng.Intn(64)))
					if err != nil {
						t.Error(err)
						return
					}
					mine = append(mine, p)
				} else {
					if err := h.Release(mine[len(mine)-1]); err != nil {
						t.Error(err)
						return
					}
					mine = mine[:len(mine)-1]
				}
			}

			for _, p := range mine {
				if err := h.Release(p); err != nil {
					t.Error(err)
					return
				}
			}
		}(int64(worker))
	}
	wg.Wait()

	require.NoError(t, h.Validate())
	require.True(t, h.IsEmpty())
}
