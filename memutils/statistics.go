package memutils

import "math"

// Statistics is a cheap summary of an arena's block list
type Statistics struct {
	// BlockCount is the number of blocks, free or used, in the block list
	BlockCount int
	// AllocationCount is the number of used blocks
	AllocationCount int
	// ArenaBytes is the span of the arena between the first block and the arena cursor, headers included
	ArenaBytes int
	// HeaderBytes is the portion of ArenaBytes taken up by block headers
	HeaderBytes int
	// AllocationBytes is the sum of the payload sizes of all used blocks
	AllocationBytes int
	// RequestedBytes is the sum of the sizes callers asked for. It is never larger than AllocationBytes.
	RequestedBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.ArenaBytes = 0
	s.HeaderBytes = 0
	s.AllocationBytes = 0
	s.RequestedBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.ArenaBytes += other.ArenaBytes
	s.HeaderBytes += other.HeaderBytes
	s.AllocationBytes += other.AllocationBytes
	s.RequestedBytes += other.RequestedBytes
}

// FreeBytes is the payload space held by free blocks
func (s *Statistics) FreeBytes() int {
	return s.ArenaBytes - s.HeaderBytes - s.AllocationBytes
}

// DetailedStatistics extends Statistics with the size extremes of used and free blocks. Call Clear
// before the first Add so the minimums start out at math.MaxInt.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
