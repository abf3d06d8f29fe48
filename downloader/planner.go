package downloader

import (
	"fmt"

	"crunchy-cli/internal"
)

const (
	// MinSegmentSize is the minimum size for a transfer segment (1MB)
	MinSegmentSize = 1024 * 1024
	// MaxThreads is the maximum number of transfer workers allowed
	MaxThreads = 32
	// DefaultThreads is used when the caller does not ask for a worker count
	DefaultThreads = 4
)

// TransferPlanner splits a transfer into byte ranges
type TransferPlanner struct {
	minSegmentSize int64
	maxThreads     int
}

// NewTransferPlanner creates a new instance of TransferPlanner
func NewTransferPlanner() *TransferPlanner {
	return &TransferPlanner{
		minSegmentSize: MinSegmentSize,
		maxThreads:     MaxThreads,
	}
}

// PlanTransfer returns the segments of source. Sources of unknown size or
// without range support are fetched as a single segment.
func (p *TransferPlanner) PlanTransfer(source *internal.TransferSource, config *internal.TransferConfig) ([]internal.SegmentInfo, error) {
	if source == nil {
		return nil, fmt.Errorf("transfer source cannot be nil")
	}
	if config == nil {
		return nil, fmt.Errorf("transfer config cannot be nil")
	}

	if source.Size <= 0 || !source.Ranges {
		end := source.Size - 1
		if source.Size <= 0 {
			end = -1
		}
		return []internal.SegmentInfo{{Index: 0, Start: 0, End: end}}, nil
	}

	threads := p.determineOptimalThreads(source.Size, config.Threads)
	return p.CalculateSegments(source.Size, threads), nil
}

// CalculateSegments divides fileSize into up to threadCount ranges of at least MinSegmentSize
func (p *TransferPlanner) CalculateSegments(fileSize int64, threadCount int) []internal.SegmentInfo {
	if fileSize <= 0 {
		return []internal.SegmentInfo{}
	}

	if threadCount <= 0 {
		threadCount = 1
	}
	if threadCount > p.maxThreads {
		threadCount = p.maxThreads
	}

	if fileSize < p.minSegmentSize {
		return []internal.SegmentInfo{{Index: 0, Start: 0, End: fileSize - 1}}
	}

	segmentSize := fileSize / int64(threadCount)
	if segmentSize < p.minSegmentSize {
		threadCount = int(fileSize / p.minSegmentSize)
		if threadCount == 0 {
			threadCount = 1
		}
		segmentSize = fileSize / int64(threadCount)
	}

	segments := make([]internal.SegmentInfo, 0, threadCount)
	for i := 0; i < threadCount; i++ {
		start := int64(i) * segmentSize
		end := start + segmentSize - 1

		// Last segment gets any remaining bytes
		if i == threadCount-1 {
			end = fileSize - 1
		}

		segments = append(segments, internal.SegmentInfo{
			Index: i,
			Start: start,
			End:   end,
		})
	}

	return segments
}

func (p *TransferPlanner) determineOptimalThreads(fileSize int64, requestedThreads int) int {
	threads := requestedThreads
	if threads <= 0 {
		threads = DefaultThreads
	}
	if threads > p.maxThreads {
		threads = p.maxThreads
	}

	maxPossible := int(fileSize / p.minSegmentSize)
	if maxPossible == 0 {
		maxPossible = 1
	}
	if threads > maxPossible {
		threads = maxPossible
	}

	return threads
}
