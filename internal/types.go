package internal

// TransferSource describes a remote resource to be written to disk
type TransferSource struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Ranges   bool   `json:"ranges"`
}

// TransferConfig contains configuration for a single transfer
type TransferConfig struct {
	OutputPath string
	Threads    int
	Quiet      bool
}

// SegmentInfo represents a byte range of a transfer handled by one worker
type SegmentInfo struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	// End is inclusive, -1 when the size of the resource is unknown
	End int64 `json:"end"`
}
