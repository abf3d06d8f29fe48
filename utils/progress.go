package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"crunchy-cli/internal"
)

// ProgressTracker displays transfer progress and collects speed statistics.
// Add is safe to call from every segment worker.
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	startTime time.Time
	total     int64
	current   int64
	filename  string
	mutex     sync.RWMutex

	lastUpdate   time.Time
	lastBytes    int64
	speedSamples []float64
	maxSamples   int
}

// TransferSummary contains final transfer statistics
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	PeakSpeed    float64 // bytes per second
	Filename     string
}

// NewProgressTracker creates a progress tracker. No bar is drawn in quiet mode.
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:        quiet,
		startTime:    time.Now(),
		total:        total,
		lastUpdate:   time.Now(),
		speedSamples: make([]float64, 0),
		maxSamples:   10,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
		bar := pb.ProgressBarTemplate(tmpl).New(0).SetTotal(total)
		bar.SetWriter(os.Stderr)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", "Downloading: ")
		tracker.bar = bar.Start()
	}

	return tracker
}

// Add records n more transferred bytes
func (p *ProgressTracker) Add(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.update(p.current + n)
}

// Update sets the absolute progress and refreshes the speed samples
func (p *ProgressTracker) Update(current int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.update(current)
}

func (p *ProgressTracker) update(current int64) {
	now := time.Now()
	p.current = current

	if p.bar != nil {
		p.bar.SetCurrent(current)
	}

	timeDiff := now.Sub(p.lastUpdate).Seconds()
	if timeDiff > 0.1 {
		currentSpeed := float64(current-p.lastBytes) / timeDiff
		p.speedSamples = append(p.speedSamples, currentSpeed)
		if len(p.speedSamples) > p.maxSamples {
			p.speedSamples = p.speedSamples[1:]
		}
		p.lastUpdate = now
		p.lastBytes = current
	}
}

// SetFilename sets the filename reported in the summary
func (p *ProgressTracker) SetFilename(filename string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.filename = filename
}

// Finish completes the progress bar and returns the transfer summary
func (p *ProgressTracker) Finish() *TransferSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil {
		p.bar.Finish()
	}

	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	var peakSpeed float64
	for _, speed := range p.speedSamples {
		if speed > peakSpeed {
			peakSpeed = speed
		}
	}

	summary := &TransferSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
		PeakSpeed:    peakSpeed,
		Filename:     p.filename,
	}

	if !p.quiet {
		internal.LogInfo("Downloaded %s in %v (%s/s)", formatBytes(summary.TotalBytes),
			summary.TotalTime.Round(time.Millisecond), formatBytes(int64(summary.AverageSpeed)))
	}

	return summary
}

// Abort stops the progress bar without reporting a summary
func (p *ProgressTracker) Abort() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

// GetCurrentStats returns current transfer statistics
func (p *ProgressTracker) GetCurrentStats() (speed float64, eta time.Duration, percentage float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if len(p.speedSamples) > 0 {
		sampleCount := len(p.speedSamples)
		if sampleCount > 3 {
			sampleCount = 3
		}
		for i := len(p.speedSamples) - sampleCount; i < len(p.speedSamples); i++ {
			speed += p.speedSamples[i]
		}
		speed /= float64(sampleCount)
	}

	if speed > 0 && p.total > p.current {
		eta = time.Duration(float64(p.total-p.current)/speed) * time.Second
	}

	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	return speed, eta, percentage
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

// Spinner shows an indeterminate activity indicator on stderr
type Spinner struct {
	bar *pb.ProgressBar
}

// StartSpinner starts a spinner with message. It stays invisible in quiet mode
// and when stderr is not a terminal.
func StartSpinner(message string, quiet bool) *Spinner {
	if quiet || !term.IsTerminal(int(os.Stderr.Fd())) {
		return &Spinner{}
	}

	tmpl := `{{cycle . "⠋" "⠙" "⠹" "⠸" "⠼" "⠴" "⠦" "⠧" "⠇" "⠏"}} {{string . "message"}}`
	bar := pb.ProgressBarTemplate(tmpl).New(0)
	bar.SetWriter(os.Stderr)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Set("message", message)
	bar.Set(pb.CleanOnFinish, true)

	return &Spinner{bar: bar.Start()}
}

// Active reports whether the spinner is drawn
func (s *Spinner) Active() bool {
	return s.bar != nil
}

// Stop removes the spinner
func (s *Spinner) Stop() {
	if s.bar != nil {
		s.bar.Finish()
		s.bar = nil
	}
}

// formatBytes formats byte count as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
