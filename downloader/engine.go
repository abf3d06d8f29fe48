package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"crunchy-cli/internal"
	"crunchy-cli/utils"
)

// segmentJob represents a segment transfer job
type segmentJob struct {
	Segment internal.SegmentInfo
	URL     string
	Ranged  bool
}

// segmentResult represents the result of a segment transfer
type segmentResult struct {
	SegmentIndex int
	BytesWritten int64
	Error        error
}

// WorkerPool runs segment jobs concurrently and writes every segment at its
// offset into the shared part file
type WorkerPool struct {
	workers  int
	jobs     chan segmentJob
	results  chan segmentResult
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	client   *http.Client
	file     io.WriterAt
	progress *utils.ProgressTracker
}

// SegmentedEngine implements internal.TransferEngine on top of the transfer
// client. Throttling happens in the client's transport, not here.
type SegmentedEngine struct {
	client  *http.Client
	planner *TransferPlanner
	fileOps *utils.FileOperations
}

// NewSegmentedEngine creates an engine that performs every request with client
func NewSegmentedEngine(client *http.Client) *SegmentedEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &SegmentedEngine{
		client:  client,
		planner: NewTransferPlanner(),
		fileOps: utils.NewFileOperations(),
	}
}

// Probe asks the server for the size of rawURL and whether it serves byte ranges
func (e *SegmentedEngine) Probe(ctx context.Context, rawURL string) (*internal.TransferSource, error) {
	source := &internal.TransferSource{
		URL:      rawURL,
		Filename: filenameFromURL(rawURL),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, internal.NewCrunchyError(0, "failed to create request", internal.ErrInternal).WithCause(err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, internal.NewNetworkError("probe", err)
	}
	resp.Body.Close()

	// Some CDNs refuse HEAD, the resource is then fetched in one piece
	if resp.StatusCode == http.StatusMethodNotAllowed {
		internal.LogDebug("HEAD not allowed for %s, transferring without ranges", source.Filename)
		return source, nil
	}
	if err := checkStatus(resp, rawURL); err != nil {
		return nil, err
	}

	if resp.ContentLength > 0 {
		source.Size = resp.ContentLength
	}
	source.Ranges = resp.Header.Get("Accept-Ranges") == "bytes" && source.Size > 0

	internal.LogDebug("Probed %s: %d bytes, ranges: %t", source.Filename, source.Size, source.Ranges)
	return source, nil
}

// Transfer writes source to config.OutputPath. The data lands in a prefixed
// temporary file first and is only moved into place once it is complete.
func (e *SegmentedEngine) Transfer(ctx context.Context, source *internal.TransferSource, config *internal.TransferConfig) error {
	if source == nil {
		return fmt.Errorf("transfer source cannot be nil")
	}
	if config == nil {
		return fmt.Errorf("transfer config cannot be nil")
	}

	outputPath := config.OutputPath
	if outputPath == "" {
		outputPath = source.Filename
	}
	if outputPath == "" {
		return internal.NewValidationError("output", "no output path given")
	}

	if source.Size <= 0 {
		probed, err := e.Probe(ctx, source.URL)
		if err != nil {
			return err
		}
		probed.Filename = source.Filename
		source = probed
	}

	segments, err := e.planner.PlanTransfer(source, config)
	if err != nil {
		return fmt.Errorf("failed to plan transfer: %w", err)
	}

	tempPath, err := e.fileOps.CreateTempFile(filepath.Ext(outputPath))
	if err != nil {
		return err
	}
	complete := false
	defer func() {
		if !complete {
			os.Remove(tempPath)
		}
	}()

	if err := e.fileOps.CreatePartialFile(tempPath, max(source.Size, 0)); err != nil {
		return err
	}

	written, err := e.executeTransfer(ctx, source, segments, tempPath, outputPath, config.Quiet)
	if err != nil {
		return err
	}

	if source.Size > 0 && written != source.Size {
		return fmt.Errorf("size mismatch for %s: expected %d bytes, got %d bytes", outputPath, source.Size, written)
	}

	if err := e.fileOps.MoveFile(tempPath, outputPath); err != nil {
		return fmt.Errorf("failed to move transfer into place: %w", err)
	}
	complete = true

	internal.LogDebug("Wrote %d bytes to %s", written, outputPath)
	return nil
}

func (e *SegmentedEngine) executeTransfer(ctx context.Context, source *internal.TransferSource, segments []internal.SegmentInfo, tempPath, outputPath string, quiet bool) (written int64, err error) {
	file, err := os.OpenFile(tempPath, os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open part file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close part file: %w", cerr)
		}
	}()

	progress := utils.NewProgressTracker(source.Size, quiet)
	progress.SetFilename(outputPath)
	defer func() {
		if err != nil {
			progress.Abort()
		}
	}()

	pool := newWorkerPool(ctx, len(segments), e.client, file, progress)
	pool.start()
	defer pool.shutdown()

	go func() {
		defer close(pool.jobs)
		for _, segment := range segments {
			job := segmentJob{Segment: segment, URL: source.URL, Ranged: source.Ranges}
			select {
			case pool.jobs <- job:
			case <-pool.ctx.Done():
				return
			}
		}
	}()

	for result := range pool.results {
		if result.Error != nil {
			pool.cancel()
			return written, fmt.Errorf("segment %d failed: %w", result.SegmentIndex, result.Error)
		}
		written += result.BytesWritten
	}

	if err := ctx.Err(); err != nil {
		return written, err
	}

	progress.Finish()
	return written, nil
}

func newWorkerPool(ctx context.Context, workers int, client *http.Client, file io.WriterAt, progress *utils.ProgressTracker) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		workers:  workers,
		jobs:     make(chan segmentJob, workers),
		results:  make(chan segmentResult, workers),
		ctx:      ctx,
		cancel:   cancel,
		client:   client,
		file:     file,
		progress: progress,
	}
}

// start begins the worker pool execution
func (wp *WorkerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	go func() {
		wp.wg.Wait()
		close(wp.results)
	}()
}

// shutdown cancels outstanding jobs and waits for the workers
func (wp *WorkerPool) shutdown() {
	wp.cancel()
	wp.wg.Wait()
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			result := wp.processJob(job)
			select {
			case wp.results <- result:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job segmentJob) segmentResult {
	written, err := wp.transferSegment(job)
	return segmentResult{
		SegmentIndex: job.Segment.Index,
		BytesWritten: written,
		Error:        err,
	}
}

// transferSegment fetches one byte range and writes it at its offset
func (wp *WorkerPool) transferSegment(job segmentJob) (int64, error) {
	req, err := http.NewRequestWithContext(wp.ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return 0, internal.NewCrunchyError(0, "failed to create request", internal.ErrInternal).WithCause(err)
	}
	if job.Ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", job.Segment.Start, job.Segment.End))
	}

	resp, err := wp.client.Do(req)
	if err != nil {
		return 0, internal.NewNetworkError(fmt.Sprintf("segment %d", job.Segment.Index), err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, job.URL); err != nil {
		return 0, err
	}
	if job.Ranged && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("server ignored the range request (status %d)", resp.StatusCode)
	}

	limit := int64(-1)
	if job.Segment.End >= job.Segment.Start {
		limit = job.Segment.End - job.Segment.Start + 1
	}

	dst := io.NewOffsetWriter(wp.file, job.Segment.Start)
	written, err := wp.copyWithProgress(dst, resp.Body, limit)
	if err != nil {
		return written, fmt.Errorf("failed to copy segment data: %w", err)
	}
	if limit >= 0 && written != limit {
		return written, fmt.Errorf("short segment: got %d of %d bytes", written, limit)
	}
	return written, nil
}

// copyWithProgress copies at most limit bytes (all when limit is negative)
// and reports every chunk to the progress tracker
func (wp *WorkerPool) copyWithProgress(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	const bufferSize = 32 * 1024
	buffer := make([]byte, bufferSize)
	var total int64

	for limit < 0 || total < limit {
		toRead := bufferSize
		if limit >= 0 && int64(toRead) > limit-total {
			toRead = int(limit - total)
		}

		n, err := src.Read(buffer[:toRead])
		if n > 0 {
			written, writeErr := dst.Write(buffer[:n])
			total += int64(written)
			wp.progress.Add(int64(written))
			if writeErr != nil {
				return total, writeErr
			}
			if written != n {
				return total, io.ErrShortWrite
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}

		select {
		case <-wp.ctx.Done():
			return total, wp.ctx.Err()
		default:
		}
	}

	return total, nil
}

func checkStatus(resp *http.Response, rawURL string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return internal.NewNotFoundError(rawURL)
	case resp.StatusCode == http.StatusTooManyRequests:
		return internal.NewCrunchyError(resp.StatusCode, "too many requests", internal.ErrRateLimit).WithURL(rawURL)
	default:
		return internal.NewCrunchyError(resp.StatusCode, fmt.Sprintf("unexpected response status: %s", resp.Status), internal.ErrRequest).
			WithURL(rawURL)
	}
}

func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
