package downloader

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"sharefetch/internal"
	"sharefetch/utils"
)

// DiskSaver writes downloads into a directory. Each payload is streamed to
// "<name>.part" and renamed into place only after the whole body arrived, so
// an interrupted transfer leaves nothing behind.
type DiskSaver struct {
	dir         string
	fileOps     *utils.FileOperations
	quiet       bool
	progressOut io.Writer
	limiter     internal.RateLimiter

	mu        sync.Mutex
	lastSaved string
}

// NewDiskSaver creates a saver writing into dir
func NewDiskSaver(dir string, quiet bool) *DiskSaver {
	return &DiskSaver{
		dir:         dir,
		fileOps:     utils.NewFileOperations(),
		quiet:       quiet,
		progressOut: os.Stderr,
	}
}

// WithRateLimit throttles writes to bytesPerSecond; 0 disables the limit
func (s *DiskSaver) WithRateLimit(bytesPerSecond int64) *DiskSaver {
	if bytesPerSecond > 0 {
		s.limiter = utils.NewTokenBucketLimiter(bytesPerSecond)
	} else {
		s.limiter = nil
	}
	return s
}

// WithProgressOutput redirects the progress bar and summary
func (s *DiskSaver) WithProgressOutput(w io.Writer) *DiskSaver {
	s.progressOut = w
	return s
}

// LastSaved returns the path of the most recent successful save
func (s *DiskSaver) LastSaved() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Save streams body to a collision-free path derived from filename.
// Stream failures are returned as they came from the reader; local I/O
// failures are returned as ErrSaveFailed.
func (s *DiskSaver) Save(ctx context.Context, filename string, body io.Reader, size int64) error {
	name := utils.SanitizeFilename(filename)

	// choosing the name and creating the .part file must not interleave
	// with another Save in the same directory
	s.mu.Lock()
	target, err := s.fileOps.UniquePath(s.dir, name)
	if err != nil {
		s.mu.Unlock()
		return internal.NewSaveFailedError(s.dir, err)
	}
	file, err := s.fileOps.CreatePartialFile(target)
	s.mu.Unlock()
	if err != nil {
		return internal.NewSaveFailedError(target, err)
	}

	internal.LogDebug("Saving %s to %s", filename, target)

	tracker := utils.NewProgressTrackerWithWriter(size, s.quiet, s.progressOut)
	var reader io.Reader = &ctxReader{ctx: ctx, r: body}
	if s.limiter != nil {
		reader = utils.NewRateLimitedReader(ctx, reader, s.limiter)
	}
	reader = tracker.Wrap(reader)

	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()

	if copyErr == nil && size >= 0 && written != size {
		copyErr = internal.NewConnectionError(0, "download", io.ErrUnexpectedEOF).
			WithContext("expected_bytes", size).
			WithContext("received_bytes", written)
	}

	if copyErr != nil || closeErr != nil {
		tracker.Abort()
		if rmErr := s.fileOps.RemovePartial(target); rmErr != nil {
			internal.LogWarn("Failed to remove partial file %s: %v", s.fileOps.PartPath(target), rmErr)
		}
		if copyErr != nil {
			if _, ok := internal.AsShareError(copyErr); ok {
				return copyErr
			}
			if errors.Is(copyErr, context.Canceled) || errors.Is(copyErr, context.DeadlineExceeded) {
				return internal.NewConnectionError(0, "download", copyErr)
			}
			return internal.NewSaveFailedError(target, copyErr)
		}
		return internal.NewSaveFailedError(target, closeErr)
	}

	if err := s.fileOps.AtomicRename(s.fileOps.PartPath(target), target); err != nil {
		tracker.Abort()
		_ = s.fileOps.RemovePartial(target)
		return internal.NewSaveFailedError(target, err)
	}

	tracker.SetFilename(target)
	tracker.Finish()

	s.mu.Lock()
	s.lastSaved = target
	s.mu.Unlock()

	internal.LogInfo("Saved %s (%d bytes)", target, written)
	return nil
}

// ctxReader stops a copy as soon as ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
