package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker shows a progress bar for a single download stream and
// keeps byte counts for the final summary.
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	startTime time.Time
	total     int64
	current   atomic.Int64
	filename  string
	finished  bool
	mutex     sync.Mutex
}

// DownloadSummary contains final download statistics
type DownloadSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	Filename     string
}

// NewProgressTracker creates a tracker writing to stderr. total may be -1
// when the size is unknown.
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerWithWriter(total, quiet, os.Stderr)
}

// NewProgressTrackerWithWriter creates a tracker writing the bar and summary to out
func NewProgressTrackerWithWriter(total int64, quiet bool, out io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:     quiet,
		out:       out,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
		if total <= 0 {
			tmpl = `{{string . "prefix"}}{{counters . }} {{speed . }}`
			total = 0
		}
		bar := pb.New64(total).SetTemplate(pb.ProgressBarTemplate(tmpl))
		bar.SetWriter(out)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", "Downloading: ")
		bar.Start()
		tracker.bar = bar
	}

	return tracker
}

// Wrap returns a reader that advances the tracker as r is consumed
func (p *ProgressTracker) Wrap(r io.Reader) io.Reader {
	counted := &countingReader{r: r, n: &p.current}
	if p.bar == nil {
		return counted
	}
	return p.bar.NewProxyReader(counted)
}

// SetFilename sets the filename reported in the summary
func (p *ProgressTracker) SetFilename(filename string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.filename = filename
}

// Current returns the number of bytes read so far
func (p *ProgressTracker) Current() int64 {
	return p.current.Load()
}

// Abort stops the bar without printing a summary
func (p *ProgressTracker) Abort() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	if p.bar != nil {
		p.bar.Finish()
	}
}

// Finish completes the progress bar and returns download summary
func (p *ProgressTracker) Finish() *DownloadSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil && !p.finished {
		p.bar.Finish()
	}
	p.finished = true

	summary := &DownloadSummary{
		TotalBytes: p.current.Load(),
		TotalTime:  totalTime,
		Filename:   p.filename,
	}
	if secs := totalTime.Seconds(); secs > 0 {
		summary.AverageSpeed = float64(summary.TotalBytes) / secs
	}

	if !p.quiet {
		p.displaySummary(summary)
	}

	return summary
}

func (p *ProgressTracker) displaySummary(summary *DownloadSummary) {
	fmt.Fprintf(p.out, "Total size: %s\n", FormatFileSize(summary.TotalBytes))
	fmt.Fprintf(p.out, "Total time: %v\n", summary.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(p.out, "Average speed: %s/s\n", FormatFileSize(int64(summary.AverageSpeed)))
	if summary.Filename != "" {
		fmt.Fprintf(p.out, "Saved to: %s\n", summary.Filename)
	}
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}
