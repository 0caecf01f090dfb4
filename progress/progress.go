// Package progress prints the advisory progress which fat.Format reports.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter implements fat.Progress. Its methods may be called from one
// goroutine while Report runs in another.
type Reporter struct {
	total   uint64
	written uint64

	mu     sync.Mutex
	status string
}

func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// SetTotal starts a new phase of total bytes.
func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.written, 0)
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) Add(bytes uint64) {
	atomic.AddUint64(&p.written, bytes)
}

// Written returns the number of bytes written in the current phase.
func (p *Reporter) Written() uint64 {
	return atomic.LoadUint64(&p.written)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// line formats the status line for written bytes, of which perSecond were
// written during the last second.
func (p *Reporter) line(written, perSecond uint64) string {
	rate := humanize.IBytes(perSecond) + "/s"
	status := rate
	if total := atomic.LoadUint64(&p.total); total > 0 {
		pct := float64(written) / float64(total) * 100
		status = fmt.Sprintf("%02.2f%% of %s, writing at %s",
			pct,
			humanize.IBytes(total),
			rate)
	}
	return fmt.Sprintf("\r[%s] %s                 ", p.getStatus(), status)
}

// Report prints a status line to w every second until ctx is done.
func (p *Reporter) Report(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	last := p.Written()
	for {
		select {
		case <-ticker.C:
			written := p.Written()
			if written < last {
				// a new phase started
				last = 0
			}
			perSecond := written - last
			last = written
			fmt.Fprint(w, p.line(written, perSecond))
		case <-ctx.Done():
			return
		}
	}
}
