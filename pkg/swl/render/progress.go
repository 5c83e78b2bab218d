package render

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// Progress renders a single live tracker line for a running refresh job.
// Update and Finish must be called from one goroutine.
type Progress struct {
	pw      progress.Writer
	tracker *progress.Tracker
	total   int64
}

func NewProgress(w io.Writer) *Progress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(25)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	return &Progress{pw: pw}
}

// Start begins rendering in the background.
func (p *Progress) Start() { go p.pw.Render() }

// Update reflects the latest counters on the tracker line.
func (p *Progress) Update(c types.Counters) {
	if p.tracker == nil {
		p.tracker = &progress.Tracker{Message: "refreshing profiles", Total: int64(c.Total)}
		p.total = int64(c.Total)
		p.pw.AppendTracker(p.tracker)
	}
	if int64(c.Total) != p.total {
		p.total = int64(c.Total)
		p.tracker.UpdateTotal(p.total)
	}
	p.tracker.SetValue(int64(c.Processed))
}

// Finish marks the tracker done and stops rendering.
func (p *Progress) Finish(message string) {
	if p.tracker != nil {
		if message != "" {
			p.tracker.UpdateMessage(message)
		}
		p.tracker.MarkAsDone()
	}
	p.pw.Stop()
}
