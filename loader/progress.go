package loader

import (
	"fmt"
	"io"
	"os"
)

// Progress prints live per-table status lines while batches commit.
type Progress struct {
	out io.Writer
}

func NewProgress(out io.Writer) *Progress {
	if out == nil {
		out = os.Stdout
	}
	return &Progress{out: out}
}

func (p *Progress) line(label string, current int, total int, end string) {
	pct := 100.0
	if total > 0 {
		pct = 100 * float64(current) / float64(total)
	}
	fmt.Fprintf(p.out, "%-28s %9d/%-9d %5.1f%%%s", label, current, total, pct, end)
}

// Step reports a committed batch, overwriting the current line.
func (p *Progress) Step(label string, current int, total int) {
	p.line(label, current, total, "\r")
}

// Finish reports the completed table.
func (p *Progress) Finish(label string, current int, total int) {
	p.line(label, current, total, "\n")
}
