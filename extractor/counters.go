package extractor

import (
	"github.com/movielogd/movielogd-importer/logger"
)

// Counters is the running tally for one extraction. It is threaded through
// the call chain so independent runs never share state.
type Counters struct {
	Lines     int
	Parsed    int
	Skipped   int
	Warnings  int
	Conflicts int
	Staged    map[string]int
}

func NewCounters() *Counters {
	return &Counters{Staged: make(map[string]int, 13)}
}

func (c *Counters) warn(field string, tmdbid int64, reason string) {
	c.Warnings++
	logger.Log.Debugf("record %d: %s %s", tmdbid, field, reason)
}

func (c *Counters) skip(line int, reason string) {
	c.Skipped++
	logger.Log.Debugf("line %d skipped: %s", line, reason)
}
