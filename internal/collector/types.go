package collector

import (
	"time"

	"github.com/withObsrvr/saas-log-collector/internal/catalog"
)

// WorkItem is one remote log file to download for a (solution, date)
// partition.
type WorkItem struct {
	Solution string
	Date     time.Time
	File     catalog.LogFile
	Type     string // first allow-listed type found in the file name
}

// outcome is the end state of one WorkItem in a cycle.
type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

// itemResult is returned from the pipeline for aggregation.
type itemResult struct {
	Outcome    outcome
	Compressed int64
	Extracted  int64
}
