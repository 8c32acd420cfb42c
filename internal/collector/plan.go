package collector

import (
	"context"
	"time"

	"github.com/withObsrvr/saas-log-collector/internal/checkpoint"
	"github.com/withObsrvr/saas-log-collector/internal/logging"
	"github.com/withObsrvr/saas-log-collector/internal/metrics"
)

// Plan lists one partition and returns the files that still need work.
// Stale locks are reclaimed first so their files are eligible again; files
// whose lock is still held are left out. Every failure degrades to an empty
// or partial plan and the partition is retried on the next cycle.
func (c *Collector) Plan(ctx context.Context, solution string, date time.Time) []WorkItem {
	var st checkpoint.SolutionStats
	return c.plan(ctx, solution, date, &st)
}

func (c *Collector) plan(ctx context.Context, solution string, date time.Time, st *checkpoint.SolutionStats) []WorkItem {
	log := logging.SolutionLogger(ctx, solution).With("date", c.dates.Format(date))

	files := c.catalog.List(ctx, solution, date)
	st.Listed += len(files)
	if len(files) == 0 {
		return nil
	}

	if err := c.ledger.EnsurePartition(ctx, solution, date); err != nil {
		log.Warn("audit folder unavailable, skipping partition", "files", len(files), "error", err)
		st.Skipped += len(files)
		return nil
	}

	rec, err := c.ledger.ReclaimStaleLocks(ctx, solution, date)
	if err != nil {
		log.Warn("stale lock sweep incomplete", "error", err)
	}
	if n := rec.Reclaimed.Cardinality(); n > 0 {
		st.Reclaimed += n
		if m := metrics.Get(); m != nil {
			m.AddLocksReclaimed(solution, n)
		}
	}

	done, err := c.ledger.Succeeded(ctx, solution, date)
	if err != nil {
		// Without the success set every file would be downloaded again.
		log.Warn("success markers unavailable, skipping partition", "error", err)
		st.Skipped += len(files)
		return nil
	}

	candidates := Filter(solution, date, files, done, c.cfg.Log.LogTypesEnabled)
	items := candidates[:0]
	for _, it := range candidates {
		if rec.Held.Contains(it.File.Name) {
			log.Debug("lock held, skipping", "file", it.File.Name)
			st.Skipped++
			if m := metrics.Get(); m != nil {
				m.IncFilesSkipped(solution, "locked")
			}
			continue
		}
		items = append(items, it)
	}

	log.Info("partition planned",
		"listed", len(files),
		"succeeded", done.Cardinality(),
		"held", rec.Held.Cardinality(),
		"queued", len(items),
	)
	return items
}
