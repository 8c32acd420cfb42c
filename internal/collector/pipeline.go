package collector

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/withObsrvr/saas-log-collector/internal/ledger"
	"github.com/withObsrvr/saas-log-collector/internal/logging"
	"github.com/withObsrvr/saas-log-collector/internal/metadata"
	"github.com/withObsrvr/saas-log-collector/internal/metrics"
	"github.com/withObsrvr/saas-log-collector/internal/storage"
)

// process downloads one file and appends its decompressed content to the
// local destination, moving its marker from absent to locked to succeeded.
// Files that are locked or already succeeded are skipped.
// A failed download or extraction leaves the lock in place for the next
// cycle's reclaim sweep and writes no success marker.
func (c *Collector) process(ctx context.Context, it WorkItem) itemResult {
	date := c.dates.Format(it.Date)
	name := it.File.Name
	log := logging.SolutionLogger(ctx, it.Solution).With("date", date, "file", name)
	m := metrics.Get()

	skip := func(reason string) itemResult {
		if m != nil {
			m.IncFilesSkipped(it.Solution, reason)
		}
		return itemResult{Outcome: outcomeSkipped}
	}
	fail := func(stage string) itemResult {
		if m != nil {
			m.IncFilesFailed(it.Solution, stage)
		}
		return itemResult{Outcome: outcomeFailed}
	}

	locked, err := c.ledger.IsLocked(ctx, it.Solution, name)
	if err != nil {
		log.Warn("lock probe failed, skipping", "error", err)
		return skip("probe_failed")
	}
	if locked {
		log.Debug("file locked by another worker, skipping")
		return skip("locked")
	}
	// Another run may have finished the file since it was planned.
	done, err := c.ledger.IsSucceeded(ctx, it.Solution, it.Date, name)
	if err != nil {
		log.Warn("success probe failed, skipping", "error", err)
		return skip("probe_failed")
	}
	if done {
		log.Debug("file already collected, skipping")
		return skip("succeeded")
	}
	if err := c.ledger.AcquireLock(ctx, it.Solution, it.Date, name); err != nil {
		log.Warn("could not create lock marker, skipping", "error", err)
		return skip("lock_failed")
	}
	if m != nil {
		m.IncLocksAcquired(it.Solution)
		m.InFlightDownloads.Inc()
		defer m.InFlightDownloads.Dec()
	}

	start := time.Now()
	src := it.File.DownloadPath()
	log.Info("downloading log", "path", src, "size", humanize.Bytes(uint64(max(it.File.Size, 0))))

	resp, err := c.api.Get(ctx, src, nil)
	if err != nil {
		log.Warn("download failed, lock left for reclaim", "error", err)
		return fail("download")
	}
	payload := resp.Body

	var archiveURI string
	if err := c.archive.Put(ctx, it.Solution, date, name, payload); err != nil {
		log.Warn("raw archive copy failed", "error", err)
		if m != nil {
			m.IncArchiveErrors(it.Solution)
		}
	} else {
		archiveURI = c.archive.URI(c.archive.Key(it.Solution, date, name))
	}

	derived := storage.DerivedName(name, it.Type, c.cfg.Process.WriteLogsByType)
	dest := c.store.Path(it.Solution, derived)
	extracted, err := c.extract.Extract(ctx, it.Solution, derived, payload, resp.Decoded)
	if err != nil {
		log.Warn("extraction failed, lock left for reclaim", "destination", dest, "error", err)
		return fail("extract")
	}

	if err := c.ledger.ReleaseLock(ctx, it.Solution, it.Date, name); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			log.Debug("lock already removed", "error", err)
		} else {
			log.Warn("could not remove lock marker", "error", err)
		}
	}
	if err := c.ledger.MarkSucceeded(ctx, it.Solution, it.Date, name); err != nil {
		log.Error("could not write success marker, file will be collected again", "error", err)
		return fail("mark")
	}

	elapsed := time.Since(start)
	if err := c.meta.RecordFile(ctx, metadata.FileRecord{
		CycleID:        logging.CycleID(ctx),
		Solution:       it.Solution,
		Date:           date,
		FileName:       name,
		SourcePath:     src,
		Destination:    dest,
		ArchiveURI:     archiveURI,
		CompressedSize: int64(len(payload)),
		ExtractedSize:  extracted,
		RemoteCreated:  it.File.Created,
		ProcessedAt:    time.Now().UTC(),
	}); err != nil {
		log.Warn("failed to record file in catalog", "error", err)
		if m != nil {
			m.IncMetadataErrors()
		}
	}

	if m != nil {
		m.IncFilesDownloaded(it.Solution, int64(len(payload)), extracted)
		m.ObserveDownloadDuration(it.Solution, elapsed.Seconds())
	}
	log.Info("log extracted",
		"destination", dest,
		"extracted", humanize.Bytes(uint64(extracted)),
		"duration", elapsed.Round(time.Millisecond),
	)
	return itemResult{
		Outcome:    outcomeDownloaded,
		Compressed: int64(len(payload)),
		Extracted:  extracted,
	}
}
