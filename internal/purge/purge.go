// Package purge deletes local log files that fell out of the retention window.
package purge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/withObsrvr/saas-log-collector/internal/dates"
)

// Result summarizes one purge pass.
type Result struct {
	Purged   []string
	Retained int
	Bytes    int64
}

// Purger applies a day-granular retention policy below a root directory.
type Purger struct {
	root          string
	retentionDays int
	now           func() time.Time
	log           *slog.Logger
}

// New returns a Purger for *.log files below root.
func New(root string, retentionDays int) *Purger {
	return &Purger{
		root:          root,
		retentionDays: retentionDays,
		now:           time.Now,
		log:           slog.With("component", "purge"),
	}
}

// WithClock replaces the clock used for today's date.
func (p *Purger) WithClock(now func() time.Time) *Purger {
	p.now = now
	return p
}

// AgeDays returns the file's date minus the retention cutoff in whole days.
// Negative values are past retention.
func AgeDays(fileTime, today time.Time, retentionDays int) int {
	cutoff := dates.Day(today).AddDate(0, 0, -retentionDays)
	return int(dates.Day(fileTime.In(today.Location())).Sub(cutoff).Hours() / 24)
}

// Run walks the root once. The file date is its modification date. Files on
// the cutoff date are retained. Individual failures are collected and
// returned together; the walk always completes.
func (p *Purger) Run(ctx context.Context) (Result, error) {
	var res Result
	var errs *multierror.Error
	today := p.now()

	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return res, nil
	}

	walkErr := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}

		age := AgeDays(info.ModTime(), today, p.retentionDays)
		if age >= 0 {
			res.Retained++
			p.log.Debug("log file retained", "path", path, "days_left", age)
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", path, err))
			return nil
		}
		res.Purged = append(res.Purged, path)
		res.Bytes += info.Size()
		p.log.Info("log file purged",
			"path", path,
			"modified", info.ModTime().Format(time.DateOnly),
			"size", humanize.Bytes(uint64(info.Size())),
		)
		return nil
	})
	if walkErr != nil {
		errs = multierror.Append(errs, walkErr)
	}
	return res, errs.ErrorOrNil()
}
