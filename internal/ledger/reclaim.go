package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
)

// Reclaim is the outcome of a stale-lock sweep over one partition. Names are
// log file names without the lock suffix.
type Reclaim struct {
	Reclaimed mapset.Set[string]
	Held      mapset.Set[string]
}

// ReclaimStaleLocks deletes lock markers in the partition that are at least
// one run interval old, judged by their remote creation time. Younger locks,
// and stale locks whose deletion failed, are reported as held. A listing
// failure is returned with an empty result.
func (l *Ledger) ReclaimStaleLocks(ctx context.Context, solution string, date time.Time) (Reclaim, error) {
	res := Reclaim{
		Reclaimed: mapset.NewThreadUnsafeSet[string](),
		Held:      mapset.NewThreadUnsafeSet[string](),
	}
	locks, err := l.Locks(ctx, solution, date)
	if err != nil {
		return res, err
	}

	now := l.now()
	var errs *multierror.Error
	for _, it := range locks {
		file := strings.TrimSuffix(it.Name, LockSuffix)
		age := now.Sub(it.Created)
		if age < l.staleAfter {
			res.Held.Add(file)
			continue
		}
		if err := l.ReleaseLock(ctx, solution, date, file); err != nil && !errors.Is(err, ErrNotFound) {
			errs = multierror.Append(errs, err)
			res.Held.Add(file)
			continue
		}
		res.Reclaimed.Add(file)
		l.log.Info("reclaimed stale lock",
			"solution", solution,
			"date", l.dates.Format(date),
			"file", file,
			"age", age.Round(time.Second),
		)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return res, fmt.Errorf("reclaim stale locks: %w", err)
	}
	return res, nil
}
