package purge

import (
	"context"

	"github.com/xiy/garbageman/internal/events"
	"github.com/xiy/garbageman/internal/store"
)

const dispatchMethod = "until"

// purgeBulk removes every matching record with one statement.
func (j *Job) purgeBulk(ctx context.Context, q store.Query) (int64, error) {
	j.reporter.Infof("Deleting all the records in a single query statement.")
	return q.ForceDelete(ctx)
}

// purgeEach fetches the matching records and deletes them one at a time,
// notifying listeners before and after each delete. A listener halting the
// purging notification does not prevent the delete.
func (j *Job) purgeEach(ctx context.Context, model string, q store.Query) (int64, error) {
	j.reporter.Infof("Deleting each record separately and dispatching events.")

	records, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}
	count := int64(len(records))

	for _, rec := range records {
		if err := j.dispatch(ctx, events.Notification{Kind: events.Purging, Model: model, Record: rec, RunID: j.runID}); err != nil {
			return 0, err
		}
		if err := rec.ForceDelete(ctx); err != nil {
			return 0, err
		}
		if err := j.dispatch(ctx, events.Notification{Kind: events.Purged, Model: model, Record: rec, RunID: j.runID}); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (j *Job) dispatch(ctx context.Context, n events.Notification) error {
	j.reporter.Debugf("Dispatching event [%s] with method [%s]", j.notifier.Name(n), dispatchMethod)
	_, err := j.notifier.Until(ctx, n)
	return err
}
