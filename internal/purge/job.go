// Package purge permanently removes soft deleted records once they are older
// than the retention configured for their model.
package purge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xiy/garbageman/internal/config"
	"github.com/xiy/garbageman/internal/events"
	"github.com/xiy/garbageman/internal/report"
	"github.com/xiy/garbageman/internal/store"
)

// DefaultNamespace prefixes event names when no notifier is supplied.
const DefaultNamespace = "garbageman"

// Skip reasons.
const (
	ReasonNotFound       = "not_found"
	ReasonNotSoftDeletes = "no_soft_delete"
)

// Result is the outcome for one purged model.
type Result struct {
	Model   string
	Deleted int64
	Cutoff  time.Time
}

// Skipped is a scheduled model that was not purged.
type Skipped struct {
	Model  string
	Reason string
}

// Summary collects everything a run did.
type Summary struct {
	RunID   string
	Now     time.Time
	Results []Result
	Skipped []Skipped
}

// Deleted returns the total records purged in the run.
func (s Summary) Deleted() int64 {
	var n int64
	for _, r := range s.Results {
		n += r.Deleted
	}
	return n
}

// Metrics receives run outcomes. *metrics.Collector implements it.
type Metrics interface {
	Purged(model string, n int64)
	Skipped(model, reason string)
}

// Settings is the immutable per-run configuration.
type Settings struct {
	DispatchEvents bool
}

// SettingsFrom extracts the job settings from a loaded config.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{DispatchEvents: cfg.DispatchPurgeEvents}
}

// Options carries the optional collaborators of a Job.
type Options struct {
	// Clock defaults to time.Now. It is read once, in NewJob.
	Clock func() time.Time
	// Notifier defaults to an empty bus in DefaultNamespace.
	Notifier events.Notifier
	Metrics  Metrics
	RunID    string
}

// Job purges the soft deleted records of a schedule relative to a single
// anchor time captured at construction.
type Job struct {
	registry store.Registry
	reporter *report.Reporter
	settings Settings
	notifier events.Notifier
	metrics  Metrics
	runID    string
	now      time.Time
}

// NewJob builds a Job and freezes its clock.
func NewJob(reg store.Registry, rep *report.Reporter, settings Settings, opts Options) *Job {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = events.NewBus(DefaultNamespace)
	}
	return &Job{
		registry: reg,
		reporter: rep,
		settings: settings,
		notifier: notifier,
		metrics:  opts.Metrics,
		runID:    runID,
		now:      clock(),
	}
}

// Now returns the anchor every cutoff of the run is computed from.
func (j *Job) Now() time.Time { return j.now }

// RunID identifies the run in logs and notifications.
func (j *Job) RunID() string { return j.runID }

// Run processes schedule in order. Models that cannot be resolved or do not
// support soft deletes are reported and skipped; store and listener errors
// abort the run.
func (j *Job) Run(ctx context.Context, schedule config.Schedule) (Summary, error) {
	sum := Summary{RunID: j.runID, Now: j.now}

	for _, entry := range schedule {
		res, skip, err := j.purgeModel(ctx, entry)
		if err != nil {
			return sum, err
		}
		if skip != nil {
			sum.Skipped = append(sum.Skipped, *skip)
			if j.metrics != nil {
				j.metrics.Skipped(skip.Model, skip.Reason)
			}
			continue
		}
		sum.Results = append(sum.Results, res)
		if j.metrics != nil {
			j.metrics.Purged(res.Model, res.Deleted)
		}
	}

	if len(schedule) == 0 {
		j.reporter.Noticef("There were no models configured to purge.")
	}
	return sum, nil
}

func (j *Job) purgeModel(ctx context.Context, entry config.ScheduleEntry) (Result, *Skipped, error) {
	model, err := j.registry.Resolve(ctx, entry.Model)
	if errors.Is(err, store.ErrModelNotFound) {
		j.reporter.Warningf("The model [%s] was not found.", entry.Model)
		return Result{}, &Skipped{Model: entry.Model, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Result{}, nil, err
	}

	soft, ok := model.(store.SoftDeletable)
	if !ok {
		j.reporter.Errorf("The model [%s] does not support soft deleting.", entry.Model)
		return Result{}, &Skipped{Model: entry.Model, Reason: ReasonNotSoftDeletes}, nil
	}

	cutoff := j.now.AddDate(0, 0, -entry.Days)
	q := soft.OnlyTrashed(cutoff)

	var deleted int64
	if j.settings.DispatchEvents {
		deleted, err = j.purgeEach(ctx, entry.Model, q)
	} else {
		deleted, err = j.purgeBulk(ctx, q)
	}
	if err != nil {
		return Result{}, nil, err
	}

	j.reporter.Infof("Purged %d record(s) for %s that was deleted before %s.",
		deleted, entry.Model, cutoff.Format(time.RFC3339))
	return Result{Model: entry.Model, Deleted: deleted, Cutoff: cutoff}, nil, nil
}
