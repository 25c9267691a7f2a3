package admin

import (
	"context"
	"errors"
	"time"

	"github.com/xiy/garbageman/internal/config"
	"github.com/xiy/garbageman/internal/store"
)

// Model statuses shown on the dashboard.
const (
	StatusOK           = "ok"
	StatusNotFound     = "not found"
	StatusNoSoftDelete = "no soft delete"
)

// ModelStats summarizes one scheduled model.
type ModelStats struct {
	Model    string
	Table    string
	Days     int
	Status   string
	Cutoff   time.Time
	Trashed  int64
	Eligible int64
}

// Collect counts soft deleted and purgeable records for every scheduled
// model, using now as the anchor for cutoffs.
func Collect(ctx context.Context, reg store.Registry, schedule config.Schedule, now time.Time) ([]ModelStats, error) {
	out := make([]ModelStats, 0, len(schedule))
	for _, e := range schedule {
		st := ModelStats{Model: e.Model, Days: e.Days, Cutoff: now.AddDate(0, 0, -e.Days)}

		m, err := reg.Resolve(ctx, e.Model)
		if errors.Is(err, store.ErrModelNotFound) {
			st.Status = StatusNotFound
			out = append(out, st)
			continue
		}
		if err != nil {
			return out, err
		}
		st.Table = m.Table()

		soft, ok := m.(store.SoftDeletable)
		if !ok {
			st.Status = StatusNoSoftDelete
			out = append(out, st)
			continue
		}
		if st.Trashed, err = soft.Trashed().Count(ctx); err != nil {
			return out, err
		}
		if st.Eligible, err = soft.OnlyTrashed(st.Cutoff).Count(ctx); err != nil {
			return out, err
		}
		st.Status = StatusOK
		out = append(out, st)
	}
	return out, nil
}
