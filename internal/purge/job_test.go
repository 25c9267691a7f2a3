package purge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xiy/garbageman/internal/config"
	"github.com/xiy/garbageman/internal/events"
	"github.com/xiy/garbageman/internal/report"
	"github.com/xiy/garbageman/internal/store"
)

var fixedNow = time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)

type entry struct {
	level report.Level
	msg   string
}

type captureSink struct {
	lines []entry
}

func (c *captureSink) WriteLine(level report.Level, msg string) { c.lines = append(c.lines, entry{level, msg}) }
func (c *captureSink) Log(level report.Level, msg string)       { c.lines = append(c.lines, entry{level, msg}) }

func (c *captureSink) at(level report.Level) []string {
	var out []string
	for _, l := range c.lines {
		if l.level == level {
			out = append(out, l.msg)
		}
	}
	return out
}

type calls struct {
	log []string
}

type fakeRecord struct {
	key   int
	calls *calls
	err   error
}

func (r *fakeRecord) Key() any               { return r.key }
func (r *fakeRecord) Fields() map[string]any { return map[string]any{"id": r.key} }
func (r *fakeRecord) ForceDelete(context.Context) error {
	r.calls.log = append(r.calls.log, fmt.Sprintf("delete %d", r.key))
	return r.err
}

type fakeQuery struct {
	model   string
	cutoff  time.Time
	bulk    int64
	records []store.Record
	calls   *calls
}

func (q *fakeQuery) ForceDelete(context.Context) (int64, error) {
	q.calls.log = append(q.calls.log, "bulk "+q.model)
	return q.bulk, nil
}

func (q *fakeQuery) Get(context.Context) ([]store.Record, error) {
	q.calls.log = append(q.calls.log, "get "+q.model)
	return q.records, nil
}

func (q *fakeQuery) Count(context.Context) (int64, error) { return int64(len(q.records)), nil }

type fakeModel struct {
	id    string
	query *fakeQuery
}

func (m *fakeModel) ID() string    { return m.id }
func (m *fakeModel) Table() string { return m.id }

type fakeSoftModel struct {
	fakeModel
}

func (m *fakeSoftModel) OnlyTrashed(before time.Time) store.Query {
	m.query.cutoff = before
	return m.query
}

func (m *fakeSoftModel) Trashed() store.Query { return m.query }

type fakeRegistry struct {
	models map[string]store.Model
	err    error
}

func (r *fakeRegistry) Resolve(_ context.Context, id string) (store.Model, error) {
	if r.err != nil {
		return nil, r.err
	}
	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, store.ErrModelNotFound)
	}
	return m, nil
}

type fakeMetrics struct {
	purged  map[string]int64
	skipped []string
}

func (m *fakeMetrics) Purged(model string, n int64) {
	if m.purged == nil {
		m.purged = map[string]int64{}
	}
	m.purged[model] += n
}
func (m *fakeMetrics) Skipped(model, reason string) { m.skipped = append(m.skipped, model+":"+reason) }

func softModel(id string, c *calls, bulk int64, keys ...int) *fakeSoftModel {
	q := &fakeQuery{model: id, bulk: bulk, calls: c}
	for _, k := range keys {
		q.records = append(q.records, &fakeRecord{key: k, calls: c})
	}
	return &fakeSoftModel{fakeModel{id: id, query: q}}
}

func newJob(reg store.Registry, dispatch bool, notifier events.Notifier, sinks ...*captureSink) (*Job, *captureSink) {
	logs := &captureSink{}
	var console report.ConsoleSink
	if len(sinks) > 0 {
		console = sinks[0]
	}
	rep := report.NewReporter(console, logs, report.Thresholds{report.Log: 7, report.Console: 6})
	job := NewJob(reg, rep, Settings{DispatchEvents: dispatch}, Options{
		Clock:    func() time.Time { return fixedNow },
		Notifier: notifier,
		RunID:    "run-1",
	})
	return job, logs
}

func schedule(pairs ...any) config.Schedule {
	var s config.Schedule
	for i := 0; i+1 < len(pairs); i += 2 {
		s = append(s, config.ScheduleEntry{Model: pairs[i].(string), Days: pairs[i+1].(int)})
	}
	return s
}

func TestRun_EmptyScheduleNotices(t *testing.T) {
	t.Parallel()
	c := &calls{}
	job, logs := newJob(&fakeRegistry{}, false, nil)

	sum, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(logs.lines) != 1 || logs.lines[0] != (entry{report.Notice, "There were no models configured to purge."}) {
		t.Fatalf("expected exactly one notice, got %+v", logs.lines)
	}
	if len(c.log) != 0 || len(sum.Results) != 0 {
		t.Fatalf("expected no store calls, got %v", c.log)
	}
}

func TestRun_BulkStrategy(t *testing.T) {
	t.Parallel()
	c := &calls{}
	one := softModel("ModelOne", c, 1)
	two := softModel("ModelTwo", c, 0)
	reg := &fakeRegistry{models: map[string]store.Model{"ModelOne": one, "ModelTwo": two}}
	m := &fakeMetrics{}
	logs := &captureSink{}
	rep := report.NewReporter(nil, logs, nil)
	job := NewJob(reg, rep, Settings{}, Options{Clock: func() time.Time { return fixedNow }, Metrics: m})

	sum, err := job.Run(context.Background(), schedule("ModelOne", 14, "ModelTwo", 30))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cutoff14 := fixedNow.AddDate(0, 0, -14)
	cutoff30 := fixedNow.AddDate(0, 0, -30)
	want := []string{
		"Deleting all the records in a single query statement.",
		"Purged 1 record(s) for ModelOne that was deleted before " + cutoff14.Format(time.RFC3339) + ".",
		"Deleting all the records in a single query statement.",
		"Purged 0 record(s) for ModelTwo that was deleted before " + cutoff30.Format(time.RFC3339) + ".",
	}
	got := logs.at(report.Info)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("info messages:\n got %q\nwant %q", got, want)
	}
	if fmt.Sprint(c.log) != "[bulk ModelOne bulk ModelTwo]" {
		t.Fatalf("expected one bulk delete per model, got %v", c.log)
	}
	if !one.query.cutoff.Equal(cutoff14) || !two.query.cutoff.Equal(cutoff30) {
		t.Fatalf("unexpected cutoffs %s %s", one.query.cutoff, two.query.cutoff)
	}
	if sum.Deleted() != 1 || len(sum.Results) != 2 || sum.Results[0].Deleted != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if m.purged["ModelOne"] != 1 || m.purged["ModelTwo"] != 0 {
		t.Fatalf("unexpected metrics %+v", m.purged)
	}
	if sum.RunID == "" {
		t.Fatal("expected generated run id")
	}
}

type recordingNotifier struct {
	bus   *events.Bus
	calls *calls
	halt  bool
}

func (n *recordingNotifier) Name(note events.Notification) string { return n.bus.Name(note) }

func (n *recordingNotifier) Until(ctx context.Context, note events.Notification) (any, error) {
	n.calls.log = append(n.calls.log, n.Name(note))
	if n.halt {
		return false, nil
	}
	return n.bus.Until(ctx, note)
}

func TestRun_PerRecordStrategy(t *testing.T) {
	t.Parallel()
	c := &calls{}
	one := softModel("ModelOne", c, 99, 1)
	two := softModel("ModelTwo", c, 99)
	reg := &fakeRegistry{models: map[string]store.Model{"ModelOne": one, "ModelTwo": two}}
	notifier := &recordingNotifier{bus: events.NewBus("garbageman"), calls: c}
	job, logs := newJob(reg, true, notifier)

	sum, err := job.Run(context.Background(), schedule("ModelOne", 14, "ModelTwo", 30))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantCalls := "[get ModelOne garbageman.purging: ModelOne delete 1 garbageman.purged: ModelOne get ModelTwo]"
	if fmt.Sprint(c.log) != wantCalls {
		t.Fatalf("calls:\n got %v\nwant %s", c.log, wantCalls)
	}
	if sum.Results[0].Deleted != 1 || sum.Results[1].Deleted != 0 {
		t.Fatalf("expected deleted counts 1 and 0, got %+v", sum.Results)
	}
	debug := logs.at(report.Debug)
	wantDebug := []string{
		"Dispatching event [garbageman.purging: ModelOne] with method [until]",
		"Dispatching event [garbageman.purged: ModelOne] with method [until]",
	}
	if fmt.Sprint(debug) != fmt.Sprint(wantDebug) {
		t.Fatalf("debug messages:\n got %q\nwant %q", debug, wantDebug)
	}
	info := logs.at(report.Info)
	if len(info) != 4 || info[0] != "Deleting each record separately and dispatching events." {
		t.Fatalf("unexpected info messages %q", info)
	}
}

func TestRun_PerRecordStrategyDeletesDespiteHalt(t *testing.T) {
	t.Parallel()
	c := &calls{}
	one := softModel("ModelOne", c, 0, 1, 2)
	reg := &fakeRegistry{models: map[string]store.Model{"ModelOne": one}}
	notifier := &recordingNotifier{bus: events.NewBus("garbageman"), calls: c, halt: true}
	job, _ := newJob(reg, true, notifier)

	sum, err := job.Run(context.Background(), schedule("ModelOne", 7))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	deletes := 0
	for _, l := range c.log {
		if l == "delete 1" || l == "delete 2" {
			deletes++
		}
	}
	if deletes != 2 || sum.Results[0].Deleted != 2 {
		t.Fatalf("expected both records deleted, calls=%v", c.log)
	}
}

func TestRun_DefaultNotifierStillDispatches(t *testing.T) {
	t.Parallel()
	c := &calls{}
	one := softModel("ModelOne", c, 0, 4)
	reg := &fakeRegistry{models: map[string]store.Model{"ModelOne": one}}
	job, logs := newJob(reg, true, nil)

	if _, err := job.Run(context.Background(), schedule("ModelOne", 1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(logs.at(report.Debug)) != 2 {
		t.Fatalf("expected two dispatch debug lines, got %q", logs.at(report.Debug))
	}
}

func TestRun_SkipsUnresolvedAndUnsupportedModels(t *testing.T) {
	t.Parallel()
	c := &calls{}
	plain := &fakeModel{id: "NoSoftDeletes"}
	good := softModel("ModelOne", c, 3)
	reg := &fakeRegistry{models: map[string]store.Model{"NoSoftDeletes": plain, "ModelOne": good}}
	console := &captureSink{}
	job, logs := newJob(reg, false, nil, console)

	sum, err := job.Run(context.Background(), schedule("NoneExisting", 14, "NoSoftDeletes", 14, "ModelOne", 14))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := logs.at(report.Warning); len(got) != 1 || got[0] != "The model [NoneExisting] was not found." {
		t.Fatalf("unexpected warnings %q", got)
	}
	if got := logs.at(report.Error); len(got) != 1 || got[0] != "The model [NoSoftDeletes] does not support soft deleting." {
		t.Fatalf("unexpected errors %q", got)
	}
	if fmt.Sprint(c.log) != "[bulk ModelOne]" {
		t.Fatalf("expected only ModelOne to be purged, got %v", c.log)
	}
	if len(sum.Skipped) != 2 || sum.Skipped[0].Reason != ReasonNotFound || sum.Skipped[1].Reason != ReasonNotSoftDeletes {
		t.Fatalf("unexpected skipped %+v", sum.Skipped)
	}
	if len(console.lines) != len(logs.lines) {
		t.Fatalf("expected console to mirror the log at info threshold, console=%d log=%d", len(console.lines), len(logs.lines))
	}
}

func TestRun_StoreErrorAbortsRun(t *testing.T) {
	t.Parallel()
	boom := errors.New("database is locked")
	job, _ := newJob(&fakeRegistry{err: boom}, false, nil)

	_, err := job.Run(context.Background(), schedule("ModelOne", 1, "ModelTwo", 2))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestRun_RecordDeleteErrorAborts(t *testing.T) {
	t.Parallel()
	c := &calls{}
	one := softModel("ModelOne", c, 0, 1)
	boom := errors.New("constraint failed")
	one.query.records[0].(*fakeRecord).err = boom
	job, _ := newJob(&fakeRegistry{models: map[string]store.Model{"ModelOne": one}}, true, nil)

	if _, err := job.Run(context.Background(), schedule("ModelOne", 1)); !errors.Is(err, boom) {
		t.Fatalf("expected delete error to propagate, got %v", err)
	}
}

func TestNewJob_FreezesClock(t *testing.T) {
	t.Parallel()
	ticks := 0
	clock := func() time.Time {
		ticks++
		return fixedNow.Add(time.Duration(ticks) * time.Hour)
	}
	c := &calls{}
	one := softModel("ModelOne", c, 0)
	two := softModel("ModelTwo", c, 0)
	reg := &fakeRegistry{models: map[string]store.Model{"ModelOne": one, "ModelTwo": two}}
	job := NewJob(reg, report.NewReporter(nil, nil, nil), Settings{}, Options{Clock: clock})

	if _, err := job.Run(context.Background(), schedule("ModelOne", 10, "ModelTwo", 10)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ticks != 1 {
		t.Fatalf("expected clock to be read once, got %d", ticks)
	}
	if !one.query.cutoff.Equal(two.query.cutoff) {
		t.Fatalf("expected identical cutoffs, got %s and %s", one.query.cutoff, two.query.cutoff)
	}
	if !job.Now().Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("unexpected anchor %s", job.Now())
	}
}
