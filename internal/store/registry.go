package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xiy/garbageman/internal/config"
)

// ErrModelNotFound is returned when an identifier does not name a known model.
var ErrModelNotFound = errors.New("model not found")

// Model is a resolved model handle.
type Model interface {
	ID() string
	Table() string
}

// SoftDeletable is implemented by models that keep a deletion timestamp and
// can be hard deleted.
type SoftDeletable interface {
	Model
	// OnlyTrashed selects soft deleted records deleted strictly before cutoff.
	// SQLite compares timestamps as text, so stored values must use
	// SQLiteTimeLayout; other formats are misordered around the cutoff.
	OnlyTrashed(before time.Time) Query
	// Trashed selects every soft deleted record.
	Trashed() Query
}

// Query is a pending selection of records.
type Query interface {
	ForceDelete(ctx context.Context) (int64, error)
	Get(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int64, error)
}

// Record is one fetched row that can be hard deleted on its own.
type Record interface {
	Key() any
	Fields() map[string]any
	ForceDelete(ctx context.Context) error
}

// Registry resolves model identifiers.
type Registry interface {
	Resolve(ctx context.Context, id string) (Model, error)
}

// SQLRegistry resolves model identifiers through the models configuration
// and the live table schema.
type SQLRegistry struct {
	db     *DB
	models map[string]config.ModelConfig
}

// NewRegistry builds a registry over db.
func NewRegistry(db *DB, models map[string]config.ModelConfig) *SQLRegistry {
	return &SQLRegistry{db: db, models: models}
}

// Resolve returns ErrModelNotFound for unregistered identifiers and missing
// tables. Tables lacking the deletion column or the primary key resolve to
// a handle that is not SoftDeletable.
func (r *SQLRegistry) Resolve(ctx context.Context, id string) (Model, error) {
	mc, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrModelNotFound)
	}
	cols, err := r.db.Columns(ctx, mc.Table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: table %s: %w", id, mc.Table, ErrModelNotFound)
	}

	t := &table{db: r.db, id: id, cfg: mc}
	if !slices.Contains(cols, mc.DeletedAtColumn) || !slices.Contains(cols, mc.PrimaryKey) {
		r.db.logger.Debug("model lacks soft delete columns", "model", id, "table", mc.Table, "columns", cols)
		return t, nil
	}
	return &softTable{table: t}, nil
}

type table struct {
	db  *DB
	id  string
	cfg config.ModelConfig
}

func (t *table) ID() string    { return t.id }
func (t *table) Table() string { return t.cfg.Table }

type softTable struct {
	*table
}

func (t *softTable) OnlyTrashed(before time.Time) Query {
	col := quoteIdent(t.cfg.DeletedAtColumn)
	d := t.db.dialect
	return &query{
		t:     t,
		where: fmt.Sprintf("%s IS NOT NULL AND %s < %s", col, col, d.placeholder(1)),
		args:  []any{d.timeArg(before)},
	}
}

func (t *softTable) Trashed() Query {
	return &query{
		t:     t,
		where: quoteIdent(t.cfg.DeletedAtColumn) + " IS NOT NULL",
	}
}
