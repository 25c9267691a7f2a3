package store

import (
	"context"
	"fmt"
)

type query struct {
	t     *softTable
	where string
	args  []any
}

func (q *query) ForceDelete(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(q.t.cfg.Table), q.where)
	res, err := q.t.db.db.ExecContext(ctx, stmt, q.args...)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", q.t.id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge %s rows affected: %w", q.t.id, err)
	}
	return n, nil
}

// Get fetches the matching records ordered by primary key.
func (q *query) Get(ctx context.Context) ([]Record, error) {
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s ASC",
		quoteIdent(q.t.cfg.Table), q.where, quoteIdent(q.t.cfg.PrimaryKey))
	rows, err := q.t.db.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q.t.id, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		fields, err := scanFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.t.id, err)
		}
		out = append(out, &record{t: q.t, fields: fields})
	}
	return out, rows.Err()
}

func (q *query) Count(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", quoteIdent(q.t.cfg.Table), q.where)
	var n int64
	if err := q.t.db.db.QueryRowContext(ctx, stmt, q.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.t.id, err)
	}
	return n, nil
}

type record struct {
	t      *softTable
	fields map[string]any
}

func (r *record) Key() any               { return r.fields[r.t.cfg.PrimaryKey] }
func (r *record) Fields() map[string]any { return r.fields }

// ForceDelete removes the row regardless of its deletion timestamp.
func (r *record) ForceDelete(ctx context.Context) error {
	d := r.t.db.dialect
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		quoteIdent(r.t.cfg.Table), quoteIdent(r.t.cfg.PrimaryKey), d.placeholder(1))
	if _, err := r.t.db.db.ExecContext(ctx, stmt, r.Key()); err != nil {
		return fmt.Errorf("force delete %s %v: %w", r.t.id, r.Key(), err)
	}
	return nil
}
