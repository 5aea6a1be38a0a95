package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// table maps an entity to an organization table holding the full row as
// jsonb next to the columns used for lookups. Column values are recomputed
// on every write.
type table[T any, K int64 | string] struct {
	db      *Postgres
	name    string
	label   string
	autoID  bool
	columns []string
	values  func(*T) []any
	getID   func(*T) K
	setID   func(*T, K)
}

func (t *table[T, K]) ref(org string) (string, error) {
	return t.db.table(org, t.name)
}

func (t *table[T, K]) notFound(org string, id any) error {
	return goerr.Wrap(model.ErrNotFound, t.label+" not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
}

func (t *table[T, K]) insert(ctx context.Context, org string, v *T) (*T, error) {
	ref, err := t.ref(org)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal "+t.label)
	}

	cols := append([]string{}, t.columns...)
	args := append([]any{}, t.values(v)...)
	if !t.autoID {
		cols = append([]string{"id"}, cols...)
		args = append([]any{t.getID(v)}, args...)
	}
	cols = append(cols, "data")
	args = append(args, data)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`, ref, strings.Join(cols, ", "), placeholders(1, len(cols)))
	var id K
	if err := t.db.q(ctx).QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return nil, goerr.Wrap(err, "failed to insert "+t.label, goerr.V(model.OrgKey, org))
	}

	out := *v
	t.setID(&out, id)
	return &out, nil
}

func (t *table[T, K]) update(ctx context.Context, org string, v *T) (*T, error) {
	ref, err := t.ref(org)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal "+t.label)
	}

	sets := make([]string, 0, len(t.columns)+1)
	for i, c := range t.columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}
	sets = append(sets, fmt.Sprintf("data = $%d", len(t.columns)+1))
	args := append(append([]any{}, t.values(v)...), data, t.getID(v))

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, ref, strings.Join(sets, ", "), len(args))
	tag, err := t.db.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", t.getID(v)))
	}
	if tag.RowsAffected() == 0 {
		return nil, t.notFound(org, t.getID(v))
	}
	out := *v
	return &out, nil
}

func (t *table[T, K]) get(ctx context.Context, org string, id K) (*T, error) {
	v, err := t.first(ctx, org, "id = $1", "id", id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, t.notFound(org, id)
	}
	return v, nil
}

func (t *table[T, K]) delete(ctx context.Context, org string, id K) error {
	ref, err := t.ref(org)
	if err != nil {
		return err
	}
	tag, err := t.db.q(ctx).Exec(ctx, `DELETE FROM `+ref+` WHERE id = $1`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	if tag.RowsAffected() == 0 {
		return t.notFound(org, id)
	}
	return nil
}

func (t *table[T, K]) deleteWhere(ctx context.Context, org, where string, args ...any) error {
	ref, err := t.ref(org)
	if err != nil {
		return err
	}
	if _, err := t.db.q(ctx).Exec(ctx, `DELETE FROM `+ref+` WHERE `+where, args...); err != nil {
		return goerr.Wrap(err, "failed to delete "+t.label, goerr.V(model.OrgKey, org))
	}
	return nil
}

// find returns rows matching where, ordered by order. where and order are
// trusted SQL fragments; values go through args.
func (t *table[T, K]) find(ctx context.Context, org, where, order string, args ...any) ([]*T, error) {
	ref, err := t.ref(org)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, data FROM ` + ref
	if where != "" {
		query += ` WHERE ` + where
	}
	if order != "" {
		query += ` ORDER BY ` + order
	}

	rows, err := t.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query "+t.label, goerr.V(model.OrgKey, org))
	}
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		var (
			id   K
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan "+t.label)
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode "+t.label, goerr.V("id", id))
		}
		t.setID(v, id)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate "+t.label)
	}
	return out, nil
}

// first returns the first row of find, or nil, nil
func (t *table[T, K]) first(ctx context.Context, org, where, order string, args ...any) (*T, error) {
	if order == "" {
		order = "id"
	}
	rows, err := t.find(ctx, org, where, order+" LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
