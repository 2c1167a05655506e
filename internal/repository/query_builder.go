package repository

import (
	"fmt"
	"sort"
	"strings"

	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
)

func buildCond(t *table, c transport.Cond, a *args) (string, error) {
	col, err := t.column(c.Column)
	if err != nil {
		return "", err
	}
	switch c.Op {
	case transport.OpEq:
		if c.Value == nil {
			return col.name + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col.ref(), a.add(c.Value)), nil
	case transport.OpNeq:
		if c.Value == nil {
			return col.name + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s <> %s", col.ref(), a.add(c.Value)), nil
	case transport.OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return "", fmt.Errorf("%w: %s in expects a string list", hola_errors.ErrInvalidInput, c.Column)
		}
		if len(values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s = ANY(%s)", col.ref(), a.add(values)), nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %q", hola_errors.ErrInvalidInput, c.Op)
	}
}

func buildAnd(t *table, conds []transport.Cond, a *args) (string, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		part, err := buildCond(t, c, a)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " AND "), nil
}

// buildWhere renders filter as a WHERE clause, or "" when it selects
// everything.
func buildWhere(t *table, filter transport.Filter, a *args) (string, error) {
	var clauses []string
	if len(filter.All) > 0 {
		all, err := buildAnd(t, filter.All, a)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, all)
	}
	if len(filter.Any) > 0 {
		groups := make([]string, 0, len(filter.Any))
		for _, group := range filter.Any {
			if len(group) == 0 {
				continue
			}
			g, err := buildAnd(t, group, a)
			if err != nil {
				return "", err
			}
			groups = append(groups, "("+g+")")
		}
		if len(groups) > 0 {
			clauses = append(clauses, "("+strings.Join(groups, " OR ")+")")
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func buildOrder(t *table, order transport.Order, a *args) (string, error) {
	var b strings.Builder
	if order.Column != "" {
		col, err := t.column(order.Column)
		if err != nil {
			return "", err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(col.name)
		if order.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
		// id breaks created_at ties so pages never overlap.
		if col.name != "id" {
			if _, ok := t.byName["id"]; ok {
				if order.Desc {
					b.WriteString(", id DESC")
				} else {
					b.WriteString(", id ASC")
				}
			}
		}
	}
	if order.Limit < 0 || order.Offset < 0 {
		return "", fmt.Errorf("%w: negative limit or offset", hola_errors.ErrInvalidInput)
	}
	if order.Limit > 0 {
		b.WriteString(" LIMIT " + a.add(order.Limit))
	}
	if order.Offset > 0 {
		b.WriteString(" OFFSET " + a.add(order.Offset))
	}
	return b.String(), nil
}

func buildSelect(t *table, filter transport.Filter, order transport.Order) (string, []any, error) {
	var a args
	where, err := buildWhere(t, filter, &a)
	if err != nil {
		return "", nil, err
	}
	tail, err := buildOrder(t, order, &a)
	if err != nil {
		return "", nil, err
	}
	return "SELECT " + t.selectList() + " FROM " + t.name + where + tail, a, nil
}

// writableColumns validates row against the table and returns its column
// names in a stable order.
func writableColumns(t *table, row transport.Row) ([]string, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		col, err := t.column(name)
		if err != nil {
			return nil, err
		}
		if !col.writable {
			return nil, fmt.Errorf("%w: column %s.%s is not writable", hola_errors.ErrInvalidInput, t.name, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func buildInsert(t *table, row transport.Row) (string, []any, error) {
	names, err := writableColumns(t, row)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, fmt.Errorf("%w: empty insert into %s", hola_errors.ErrInvalidInput, t.name)
	}
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = row[name]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.name, strings.Join(names, ", "), buildPlaceholders(1, len(names)), t.selectList())
	return query, values, nil
}

func buildUpdate(t *table, filter transport.Filter, patch transport.Row) (string, []any, error) {
	names, err := writableColumns(t, patch)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, fmt.Errorf("%w: empty update of %s", hola_errors.ErrInvalidInput, t.name)
	}
	if len(filter.All) == 0 && len(filter.Any) == 0 {
		return "", nil, fmt.Errorf("%w: unfiltered update of %s", hola_errors.ErrInvalidInput, t.name)
	}

	var a args
	sets := make([]string, len(names))
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = %s", name, a.add(patch[name]))
	}
	where, err := buildWhere(t, filter, &a)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s", t.name, strings.Join(sets, ", "), where, t.selectList())
	return query, a, nil
}
