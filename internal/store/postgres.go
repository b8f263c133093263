package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Postgres is a Store backed by a PostgreSQL connection or pool.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a Store over db.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Select returns rows of table matching all filters.
// An empty columns slice selects every column.
func (p *Postgres) Select(ctx context.Context, table string, columns []string, filters ...Filter) ([]Record, error) {
	where, args := whereClause(filters, 1)
	sql := fmt.Sprintf("SELECT %s FROM %s%s", selectList(columns), ident(table), where)

	rows, err := p.query(ctx, sql, args...)
	return rows, wrap("select", table, err)
}

// Insert adds record to table and returns the inserted row.
func (p *Postgres) Insert(ctx context.Context, table string, record Record) ([]Record, error) {
	cols, placeholders, args := insertParts(record)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	rows, err := p.query(ctx, sql, args...)
	return rows, wrap("insert", table, err)
}

// Update sets record's columns on every row matching filters.
func (p *Postgres) Update(ctx context.Context, table string, record Record, filters ...Filter) ([]Record, error) {
	if len(filters) == 0 {
		return nil, wrap("update", table, ErrUnfilteredUpdate)
	}

	keys := record.Columns()
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filters))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", ident(k), i+1)
		args = append(args, record[k])
	}
	where, whereArgs := whereClause(filters, len(keys)+1)
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", ident(table), strings.Join(sets, ", "), where)

	rows, err := p.query(ctx, sql, args...)
	return rows, wrap("update", table, err)
}

// Upsert inserts record, resolving conflicts on the conflict columns with
// ON CONFLICT. The conflict columns must be covered by a unique constraint.
//
// With update=false the conflicting row is "updated" to its own key value so
// that RETURNING still yields it without changing any data.
func (p *Postgres) Upsert(ctx context.Context, table string, record Record, conflict []string, update bool) ([]Record, error) {
	if len(conflict) == 0 {
		return nil, wrap("upsert", table, errors.New("no conflict columns"))
	}
	cols, placeholders, args := insertParts(record)

	conflictCols := make([]string, len(conflict))
	isKey := make(map[string]bool, len(conflict))
	for i, c := range conflict {
		conflictCols[i] = ident(c)
		isKey[c] = true
	}

	var sets []string
	if update {
		for _, c := range record.Columns() {
			if !isKey[c] {
				sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
			}
		}
	}
	if len(sets) == 0 {
		k := ident(conflict[0])
		sets = []string{fmt.Sprintf("%s = %s.%s", k, ident(table), k)}
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
		ident(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), strings.Join(sets, ", "))

	rows, err := p.query(ctx, sql, args...)
	return rows, wrap("upsert", table, err)
}

func (p *Postgres) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, translatePgError(err)
	}

	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = Record(m)
	}
	return out, nil
}

// translatePgError maps unique violations onto ErrDuplicate while keeping the
// original error in the chain.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Message)
	}
	return err
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func selectList(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}

// whereClause renders filters as " WHERE a = $n AND b = $n+1".
// A nil filter value renders as IS NULL and consumes no placeholder.
func whereClause(filters []Filter, start int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	n := start
	for _, f := range filters {
		if f.Value == nil {
			conds = append(conds, fmt.Sprintf("%s IS NULL", ident(f.Column)))
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(f.Column), n))
		args = append(args, f.Value)
		n++
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func insertParts(record Record) (cols, placeholders []string, args []any) {
	keys := record.Columns()
	cols = make([]string, len(keys))
	placeholders = make([]string, len(keys))
	args = make([]any, len(keys))
	for i, k := range keys {
		cols[i] = ident(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[k]
	}
	return cols, placeholders, args
}
