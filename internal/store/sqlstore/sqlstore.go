// Package sqlstore is the database/sql-backed implementation of
// store.Store, supporting Postgres, MySQL, and SQLite through the same
// generic table/filter/row API, with per-dialect SQL generation for
// placeholders and upserts.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentctx/platform/internal/store"
)

// SQLStore implements store.Store over a *sql.DB.
type SQLStore struct {
	db      dbHandle
	dialect string // "postgres", "mysql", or "sqlite"
}

// dbHandle is satisfied by both *sql.DB and *sql.Tx so the same query
// helpers serve both the top-level store and transaction scopes.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// New wraps db for the given dialect ("postgres", "mysql", "sqlite").
func New(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return nil // inside a transaction; nothing to ping
	}
	return db.PingContext(ctx)
}

// placeholder returns the positional placeholder for argument index i
// (1-based) in the store's dialect.
func (s *SQLStore) placeholder(i int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (s *SQLStore) buildWhere(filters store.Filters, startIdx int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic SQL text, helpful for tests/logs

	var clauses []string
	var args []any
	idx := startIdx
	for _, k := range keys {
		v := filters[k]
		switch vv := v.(type) {
		case []string:
			if len(vv) == 0 {
				clauses = append(clauses, "1=0")
				continue
			}
			ph := make([]string, len(vv))
			for i, item := range vv {
				ph[i] = s.placeholder(idx)
				args = append(args, item)
				idx++
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", k, strings.Join(ph, ",")))
		default:
			clauses = append(clauses, fmt.Sprintf("%s = %s", k, s.placeholder(idx)))
			args = append(args, v)
			idx++
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLStore) scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeScanned(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeScanned converts driver-returned []byte (common for TEXT/JSON
// columns under the sqlite3/mysql drivers) into string, so callers never
// have to type-switch on []byte vs string.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (s *SQLStore) Get(ctx context.Context, table string, filters store.Filters, opts store.QueryOpts) ([]store.Row, error) {
	if !store.ValidIdentifier(table) {
		return nil, fmt.Errorf("sqlstore: invalid table %q", table)
	}
	where, args := s.buildWhere(filters, 1)
	q := fmt.Sprintf("SELECT * FROM %s %s", table, where)
	if opts.OrderBy != "" {
		q += " ORDER BY " + opts.OrderBy
	}
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get %s: %w", table, err)
	}
	return s.scanRows(rows)
}

func (s *SQLStore) GetOne(ctx context.Context, table string, filters store.Filters) (store.Row, error) {
	rows, err := s.Get(ctx, table, filters, store.QueryOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SQLStore) GetByIDs(ctx context.Context, table string, idField string, ids []string) ([]store.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Get(ctx, table, store.Filters{idField: ids}, store.QueryOpts{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Row, len(rows))
	for _, r := range rows {
		if id, ok := r[idField].(string); ok {
			byID[id] = r
		}
	}
	out := make([]store.Row, len(ids))
	for i, id := range ids {
		out[i] = byID[id] // nil for missing ids, preserving requested order
	}
	return out, nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, data store.Row) (string, error) {
	if !store.ValidIdentifier(table) {
		return "", fmt.Errorf("sqlstore: invalid table %q", table)
	}
	cols := make([]string, 0, len(data))
	for k, v := range data {
		if v == nil {
			continue // dropped so column defaults apply
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		ph[i] = s.placeholder(i + 1)
		args[i] = encodeValue(data[c])
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), strings.Join(ph, ","))
	if s.dialect == "postgres" {
		q += " RETURNING id"
		var id string
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return "", fmt.Errorf("sqlstore: insert %s: %w", table, err)
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return "", err
			}
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return "", fmt.Errorf("sqlstore: insert %s: %w", table, err)
	}
	if idv, ok := data["id"]; ok {
		if s, ok := idv.(string); ok {
			return s, nil
		}
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return "", nil // driver doesn't support LastInsertId; caller supplied the id explicitly
	}
	return fmt.Sprintf("%d", lastID), nil
}

func (s *SQLStore) Update(ctx context.Context, table string, filters store.Filters, data store.Row) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("sqlstore: update requires non-empty filters")
	}
	if !store.ValidIdentifier(table) {
		return 0, fmt.Errorf("sqlstore: invalid table %q", table)
	}
	cols := make([]string, 0, len(data))
	for k := range data {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	idx := 1
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", c, s.placeholder(idx))
		args[i] = encodeValue(data[c])
		idx++
	}
	where, whereArgs := s.buildWhere(filters, idx)
	args = append(args, whereArgs...)

	q := fmt.Sprintf("UPDATE %s SET %s %s", table, strings.Join(sets, ","), where)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: update %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Delete(ctx context.Context, table string, filters store.Filters) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("sqlstore: delete requires non-empty filters")
	}
	if !store.ValidIdentifier(table) {
		return 0, fmt.Errorf("sqlstore: invalid table %q", table)
	}
	where, args := s.buildWhere(filters, 1)
	q := fmt.Sprintf("DELETE FROM %s %s", table, where)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Upsert performs a database-native atomic insert-or-update, racing safely
// against concurrent writers to the same idField value.
func (s *SQLStore) Upsert(ctx context.Context, table string, data store.Row, idField string) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if !store.ValidIdentifier(table) || !store.ValidIdentifier(idField) {
		return 0, fmt.Errorf("sqlstore: invalid identifier")
	}
	cols := make([]string, 0, len(data))
	for k := range data {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		ph[i] = s.placeholder(i + 1)
		args[i] = encodeValue(data[c])
	}

	var q string
	switch s.dialect {
	case "postgres":
		var updates []string
		for _, c := range cols {
			if c == idField {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, strings.Join(cols, ","), strings.Join(ph, ","), idField, strings.Join(updates, ","))
	case "mysql":
		var updates []string
		for _, c := range cols {
			if c == idField {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			table, strings.Join(cols, ","), strings.Join(ph, ","), strings.Join(updates, ","))
	default: // sqlite
		var updates []string
		for _, c := range cols {
			if c == idField {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, strings.Join(cols, ","), strings.Join(ph, ","), idField, strings.Join(updates, ","))
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: upsert %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 1, nil // driver doesn't report rows affected for upserts; assume success
	}
	return n, nil
}

// rebind rewrites ?-style placeholders to the dialect's positional form
// so Execute callers stay dialect-neutral. Placeholders inside quoted
// literals are left untouched.
func (s *SQLStore) rebind(sqlText string) string {
	if s.dialect != "postgres" {
		return sqlText
	}
	var b strings.Builder
	n := 0
	inQuote := false
	for _, r := range sqlText {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *SQLStore) Execute(ctx context.Context, sqlText string, params []any) ([]store.Row, int64, error) {
	sqlText = s.rebind(sqlText)
	trimmed := strings.TrimSpace(strings.ToUpper(sqlText))
	if strings.HasPrefix(trimmed, "SELECT") {
		rows, err := s.db.QueryContext(ctx, sqlText, params...)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlstore: execute: %w", err)
		}
		out, err := s.scanRows(rows)
		return out, int64(len(out)), err
	}
	res, err := s.db.ExecContext(ctx, sqlText, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: execute: %w", err)
	}
	n, _ := res.RowsAffected()
	return nil, n, nil
}

// Transaction runs fn against a single exclusive connection, rolling back
// on any exit path other than a nil return.
func (s *SQLStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return fmt.Errorf("sqlstore: nested transactions are not supported")
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		err = sqlTx.Commit()
	}()

	txStore := &SQLStore{db: sqlTx, dialect: s.dialect}
	err = fn(txStore)
	return err
}

// SemanticSearch scans candidate rows with a non-null embedding column and
// ranks them by cosine similarity, computed in-process.
func (s *SQLStore) SemanticSearch(ctx context.Context, table, embeddingColumn string, queryVec []float32, filters store.Filters, limit int, minSimilarity float64) ([]store.ScoredRow, error) {
	if !store.ValidIdentifier(table) || !store.ValidIdentifier(embeddingColumn) {
		return nil, fmt.Errorf("sqlstore: invalid identifier")
	}
	rows, err := s.Get(ctx, table, filters, store.QueryOpts{})
	if err != nil {
		return nil, err
	}

	var scored []store.ScoredRow
	for _, r := range rows {
		raw, ok := r[embeddingColumn]
		if !ok || raw == nil {
			continue
		}
		vec, err := decodeVector(raw)
		if err != nil || len(vec) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, vec)
		if score < minSimilarity {
			continue
		}
		scored = append(scored, store.ScoredRow{Row: r, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// encodeValue marshals slices/maps to JSON text for storage in a TEXT/JSON
// column; scalars pass through unchanged.
func encodeValue(v any) any {
	switch v.(type) {
	case string, int, int64, float64, float32, bool, time.Time, nil:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func decodeVector(raw any) ([]float32, error) {
	switch v := raw.(type) {
	case []float32:
		return v, nil
	case string:
		var out []float32
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported embedding representation %T", raw)
	}
}
