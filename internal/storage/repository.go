package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bauchermatch/internal/bridge"
	"bauchermatch/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultFilename is the database file created under the data directory.
const DefaultFilename = "baucher_match.db"

var _ bridge.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db   *sql.DB
	path string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, path: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (r *SQLiteRepository) Path() string {
	return r.path
}

const selectStatement = `SELECT id, filename, month, year, ingreso, total_count, processed_at FROM processed_statements`

// Add inserts a statement and returns it with the assigned ID.
func (r *SQLiteRepository) Add(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, error) {
	if s.ID != 0 {
		return core.ProcessedStatement{}, core.ErrStatementNotNew
	}
	if err := s.Validate(); err != nil {
		return core.ProcessedStatement{}, fmt.Errorf("validate statement: %w", err)
	}

	s, err := insertStatement(ctx, r.db, s)
	if err != nil {
		return core.ProcessedStatement{}, err
	}

	slog.InfoContext(ctx, "Statement saved to SQLite",
		"id", s.ID,
		"filename", s.Filename,
		"month", s.Month,
		"year", s.Year,
		"ingreso", s.Ingreso)

	return s, nil
}

// Replace deletes the statements sharing the key of s and inserts s in one
// transaction. On error nothing changes.
func (r *SQLiteRepository) Replace(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, int, error) {
	if s.ID != 0 {
		return core.ProcessedStatement{}, 0, core.ErrStatementNotNew
	}
	if err := s.Validate(); err != nil {
		return core.ProcessedStatement{}, 0, fmt.Errorf("validate statement: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ProcessedStatement{}, 0, fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := s.Key()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM processed_statements WHERE filename = ? AND month = ? AND year = ?`,
		key.Filename, string(key.Month), key.Year)
	if err != nil {
		return core.ProcessedStatement{}, 0, fmt.Errorf("delete replaced statements: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return core.ProcessedStatement{}, 0, fmt.Errorf("rows affected: %w", err)
	}

	s, err = insertStatement(ctx, tx, s)
	if err != nil {
		return core.ProcessedStatement{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return core.ProcessedStatement{}, 0, fmt.Errorf("commit replace: %w", err)
	}

	slog.InfoContext(ctx, "Statement replaced in SQLite",
		"id", s.ID,
		"filename", s.Filename,
		"month", s.Month,
		"year", s.Year,
		"replaced", removed)

	return s, int(removed), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStatement(ctx context.Context, db execer, s core.ProcessedStatement) (core.ProcessedStatement, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO processed_statements (filename, month, year, ingreso, total_count, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Filename, string(s.Month), s.Year, s.Ingreso, s.TotalCount, s.ProcessedAt)
	if err != nil {
		return core.ProcessedStatement{}, fmt.Errorf("insert statement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.ProcessedStatement{}, fmt.Errorf("last insert id: %w", err)
	}
	s.ID = id
	return s, nil
}

// ListAll returns every statement, most recent year first.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.ProcessedStatement, error) {
	rows, err := r.db.QueryContext(ctx, selectStatement+` ORDER BY year DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	return scanStatements(ctx, rows)
}

// ListByYear returns the statements of one year, newest first.
func (r *SQLiteRepository) ListByYear(ctx context.Context, year int) ([]core.ProcessedStatement, error) {
	rows, err := r.db.QueryContext(ctx, selectStatement+` WHERE year = ? ORDER BY id DESC`, year)
	if err != nil {
		return nil, fmt.Errorf("list statements for year %d: %w", year, err)
	}
	return scanStatements(ctx, rows)
}

// FindByKey returns the statements with the same (filename, month, year).
func (r *SQLiteRepository) FindByKey(ctx context.Context, key core.StatementKey) ([]core.ProcessedStatement, error) {
	rows, err := r.db.QueryContext(ctx,
		selectStatement+` WHERE filename = ? AND month = ? AND year = ? ORDER BY id`,
		key.Filename, string(key.Month), key.Year)
	if err != nil {
		return nil, fmt.Errorf("find statements by key: %w", err)
	}
	return scanStatements(ctx, rows)
}

// MonthlyTotals sums ingreso and transaction counts per (month, year).
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT month, year, SUM(ingreso) AS total_ingreso, SUM(total_count) AS total_transactions
		FROM processed_statements
		GROUP BY month, year
		ORDER BY year,
			CASE month
				WHEN 'Ene' THEN 1
				WHEN 'Feb' THEN 2
				WHEN 'Mar' THEN 3
				WHEN 'Abr' THEN 4
				WHEN 'May' THEN 5
				WHEN 'Jun' THEN 6
				WHEN 'Jul' THEN 7
				WHEN 'Ago' THEN 8
				WHEN 'Sep' THEN 9
				WHEN 'Oct' THEN 10
				WHEN 'Nov' THEN 11
				WHEN 'Dic' THEN 12
			END`)
	if err != nil {
		return nil, fmt.Errorf("query monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []core.MonthlyTotal
	for rows.Next() {
		var (
			rawMonth string
			year     int
			ingreso  float64
			count    int64
		)
		if err := rows.Scan(&rawMonth, &year, &ingreso, &count); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		month, err := core.ParseMonth(rawMonth)
		if err != nil {
			slog.WarnContext(ctx, "Skipping monthly total with unknown month", "month", rawMonth, "year", year)
			continue
		}
		totals = append(totals, core.MonthlyTotal{
			Month:      month,
			Year:       year,
			Ingreso:    ingreso,
			TotalCount: int(count),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly totals: %w", err)
	}
	return totals, nil
}

// AvailableYears returns the distinct persisted years, most recent first.
func (r *SQLiteRepository) AvailableYears(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM processed_statements ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("query available years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate years: %w", err)
	}
	return years, nil
}

// DeleteByID removes one statement. An unknown id is not an error.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_statements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete statement %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	slog.InfoContext(ctx, "Statement deleted", "id", id, "rows", n)
	return nil
}

// ClearAll removes every statement.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_statements`)
	if err != nil {
		return fmt.Errorf("clear statements: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.InfoContext(ctx, "All statements cleared", "rows", n)
	return nil
}

func scanStatements(ctx context.Context, rows *sql.Rows) ([]core.ProcessedStatement, error) {
	defer rows.Close()

	var out []core.ProcessedStatement
	for rows.Next() {
		var (
			s        core.ProcessedStatement
			rawMonth string
		)
		if err := rows.Scan(&s.ID, &s.Filename, &rawMonth, &s.Year, &s.Ingreso, &s.TotalCount, &s.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		month, err := core.ParseMonth(rawMonth)
		if err != nil {
			slog.WarnContext(ctx, "Statement has unknown month", "id", s.ID, "month", rawMonth)
			month = core.Month(rawMonth)
		}
		s.Month = month
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	return out, nil
}
