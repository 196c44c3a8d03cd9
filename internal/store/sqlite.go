package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

const dateLayout = "2006-01-02"

// RunRecord 一次流水线运行的记录
type RunRecord struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind"`
	Params    json.RawMessage `json:"params"`
}

// SQLiteStore 持久化已拼接的连续序列和运行记录.
// 每个 product/month 只保存一条累积序列, 日期唯一.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteStore 打开 (或创建) 数据库并执行迁移
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.NewStorageError("open sqlite", err).WithContext("path", path)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperr.NewStorageError("set WAL mode", err).WithContext("path", path)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, apperr.NewStorageError("migrate", err).WithContext("path", path)
	}

	logger.Info("sqlite store opened", slog.String("path", path))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_points (
			product    TEXT    NOT NULL,
			month      INTEGER NOT NULL,
			date       TEXT    NOT NULL,
			close      TEXT,
			expiration INTEGER NOT NULL,
			PRIMARY KEY (product, month, date)
		)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT    PRIMARY KEY,
			created_at INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			params     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// SaveSeries 写入序列的全部点, 已存在的日期被覆盖
func (s *SQLiteStore) SaveSeries(series *types.ContinuousSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO series_points
		(product, month, date, close, expiration) VALUES (?,?,?,?,?)`)
	if err != nil {
		return apperr.NewStorageError("prepare insert", err)
	}
	defer stmt.Close()

	for _, p := range series.Points {
		if _, err := stmt.Exec(series.Product, series.Month, p.Date.Format(dateLayout), p.Close, p.Expiration); err != nil {
			return apperr.NewStorageError("insert series point", err).
				WithContext("product", series.Product).
				WithContext("month", series.Month).
				WithContext("date", p.Date.Format(dateLayout))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.NewStorageError("commit series", err)
	}

	s.logger.Debug("series saved",
		slog.String("product", series.Product),
		slog.Int("month", series.Month),
		slog.Int("points", series.Len()))
	return nil
}

// LoadSeries 读取保存的序列, 按日期升序; 没有记录时返回空序列
func (s *SQLiteStore) LoadSeries(product string, month int) (*types.ContinuousSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT date, close, expiration FROM series_points
		WHERE product = ? AND month = ? ORDER BY date`, product, month)
	if err != nil {
		return nil, apperr.NewStorageError("query series", err).
			WithContext("product", product).
			WithContext("month", month)
	}
	defer rows.Close()

	series := &types.ContinuousSeries{Product: product, Month: month, Points: []types.PricePoint{}}
	for rows.Next() {
		var (
			date  string
			price decimal.NullDecimal
			p     types.PricePoint
		)
		if err := rows.Scan(&date, &price, &p.Expiration); err != nil {
			return nil, apperr.NewStorageError("scan series point", err)
		}
		p.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, apperr.NewStorageError("bad stored date", err).WithContext("date", date)
		}
		p.Close = price
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStorageError("iterate series", err)
	}
	return series, nil
}

// Watermark 返回已保存序列的最后日期, 没有记录时返回 nil
func (s *SQLiteStore) Watermark(product string, month int) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last sql.NullString
	err := s.db.QueryRow(`SELECT MAX(date) FROM series_points WHERE product = ? AND month = ?`,
		product, month).Scan(&last)
	if err != nil {
		return nil, apperr.NewStorageError("query watermark", err).
			WithContext("product", product).
			WithContext("month", month)
	}
	if !last.Valid {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, last.String)
	if err != nil {
		return nil, apperr.NewStorageError("bad stored date", err).WithContext("date", last.String)
	}
	return &t, nil
}

// RecordRun 记录一次运行
func (s *SQLiteStore) RecordRun(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO runs (id, created_at, kind, params) VALUES (?,?,?,?)`,
		run.ID.String(), run.CreatedAt.Unix(), run.Kind, string(run.Params))
	if err != nil {
		return apperr.NewStorageError("insert run", err).WithContext("run_id", run.ID.String())
	}
	return nil
}

// Runs 返回最近的运行记录, 新的在前
func (s *SQLiteStore) Runs(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, created_at, kind, params FROM runs
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.NewStorageError("query runs", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			created int64
			params  sql.NullString
		)
		if err := rows.Scan(&r.ID, &created, &r.Kind, &params); err != nil {
			return nil, apperr.NewStorageError("scan run", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		if params.Valid {
			r.Params = json.RawMessage(params.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
