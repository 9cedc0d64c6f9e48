package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"vault-capacity-alerts/internal/asset"
)

// sqliteDeleteBatch keeps IN lists well under SQLITE_MAX_VARIABLE_NUMBER.
const sqliteDeleteBatch = 500

const (
	sqliteEnsureUserSQL = `INSERT OR IGNORE INTO users (id) VALUES (?);`

	sqliteDeleteUserSQL = `DELETE FROM users WHERE id = ?;`

	sqliteInsertAlertSQL = `INSERT INTO capacity_alerts (user_id, asset, threshold)
    SELECT ?, ?, ?
    WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)
    RETURNING id;`

	sqliteListAlertsByUserSQL = `SELECT id, user_id, asset, threshold, created_at
    FROM capacity_alerts
    WHERE user_id = ?
    ORDER BY asset, threshold, id;`

	sqliteDeleteAlertsByThresholdSQL = `DELETE FROM capacity_alerts
    WHERE user_id = ? AND asset = ? AND threshold = ?;`

	sqliteDeleteAlertsByAssetSQL = `DELETE FROM capacity_alerts
    WHERE user_id = ? AND asset = ?;`

	sqliteSelectTriggeredSQL = `SELECT id, user_id, asset, threshold, created_at
    FROM capacity_alerts
    WHERE asset = ? AND threshold <= ?
    ORDER BY threshold, id;`
)

// SQLiteStore is the embedded threshold store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database.path is required")
	}
	dsn := sqliteDSN(path)

	migrationDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrateSQLite(migrationDB); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serialises every read and write
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureUser registers a user; repeated calls are no-ops.
func (s *SQLiteStore) EnsureUser(ctx context.Context, userID int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteEnsureUserSQL, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// DeleteUser removes a user and, by cascade, all their alerts.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, sqliteDeleteUserSQL, userID)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return n > 0, nil
}

// InsertAlert stores a new subscription and returns its id.
func (s *SQLiteStore) InsertAlert(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if err := checkThreshold(threshold); err != nil {
		return 0, err
	}

	var id int64
	scanErr := db.QueryRowContext(ctx, sqliteInsertAlertSQL, userID, string(sym), padThreshold(threshold), userID).Scan(&id)
	switch {
	case errors.Is(scanErr, sql.ErrNoRows), isSQLiteForeignKey(scanErr):
		return 0, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	case scanErr != nil:
		return 0, fmt.Errorf("insert alert: %w", scanErr)
	}
	return id, nil
}

// ListAlertsByUser lists a user's alerts ordered by asset then threshold.
func (s *SQLiteStore) ListAlertsByUser(ctx context.Context, userID int64) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqliteListAlertsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts by user: %w", err)
	}
	return scanSQLiteAlerts(rows)
}

// DeleteAlertsByThreshold removes every alert matching the exact threshold.
func (s *SQLiteStore) DeleteAlertsByThreshold(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if err := checkThreshold(threshold); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqliteDeleteAlertsByThresholdSQL, userID, string(sym), padThreshold(threshold))
	if err != nil {
		return 0, fmt.Errorf("delete alerts by threshold: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAlertsByAsset removes all of a user's alerts for one asset.
func (s *SQLiteStore) DeleteAlertsByAsset(ctx context.Context, userID int64, sym asset.Symbol) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqliteDeleteAlertsByAssetSQL, userID, string(sym))
	if err != nil {
		return 0, fmt.Errorf("delete alerts by asset: %w", err)
	}
	return res.RowsAffected()
}

// SelectTriggered returns alerts whose threshold is at or below the available capacity.
func (s *SQLiteStore) SelectTriggered(ctx context.Context, sym asset.Symbol, available *big.Int) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	capacity, ok := clampCapacity(available)
	if !ok {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, sqliteSelectTriggeredSQL, string(sym), padThreshold(capacity))
	if err != nil {
		return nil, fmt.Errorf("select triggered alerts: %w", err)
	}
	return scanSQLiteAlerts(rows)
}

// DeleteAlertsByID retires alerts by id in one transaction. Unknown ids are ignored.
func (s *SQLiteStore) DeleteAlertsByID(ctx context.Context, ids []int64) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete alerts: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(ids); start += sqliteDeleteBatch {
		end := min(start+sqliteDeleteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := "DELETE FROM capacity_alerts WHERE id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + ");"

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("delete alerts by id: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete alerts by id: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete alerts: %w", err)
	}
	return total, nil
}

func scanSQLiteAlerts(rows *sql.Rows) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var (
			rec       AlertRecord
			sym       string
			padded    string
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &sym, &padded, &createdAt); err != nil {
			return nil, err
		}
		threshold, err := parseThreshold(padded)
		if err != nil {
			return nil, err
		}
		rec.Asset = asset.Symbol(sym)
		rec.Threshold = threshold
		rec.CreatedAt = createdAt.UTC()
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func isSQLiteForeignKey(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

var _ ThresholdStore = (*SQLiteStore)(nil)
