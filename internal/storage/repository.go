package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vault-capacity-alerts/internal/asset"
)

const pgForeignKeyViolation = "23503"

const (
	ensureUserSQL = `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING;`

	deleteUserSQL = `DELETE FROM users WHERE id = $1;`

	insertAlertSQL = `INSERT INTO capacity_alerts (user_id, asset, threshold)
    SELECT $1::bigint, $2::text, $3::numeric
    WHERE EXISTS (SELECT 1 FROM users WHERE id = $1::bigint)
    RETURNING id;`

	listAlertsByUserSQL = `SELECT
        id,
        user_id,
        asset,
        threshold::text,
        created_at
    FROM capacity_alerts
    WHERE user_id = $1
    ORDER BY asset, threshold, id;`

	deleteAlertsByThresholdSQL = `DELETE FROM capacity_alerts
    WHERE user_id = $1
      AND asset = $2
      AND threshold = $3::numeric;`

	deleteAlertsByAssetSQL = `DELETE FROM capacity_alerts
    WHERE user_id = $1
      AND asset = $2;`

	selectTriggeredSQL = `SELECT
        id,
        user_id,
        asset,
        threshold::text,
        created_at
    FROM capacity_alerts
    WHERE asset = $1
      AND threshold <= $2::numeric
    ORDER BY threshold, id;`

	deleteAlertsByIDSQL = `DELETE FROM capacity_alerts WHERE id = ANY($1);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL threshold store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// the session lock dies with the connection
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

// EnsureUser registers a user; repeated calls are no-ops.
func (s *Store) EnsureUser(ctx context.Context, userID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ensureUserSQL, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// DeleteUser removes a user and, by cascade, all their alerts.
func (s *Store) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, deleteUserSQL, userID)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertAlert stores a new subscription and returns its id.
func (s *Store) InsertAlert(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if err := checkThreshold(threshold); err != nil {
		return 0, err
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertAlertSQL, userID, string(sym), threshold.String()).Scan(&id)
	switch {
	case errors.Is(scanErr, pgx.ErrNoRows):
		return 0, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	case isForeignKeyViolation(scanErr):
		return 0, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	case scanErr != nil:
		return 0, fmt.Errorf("insert alert: %w", scanErr)
	}
	return id, nil
}

// ListAlertsByUser lists a user's alerts ordered by asset then threshold.
func (s *Store) ListAlertsByUser(ctx context.Context, userID int64) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsByUserSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts by user: %w", queryErr)
	}
	return collectAlerts(rows)
}

// DeleteAlertsByThreshold removes every alert matching the exact threshold.
func (s *Store) DeleteAlertsByThreshold(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if err := checkThreshold(threshold); err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsByThresholdSQL, userID, string(sym), threshold.String())
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts by threshold: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// DeleteAlertsByAsset removes all of a user's alerts for one asset.
func (s *Store) DeleteAlertsByAsset(ctx context.Context, userID int64, sym asset.Symbol) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsByAssetSQL, userID, string(sym))
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts by asset: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// SelectTriggered returns alerts whose threshold is at or below the available capacity.
func (s *Store) SelectTriggered(ctx context.Context, sym asset.Symbol, available *big.Int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	capacity, ok := clampCapacity(available)
	if !ok {
		return nil, nil
	}

	rows, queryErr := pool.Query(ctx, selectTriggeredSQL, string(sym), capacity.String())
	if queryErr != nil {
		return nil, fmt.Errorf("select triggered alerts: %w", queryErr)
	}
	return collectAlerts(rows)
}

// DeleteAlertsByID retires alerts by id. Unknown ids are ignored.
func (s *Store) DeleteAlertsByID(ctx context.Context, ids []int64) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsByIDSQL, ids)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts by id: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var (
			rec          AlertRecord
			sym          string
			thresholdStr string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &sym, &thresholdStr, &rec.CreatedAt); err != nil {
			return nil, err
		}
		threshold, err := parseThreshold(thresholdStr)
		if err != nil {
			return nil, err
		}
		rec.Asset = asset.Symbol(sym)
		rec.Threshold = threshold
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

var (
	_ ThresholdStore = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
