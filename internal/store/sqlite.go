package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/hibernate/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	s.logger.Debug("sql", "op", "insert", "table", "users", "id", u.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.logger.Debug("sql", "op", "select", "table", "users", "id", id)
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.logger.Debug("sql", "op", "select_by_email", "table", "users")
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var createdAt string

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = s.parseTimestamp("users", u.ID, createdAt)
	return &u, nil
}

// parseTimestamp decodes a stored RFC3339Nano column. A corrupt value
// degrades to the zero time with a warning rather than failing the whole
// read.
func (s *SQLiteStore) parseTimestamp(table, id, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		s.logger.Warn("corrupt timestamp column",
			"table", table, "id", id, "value", value, "error", err)
	}
	return t
}

// --- Role bindings ---

// ReplaceRoleBinding deactivates any existing bindings for the user and
// inserts rb as the single active binding, in one transaction.
func (s *SQLiteStore) ReplaceRoleBinding(ctx context.Context, rb *model.RoleBinding) error {
	s.logger.Debug("sql", "op", "replace", "table", "role_bindings", "user_id", rb.UserID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE role_bindings SET active = 0 WHERE user_id = ?`, rb.UserID); err != nil {
		return fmt.Errorf("deactivate bindings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO role_bindings (id, user_id, role_arn, region, active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		rb.ID, rb.UserID, rb.RoleARN, rb.Region, rb.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetActiveRoleBinding(ctx context.Context, userID string) (*model.RoleBinding, error) {
	s.logger.Debug("sql", "op", "select_active", "table", "role_bindings", "user_id", userID)

	var rb model.RoleBinding
	var active int
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, role_arn, region, active, created_at
		 FROM role_bindings WHERE user_id = ? AND active = 1`, userID,
	).Scan(&rb.ID, &rb.UserID, &rb.RoleARN, &rb.Region, &active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rb.Active = active != 0
	rb.CreatedAt = s.parseTimestamp("role_bindings", rb.ID, createdAt)
	return &rb, nil
}

// --- Schedules ---

func (s *SQLiteStore) CreateSchedule(ctx context.Context, sch *model.Schedule) error {
	s.logger.Debug("sql", "op", "insert", "table", "schedules", "id", sch.ID)

	daysJSON, err := json.Marshal(sch.Days)
	if err != nil {
		return fmt.Errorf("marshal days: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, user_id, instance_id, start_time, stop_time, days, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.ID, sch.UserID, sch.InstanceID, sch.StartTime, sch.StopTime,
		string(daysJSON), boolToInt(sch.Active), sch.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedules", "id", id)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, instance_id, start_time, stop_time, days, active, created_at
		 FROM schedules WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules, err := s.scanSchedules(rows)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return schedules[0], nil
}

func (s *SQLiteStore) ListSchedulesByUser(ctx context.Context, userID string) ([]*model.Schedule, error) {
	s.logger.Debug("sql", "op", "select_by_user", "table", "schedules", "user_id", userID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, instance_id, start_time, stop_time, days, active, created_at
		 FROM schedules WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanSchedules(rows)
}

func (s *SQLiteStore) ListActiveSchedules(ctx context.Context) ([]*model.Schedule, error) {
	s.logger.Debug("sql", "op", "select_active", "table", "schedules")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, instance_id, start_time, stop_time, days, active, created_at
		 FROM schedules WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanSchedules(rows)
}

// SetScheduleActive flips the active flag on a schedule owned by userID.
// Returns false if no such schedule exists for that user.
func (s *SQLiteStore) SetScheduleActive(ctx context.Context, id, userID string, active bool) (bool, error) {
	s.logger.Debug("sql", "op", "update_active", "table", "schedules", "id", id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = ? WHERE id = ? AND user_id = ?`,
		boolToInt(active), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteSchedule removes a schedule owned by userID.
// Returns false if no such schedule exists for that user.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id, userID string) (bool, error) {
	s.logger.Debug("sql", "op", "delete", "table", "schedules", "id", id)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schedules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) scanSchedules(rows *sql.Rows) ([]*model.Schedule, error) {
	var out []*model.Schedule
	for rows.Next() {
		var sch model.Schedule
		var daysJSON, createdAt string
		var active int

		if err := rows.Scan(&sch.ID, &sch.UserID, &sch.InstanceID, &sch.StartTime,
			&sch.StopTime, &daysJSON, &active, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(daysJSON), &sch.Days); err != nil {
			return nil, fmt.Errorf("unmarshal days: %w", err)
		}
		sch.Active = active != 0
		sch.CreatedAt = s.parseTimestamp("schedules", sch.ID, createdAt)
		out = append(out, &sch)
	}
	return out, rows.Err()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	s.logger.Debug("sql", "op", "insert", "table", "sessions", "id", sess.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Token,
		sess.CreatedAt.Unix(), sess.ExpiresAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) GetSessionByToken(ctx context.Context, token string) (*model.Session, error) {
	s.logger.Debug("sql", "op", "select_by_token", "table", "sessions")

	var sess model.Session
	var createdAt, expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.Token, &createdAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.ExpiresAt = time.Unix(expiresAt, 0)
	return &sess, nil
}

func (s *SQLiteStore) DeleteSessionByToken(ctx context.Context, token string) error {
	s.logger.Debug("sql", "op", "delete", "table", "sessions")

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.logger.Debug("sql", "op", "delete_expired", "table", "sessions")

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
