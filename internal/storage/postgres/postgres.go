package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stox_auth/internal/config"
	"stox_auth/internal/models"
	"stox_auth/internal/storage"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// SaveUser inserts the user, assigns the default role and appends the
// "Registered" activity entry in a single transaction. Duplicate emails are
// rejected by the unique constraint, not by a check-then-insert.
func (r *PostgresRepo) SaveUser(ctx context.Context, u models.User, defaultRole string) (int64, error) {
	const op = "storage.postgres.SaveUser"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (business_name, business_number, email, phone, address, transit_number, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;
	`

	var id int64

	err = tx.QueryRow(ctx, query,
		u.BusinessName,
		u.BusinessNumber,
		u.Email,
		u.Phone,
		u.Address,
		u.TransitNumber,
		string(u.PassHash),
		u.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	var roleID int64

	err = tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1;`, defaultRole).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrRoleNotFound
		}

		return 0, fmt.Errorf("%s: failed to resolve default role: %w", op, err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2);`, id, roleID)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to assign role: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_activity_logs (user_id, action, created_at) VALUES ($1, $2, $3);`,
		id, "Registered", time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to log activity: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, business_name, business_number, email, phone, address, transit_number, password_hash, created_at, is_deleted
		FROM users
		WHERE email = $1 AND NOT is_deleted;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, business_name, business_number, email, phone, address, transit_number, password_hash, created_at, is_deleted
		FROM users
		WHERE id = $1 AND NOT is_deleted;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var (
		u        models.User
		passHash string
	)

	err := row.Scan(
		&u.ID,
		&u.BusinessName,
		&u.BusinessNumber,
		&u.Email,
		&u.Phone,
		&u.Address,
		&u.TransitNumber,
		&passHash,
		&u.CreatedAt,
		&u.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	u.PassHash = []byte(passHash)

	return u, nil
}

func (r *PostgresRepo) UserExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.postgres.UserExists"

	var exists bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND NOT is_deleted);`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// RoleNames returns the user's role names ordered alphabetically, so the
// caller's highest-privilege-wins resolution is deterministic.
func (r *PostgresRepo) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	const op = "storage.postgres.RoleNames"

	query := `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		names = append(names, name)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return names, nil
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SaveRefreshToken"

	const query = `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3);
	`

	if _, err := r.pool.Exec(ctx, query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeRefreshToken flips the revoked flag in one compare-and-swap update;
// the token must still be active for the update to match. Concurrent calls
// with the same token therefore succeed at most once.
func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	const query = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
		RETURNING id, token, user_id, expires_at;
	`

	var rt models.RefreshToken

	err := r.pool.QueryRow(ctx, query, token).Scan(&rt.ID, &rt.Token, &rt.UserID, &rt.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	rt.Revoked = true

	return rt, nil
}

// RevokeAllRefreshTokens marks every active token of the user as revoked.
// Rows are kept; the reaper handles retention separately.
func (r *PostgresRepo) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	const op = "storage.postgres.RevokeAllRefreshTokens"

	const query = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND NOT revoked AND expires_at > NOW();
	`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) SavePasswordResetToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SavePasswordResetToken"

	const query = `
		INSERT INTO password_reset_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3);
	`

	if _, err := r.pool.Exec(ctx, query, userID, token, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RedeemPasswordResetToken consumes an unexpired token and overwrites the
// owner's password hash. The delete and the password update commit together
// or not at all; the delete doubles as the single-use guard.
func (r *PostgresRepo) RedeemPasswordResetToken(ctx context.Context, token string, newHash []byte) (int64, error) {
	const op = "storage.postgres.RedeemPasswordResetToken"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var userID int64

	err = tx.QueryRow(ctx, `
		DELETE FROM password_reset_tokens
		WHERE token = $1 AND expires_at > NOW()
		RETURNING user_id;
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrResetTokenNotFound
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2;`, string(newHash), userID)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to update password: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return userID, nil
}

func (r *PostgresRepo) LogActivity(ctx context.Context, userID int64, action string) error {
	const op = "storage.postgres.LogActivity"

	const query = `
		INSERT INTO user_activity_logs (user_id, action, created_at)
		VALUES ($1, $2, $3);
	`

	if _, err := r.pool.Exec(ctx, query, userID, action, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UsersLoggedInToday returns one entry per user that logged in since UTC
// midnight, with the most recent login timestamp.
func (r *PostgresRepo) UsersLoggedInToday(ctx context.Context) ([]models.ActivityEntry, error) {
	const op = "storage.postgres.UsersLoggedInToday"

	const query = `
		SELECT DISTINCT ON (l.user_id) l.user_id, u.business_name, l.created_at
		FROM user_activity_logs l
		JOIN users u ON u.id = l.user_id
		WHERE l.action = 'Logged in'
		  AND l.created_at >= date_trunc('day', NOW() AT TIME ZONE 'utc')
		ORDER BY l.user_id, l.created_at DESC;
	`

	return r.queryActivity(ctx, op, query)
}

func (r *PostgresRepo) LatestActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	const op = "storage.postgres.LatestActivity"

	const query = `
		SELECT l.user_id, u.business_name, l.action, l.created_at
		FROM user_activity_logs l
		JOIN users u ON u.id = l.user_id
		ORDER BY l.created_at DESC
		LIMIT $1;
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry

	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.UserID, &e.BusinessName, &e.Action, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return entries, nil
}

func (r *PostgresRepo) queryActivity(ctx context.Context, op, query string) ([]models.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry

	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.UserID, &e.BusinessName, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return entries, nil
}

func (r *PostgresRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "storage.postgres.ListUsers"

	const query = `
		SELECT id, business_name, business_number, email, phone, address, transit_number, password_hash, created_at, is_deleted
		FROM users
		WHERE NOT is_deleted
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return users, nil
}

// SoftDeleteUser retires the account. The row stays for referential history.
func (r *PostgresRepo) SoftDeleteUser(ctx context.Context, userID int64) error {
	const op = "storage.postgres.SoftDeleteUser"

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted;`, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// DeleteDeadRefreshTokens removes tokens that expired before the cutoff.
// Revoked-but-unexpired rows are left alone; validation never reads deleted
// state anyway.
func (r *PostgresRepo) DeleteDeadRefreshTokens(ctx context.Context, expiredBefore time.Time) (int64, error) {
	const op = "storage.postgres.DeleteDeadRefreshTokens"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1;`, expiredBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	const op = "storage.postgres.DeleteExpiredResetTokens"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < NOW();`,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
