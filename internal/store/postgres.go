// Package store is the PostgreSQL-backed persistence layer for
// registered users: their password hash and their saved filter
// configuration, so a login from a fresh process restores the same
// anomaly filters the session last configured.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"candlecore/internal/kline"

	_ "github.com/lib/pq"
)

// PostgresUserStore implements session.UserStore against a PostgreSQL
// Users table.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore opens and pings the database, and configures the
// connection pool. It does not create the schema; call Initialize for
// that.
func NewPostgresUserStore(connectionString string) (*PostgresUserStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresUserStore{db: db}, nil
}

// Initialize creates the Users table if it does not already exist.
func (s *PostgresUserStore) Initialize(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			user_name VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			config JSONB NOT NULL DEFAULT '{}'::jsonb,
			create_user TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_login TIMESTAMP WITH TIME ZONE
		);

		CREATE INDEX IF NOT EXISTS idx_users_user_name ON users(user_name);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresUserStore) Close() error {
	return s.db.Close()
}

// Load returns the named user, or (nil, nil) if no such user is
// registered yet.
func (s *PostgresUserStore) Load(name string) (*kline.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		u        kline.User
		cfgBytes []byte
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, password_hash, config, create_user, last_login
		FROM users WHERE user_name = $1
	`, name).Scan(&u.ID, &u.Name, &u.PasswordHash, &cfgBytes, &u.CreatedAt, &lastLogin)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load user %q: %w", name, err)
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	if len(cfgBytes) > 0 {
		if err := json.Unmarshal(cfgBytes, &u.Config); err != nil {
			return nil, fmt.Errorf("store: decode config for %q: %w", name, err)
		}
	}
	return &u, nil
}

// Create inserts a brand-new user and fills in its generated ID.
func (s *PostgresUserStore) Create(u *kline.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfgBytes, err := json.Marshal(u.Config)
	if err != nil {
		return fmt.Errorf("store: encode config: %w", err)
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO users (user_name, password_hash, config, create_user)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, u.Name, u.PasswordHash, cfgBytes, u.CreatedAt).Scan(&u.ID)
}

// Upsert persists u's current password hash, config, and last-login
// timestamp, inserting a new row if one is not already present.
func (s *PostgresUserStore) Upsert(u *kline.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfgBytes, err := json.Marshal(u.Config)
	if err != nil {
		return fmt.Errorf("store: encode config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_name, password_hash, config, create_user, last_login)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_name) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    config = EXCLUDED.config,
		    last_login = EXCLUDED.last_login
	`, u.Name, u.PasswordHash, cfgBytes, u.CreatedAt, u.LastLogin)
	if err != nil {
		return fmt.Errorf("store: upsert user %q: %w", u.Name, err)
	}
	return nil
}

// LoadAll returns every registered user. The session registry does not
// call it; it loads one user at a time through Load.
func (s *PostgresUserStore) LoadAll(ctx context.Context) ([]*kline.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_name, password_hash, config, create_user, last_login
		FROM users
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load all users: %w", err)
	}
	defer rows.Close()

	var out []*kline.User
	for rows.Next() {
		var (
			u         kline.User
			cfgBytes  []byte
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.PasswordHash, &cfgBytes, &u.CreatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		if lastLogin.Valid {
			u.LastLogin = lastLogin.Time
		}
		if len(cfgBytes) > 0 {
			if err := json.Unmarshal(cfgBytes, &u.Config); err != nil {
				return nil, fmt.Errorf("store: decode config for %q: %w", u.Name, err)
			}
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
