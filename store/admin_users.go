package store

import (
	"context"
	"database/sql"
	"time"
)

type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func (db *DB) CreateAdminUser(ctx context.Context, username, passwordHash string) error {
	if username == "" {
		return &ValidationError{Field: "username", Reason: "required"}
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO admin_users (username, password_hash) VALUES (?, ?)`), username, passwordHash)
	return Classify("admin user", err)
}

func (db *DB) GetAdminUser(ctx context.Context, username string) (*AdminUser, error) {
	var u AdminUser
	var createdAt any
	err := db.QueryRowContext(ctx, db.Q(`SELECT id, username, password_hash, created_at FROM admin_users WHERE username=?`), username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "user", Key: username}
	}
	if err != nil {
		return nil, Classify("get admin user", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (db *DB) UpdateAdminPassword(ctx context.Context, username, passwordHash string) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE admin_users SET password_hash=? WHERE username=?`), passwordHash, username)
	if err != nil {
		return Classify("update password", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{What: "user", Key: username}
	}
	return nil
}

func (db *DB) AdminUserExists(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count > 0, Classify("count admin users", err)
}
