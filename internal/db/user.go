package db

import (
	"context"
	"database/sql"
)

const (
	UserNormal  = "Normal"
	UserRevoked = "Revoked"

	RoleOperator = "Operator"
	RoleNode     = "Node"
	RoleAdmin    = "Admin"
)

// User is an authenticated principal.
type User struct {
	Name   string
	Status string
	Role   string
}

// GetUser fetches a user by name.
func GetUser(ctx context.Context, sqlDB *sql.DB, name string) (*User, error) {
	row := sqlDB.QueryRowContext(ctx, `SELECT name, status, role FROM users WHERE name=?`, name)
	var u User
	if err := row.Scan(&u.Name, &u.Status, &u.Role); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates or updates a user's status/role.
func UpsertUser(ctx context.Context, sqlDB *sql.DB, u *User) error {
	_, err := sqlDB.ExecContext(ctx, `
		INSERT INTO users(name, status, role) VALUES(?,?,?)
		ON CONFLICT(name) DO UPDATE SET status=excluded.status, role=excluded.role`,
		u.Name, u.Status, u.Role)
	return err
}
