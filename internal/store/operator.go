package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Operator may read runs through the inspection API.
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateOperator inserts a new operator.
func (s *Store) CreateOperator(ctx context.Context, op Operator) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (username, password_hash, active, created_at) VALUES (?, ?, ?, ?)`,
		op.Username, op.PasswordHash, op.Active, nowUTC(),
	)
	if err != nil {
		slog.Error("failed to create operator", "username", op.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created operator", "id", id, "username", op.Username)
	return id, nil
}

// GetOperator returns an operator by username, or nil if none exists.
func (s *Store) GetOperator(ctx context.Context, username string) (*Operator, error) {
	var op Operator
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, active, created_at FROM operators WHERE username = ?`, username,
	).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Active, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperators returns all operators.
func (s *Store) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, active, created_at FROM operators ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ops []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Active, &op.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// SetOperatorActive enables or disables an operator.
func (s *Store) SetOperatorActive(ctx context.Context, username string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET active = ? WHERE username = ?`, active, username)
	return err
}

// OperatorCount returns the total number of operators.
func (s *Store) OperatorCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count)
	return count, err
}
