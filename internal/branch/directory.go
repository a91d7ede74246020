// Package branch keeps the list of store locations and who manages each.
package branch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
)

// Users resolves manager references.
type Users interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// Directory stores branches.
type Directory struct {
	db     *sqlx.DB
	users  Users
	logger *slog.Logger
}

// NewDirectory creates a branch directory.
func NewDirectory(db *sqlx.DB, users Users, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{db: db, users: users, logger: logger}
}

// Create adds a branch managed by managerID, which must be an existing user.
func (d *Directory) Create(ctx context.Context, location string, managerID int64) (*domain.Branch, error) {
	location = strings.TrimSpace(location)
	var missing []string
	if location == "" {
		missing = append(missing, "location")
	}
	if managerID <= 0 {
		missing = append(missing, "managerId")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	ok, err := d.users.UserExists(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("manager %d not found", managerID)
	}

	b := &domain.Branch{Location: location, ManagerID: managerID, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	err = d.db.QueryRowxContext(ctx, d.db.Rebind(`INSERT INTO branches (location, created_at, manager_id) VALUES (?, ?, ?) RETURNING id`),
		b.Location, b.CreatedAt, b.ManagerID).Scan(&b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}
	d.logger.Info("branch created", slog.Int64("branch_id", b.ID), slog.Int64("manager_id", managerID))
	return b, nil
}

// List returns all branches in creation order.
func (d *Directory) List(ctx context.Context) ([]domain.Branch, error) {
	branches := []domain.Branch{}
	if err := d.db.SelectContext(ctx, &branches, `SELECT id, location, created_at, manager_id FROM branches ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

// Get returns one branch.
func (d *Directory) Get(ctx context.Context, id int64) (*domain.Branch, error) {
	var b domain.Branch
	err := d.db.GetContext(ctx, &b, d.db.Rebind(`SELECT id, location, created_at, manager_id FROM branches WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("branch %d not found", id)
		}
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}
	return &b, nil
}

// Delete removes a branch; an unknown id is reported as not found.
func (d *Directory) Delete(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM branches WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete branch: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("branch %d not found", id)
	}
	d.logger.Info("branch deleted", slog.Int64("branch_id", id))
	return nil
}
