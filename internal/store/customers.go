package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedsync/internal/models"
)

// CustomerByPrimaryPhone returns the active customer whose primary phone is
// the given E.164 number, or (nil, nil) when none exists.
func (s *Store) CustomerByPrimaryPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return s.customerWhere(ctx, "primary_phone = ?", phone)
}

// CustomerByAltPhone matches the alternate phone column.
func (s *Store) CustomerByAltPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return s.customerWhere(ctx, "alt_phone = ?", phone)
}

func (s *Store) customerWhere(ctx context.Context, cond, arg string) (*models.Customer, error) {
	query := s.db.Rebind(`SELECT * FROM customers WHERE ` + cond + ` AND active = TRUE LIMIT 1`)
	var c models.Customer
	err := s.db.GetContext(ctx, &c, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	return &c, nil
}

// SearchCustomers returns active customers whose name or email resembles
// the given hints. Matching here is a coarse LIKE; precise scoring happens
// in the identity resolver.
func (s *Store) SearchCustomers(ctx context.Context, name, email string) ([]models.Customer, error) {
	var conds []string
	var args []interface{}
	if name != "" {
		// Match on any name token so the resolver sees partial overlaps.
		for _, token := range strings.Fields(strings.ToLower(name)) {
			conds = append(conds, "LOWER(first_name || ' ' || last_name) LIKE ?")
			args = append(args, "%"+token+"%")
		}
	}
	if email != "" {
		conds = append(conds, "LOWER(email) LIKE ?")
		args = append(args, "%"+strings.ToLower(email)+"%")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := s.db.Rebind(`SELECT * FROM customers WHERE active = TRUE AND (` + strings.Join(conds, " OR ") + `) LIMIT 50`)
	var customers []models.Customer
	if err := s.db.SelectContext(ctx, &customers, query, args...); err != nil {
		return nil, fmt.Errorf("customer search: %w", err)
	}
	return customers, nil
}

// CreateCustomer inserts a new customer row.
func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := s.db.Rebind(`INSERT INTO customers
		(id, first_name, last_name, email, primary_phone, alt_phone, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.FirstName, c.LastName, c.Email, c.PrimaryPhone, c.AltPhone, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert customer %s: %w", c.ID, err)
	}
	return nil
}
