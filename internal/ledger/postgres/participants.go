package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	"cityledger/pkg/platform/sentinel"
)

func (l *Ledger) AddBusiness(ctx context.Context, b *models.Business) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO businesses (id, name) VALUES ($1, $2)`, b.ID.String(), b.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

func (l *Ledger) GetBusiness(ctx context.Context, businessID id.BusinessID) (*models.Business, error) {
	var b models.Business
	err := l.db.QueryRowContext(ctx, `SELECT id, name FROM businesses WHERE id = $1`, businessID.String()).Scan(&b.ID, &b.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

func (l *Ledger) AddMultipassUser(ctx context.Context, u *models.MultipassUser) error {
	props, err := encodeProps(u.Props)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `INSERT INTO multipass_users (id, props, version) VALUES ($1, $2, 1)`, u.ID.String(), props)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert multipass user: %w", err)
	}
	u.Version = 1
	return nil
}

func (l *Ledger) GetMultipassUser(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error) {
	u, err := scanUser(l.db.QueryRowContext(ctx, `SELECT id, props, version FROM multipass_users WHERE id = $1`, userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get multipass user: %w", err)
	}
	return u, nil
}
