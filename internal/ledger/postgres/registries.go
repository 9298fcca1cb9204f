package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	"cityledger/pkg/platform/sentinel"
	txcontext "cityledger/pkg/platform/tx"
)

type propositionRegistry struct {
	db *sql.DB
}

const propositionColumns = `id, details, status, owner, recipient, version`

func scanProposition(row interface{ Scan(...any) error }) (*models.Proposition, error) {
	var (
		p                models.Proposition
		owner, recipient string
	)
	if err := row.Scan(&p.ID, &p.Details, &p.Status, &owner, &recipient, &p.Version); err != nil {
		return nil, err
	}
	if err := p.Owner.UnmarshalText([]byte(owner)); err != nil {
		return nil, fmt.Errorf("decode owner of proposition %s: %w", p.ID, err)
	}
	if err := p.Recipient.UnmarshalText([]byte(recipient)); err != nil {
		return nil, fmt.Errorf("decode recipient of proposition %s: %w", p.ID, err)
	}
	return &p, nil
}

func refText(r id.Ref) string {
	if r.IsZero() {
		return ""
	}
	return r.String()
}

func (r *propositionRegistry) Get(ctx context.Context, propID id.PropositionID) (*models.Proposition, error) {
	q := `SELECT ` + propositionColumns + ` FROM propositions WHERE id = $1` + forUpdate(ctx)
	p, err := scanProposition(txcontext.Use(ctx, r.db).QueryRowContext(ctx, q, propID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get proposition: %w", err)
	}
	return p, nil
}

func (r *propositionRegistry) Add(ctx context.Context, prop *models.Proposition) error {
	q := `
		INSERT INTO propositions (id, details, status, owner, recipient, version)
		VALUES ($1, $2, $3, $4, $5, 1)
	`
	_, err := txcontext.Use(ctx, r.db).ExecContext(ctx, q,
		prop.ID.String(), prop.Details, string(prop.Status), refText(prop.Owner), refText(prop.Recipient),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert proposition: %w", err)
	}
	prop.Version = 1
	return nil
}

func (r *propositionRegistry) Update(ctx context.Context, prop *models.Proposition) error {
	q := `
		UPDATE propositions
		SET details = $2, status = $3, owner = $4, recipient = $5, version = version + 1
		WHERE id = $1 AND version = $6
	`
	db := txcontext.Use(ctx, r.db)
	res, err := db.ExecContext(ctx, q,
		prop.ID.String(), prop.Details, string(prop.Status), refText(prop.Owner), refText(prop.Recipient), prop.Version,
	)
	if err != nil {
		return fmt.Errorf("update proposition: %w", err)
	}
	if err := checkVersioned(ctx, db, res, `SELECT 1 FROM propositions WHERE id = $1`, prop.ID.String()); err != nil {
		return err
	}
	prop.Version++
	return nil
}

type userRegistry struct {
	db *sql.DB
}

func scanUser(row interface{ Scan(...any) error }) (*models.MultipassUser, error) {
	var (
		u     models.MultipassUser
		props []byte
	)
	if err := row.Scan(&u.ID, &props, &u.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(props, &u.Props); err != nil {
		return nil, fmt.Errorf("decode props of user %s: %w", u.ID, err)
	}
	return &u, nil
}

func encodeProps(p models.Props) ([]byte, error) {
	if p == nil {
		p = models.Props{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode props: %w", err)
	}
	return b, nil
}

func (r *userRegistry) Get(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error) {
	q := `SELECT id, props, version FROM multipass_users WHERE id = $1` + forUpdate(ctx)
	u, err := scanUser(txcontext.Use(ctx, r.db).QueryRowContext(ctx, q, userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get multipass user: %w", err)
	}
	return u, nil
}

func (r *userRegistry) Update(ctx context.Context, user *models.MultipassUser) error {
	props, err := encodeProps(user.Props)
	if err != nil {
		return err
	}
	db := txcontext.Use(ctx, r.db)
	res, err := db.ExecContext(ctx,
		`UPDATE multipass_users SET props = $2, version = version + 1 WHERE id = $1 AND version = $3`,
		user.ID.String(), props, user.Version,
	)
	if err != nil {
		return fmt.Errorf("update multipass user: %w", err)
	}
	if err := checkVersioned(ctx, db, res, `SELECT 1 FROM multipass_users WHERE id = $1`, user.ID.String()); err != nil {
		return err
	}
	user.Version++
	return nil
}

// checkVersioned distinguishes a missing row from a stale version when a
// conditional update touched nothing.
func checkVersioned(ctx context.Context, db txcontext.Querier, res sql.Result, existsQuery, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var one int
	if err := db.QueryRowContext(ctx, existsQuery, key).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("check record: %w", err)
	}
	return sentinel.ErrConflict
}

type sequence struct {
	db *sql.DB
}

func (s *sequence) Next(ctx context.Context) (id.PropositionID, error) {
	var n int64
	if err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, `SELECT nextval('proposition_id_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next proposition id: %w", err)
	}
	return id.PropositionID(strconv.FormatInt(n, 10)), nil
}

// ListPropositions returns propositions in creation order.
func (l *Ledger) ListPropositions(ctx context.Context, filter ports.PropositionFilter) ([]*models.Proposition, error) {
	q := `
		SELECT ` + propositionColumns + `
		FROM propositions
		WHERE ($1 = '' OR owner = $1) AND ($2 = '' OR status = $2)
		ORDER BY seq
	`
	rows, err := l.db.QueryContext(ctx, q, refText(filter.Owner), string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list propositions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Proposition, 0)
	for rows.Next() {
		p, err := scanProposition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposition: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate propositions: %w", err)
	}
	return out, nil
}
