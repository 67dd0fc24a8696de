package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// ============================================================
// Accounts
// ============================================================

const accountColumns = `id, user_id, name, type, balance, currency, credit_limit,
	goals, selected_card_style, card_style, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var creditLimit decimal.NullDecimal
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.Currency,
		&creditLimit, &a.Goals, &a.SelectedCardStyle, &a.CardStyle,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if creditLimit.Valid {
		a.CreditLimit = &creditLimit.Decimal
	}
	return &a, nil
}

func (s *queries) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.ListAccounts")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *queries) GetAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.GetAccount")
	defer span.End()

	a, err := scanAccount(s.q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1 AND id = $2
	`, userID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(accountID, 10)}
	}
	return a, err
}

func (s *queries) AccountExists(ctx context.Context, userID string, id int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1 AND id = $2)`,
		userID, id,
	).Scan(&exists)
	return exists, err
}

// InsertAccount persists an account, including only the optional columns
// the live schema has.
func (s *queries) InsertAccount(ctx context.Context, a *domain.Account) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertAccount")
	defer span.End()

	caps, err := s.Columns(ctx, "accounts")
	if err != nil {
		return 0, err
	}

	b := newInsert("accounts", caps).
		set("user_id", a.UserID).
		set("name", a.Name).
		set("type", a.Type).
		set("balance", a.Balance).
		set("currency", a.Currency).
		setIfPresent("credit_limit", nullDecimal(a.CreditLimit)).
		setJSONIfPresent("goals", a.Goals).
		setJSONIfPresent("selected_card_style", a.SelectedCardStyle).
		setJSONIfPresent("card_style", a.CardStyle)
	if !a.CreatedAt.IsZero() {
		b.setIfPresent("created_at", a.CreatedAt)
	}
	if !a.UpdatedAt.IsZero() {
		b.setIfPresent("updated_at", a.UpdatedAt)
	}

	var id int64
	if err := s.q.QueryRow(ctx, b.sql(), b.vals...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AdjustAccountBalance applies a signed delta to the account balance.
func (s *queries) AdjustAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "Store.AdjustAccountBalance")
	defer span.End()

	tag, err := s.q.Exec(ctx, `
		UPDATE accounts SET balance = balance + $2, updated_at = now()
		WHERE id = $1
	`, accountID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(accountID, 10)}
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
