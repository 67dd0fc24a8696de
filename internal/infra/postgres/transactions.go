package postgres

import (
	"context"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// ============================================================
// Transactions
// ============================================================

func (s *queries) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListTransactions")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, account_id, type, amount, currency, description,
		       category_id, related_account_id, transfer_group_id, date,
		       metadata, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY date, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
			&t.Description, &t.CategoryID, &t.RelatedAccountID,
			&t.TransferGroupID, &t.Date, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransaction persists a transaction, including only the optional
// columns the live schema has.
func (s *queries) InsertTransaction(ctx context.Context, t *domain.Transaction) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertTransaction")
	defer span.End()

	caps, err := s.Columns(ctx, "transactions")
	if err != nil {
		return 0, err
	}

	b := newInsert("transactions", caps).
		set("user_id", t.UserID).
		set("account_id", t.AccountID).
		set("type", t.Type).
		set("amount", t.Amount).
		set("currency", t.Currency).
		set("description", t.Description).
		set("date", t.Date).
		setIfPresent("category_id", t.CategoryID).
		setIfPresent("related_account_id", t.RelatedAccountID).
		setIfPresent("transfer_group_id", t.TransferGroupID).
		setJSONIfPresent("metadata", t.Metadata)
	if !t.CreatedAt.IsZero() {
		b.setIfPresent("created_at", t.CreatedAt)
	}
	if !t.UpdatedAt.IsZero() {
		b.setIfPresent("updated_at", t.UpdatedAt)
	}

	var id int64
	if err := s.q.QueryRow(ctx, b.sql(), b.vals...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
