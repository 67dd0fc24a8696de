package postgres

import (
	"context"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// ============================================================
// Recurring transactions
// ============================================================

func (s *queries) ListRecurringTransactions(ctx context.Context, userID string) ([]domain.RecurringTransaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListRecurringTransactions")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, account_id, type, amount, currency, description,
		       category_id, frequency, next_date, is_active, last_generated,
		       metadata
		FROM recurring_transactions
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecurringTransaction
	for rows.Next() {
		var r domain.RecurringTransaction
		err := rows.Scan(
			&r.ID, &r.UserID, &r.AccountID, &r.Type, &r.Amount, &r.Currency,
			&r.Description, &r.CategoryID, &r.Frequency, &r.NextDate,
			&r.IsActive, &r.LastGenerated, &r.Metadata,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRecurringTransaction persists a recurring transaction, including
// only the optional columns the live schema has.
func (s *queries) InsertRecurringTransaction(ctx context.Context, r *domain.RecurringTransaction) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertRecurringTransaction")
	defer span.End()

	caps, err := s.Columns(ctx, "recurring_transactions")
	if err != nil {
		return 0, err
	}

	b := newInsert("recurring_transactions", caps).
		set("user_id", r.UserID).
		set("account_id", r.AccountID).
		set("type", r.Type).
		set("amount", r.Amount).
		set("description", r.Description).
		set("frequency", r.Frequency).
		set("next_date", r.NextDate).
		set("is_active", r.IsActive).
		setIfPresent("currency", r.Currency).
		setIfPresent("category_id", r.CategoryID).
		setIfPresent("last_generated", r.LastGenerated).
		setJSONIfPresent("metadata", r.Metadata)

	var id int64
	if err := s.q.QueryRow(ctx, b.sql(), b.vals...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
