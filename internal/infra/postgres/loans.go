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
// Loans, installments, payments
// ============================================================

const loanColumns = `id, user_id, account_id, name, type, principal,
	remaining_balance, monthly_payment, interest_rate, term_months,
	start_date, currency, status, notes, metadata, created_at, updated_at`

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(
		&l.ID, &l.UserID, &l.AccountID, &l.Name, &l.Type, &l.Principal,
		&l.RemainingBalance, &l.MonthlyPayment, &l.InterestRate,
		&l.TermMonths, &l.StartDate, &l.Currency, &l.Status, &l.Notes,
		&l.Metadata, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoans returns the user's loans with installments and payments
// populated.
func (s *queries) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Store.ListLoans")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Installments, err = s.listInstallments(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Payments, err = s.listLoanPayments(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *queries) GetLoan(ctx context.Context, userID string, loanID int64) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Store.GetLoan")
	defer span.End()

	l, err := scanLoan(s.q.QueryRow(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE user_id = $1 AND id = $2
	`, userID, loanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(loanID, 10)}
	}
	if err != nil {
		return nil, err
	}
	if l.Installments, err = s.listInstallments(ctx, l.ID); err != nil {
		return nil, err
	}
	if l.Payments, err = s.listLoanPayments(ctx, l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *queries) listInstallments(ctx context.Context, loanID int64) ([]domain.Installment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, loan_id, installment_number, amount, due_date, status,
		       paid_date, partial_amount_paid, principal_component,
		       interest_component, payment_transaction_id
		FROM loan_installments
		WHERE loan_id = $1
		ORDER BY installment_number
	`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Installment
	for rows.Next() {
		var inst domain.Installment
		var principal, interest decimal.NullDecimal
		err := rows.Scan(
			&inst.ID, &inst.LoanID, &inst.Number, &inst.Amount, &inst.DueDate,
			&inst.Status, &inst.PaidDate, &inst.PartialAmountPaid,
			&principal, &interest, &inst.PaymentTransactionID,
		)
		if err != nil {
			return nil, err
		}
		if principal.Valid {
			inst.PrincipalComponent = &principal.Decimal
		}
		if interest.Valid {
			inst.InterestComponent = &interest.Decimal
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *queries) listLoanPayments(ctx context.Context, loanID int64) ([]domain.LoanPayment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, loan_id, transaction_id, paid_amount, principal_component,
		       interest_component, paid_date
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY paid_date, id
	`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LoanPayment
	for rows.Next() {
		var p domain.LoanPayment
		var principal, interest decimal.NullDecimal
		err := rows.Scan(
			&p.ID, &p.LoanID, &p.TransactionID, &p.PaidAmount,
			&principal, &interest, &p.PaidDate,
		)
		if err != nil {
			return nil, err
		}
		if principal.Valid {
			p.PrincipalComponent = &principal.Decimal
		}
		if interest.Valid {
			p.InterestComponent = &interest.Decimal
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertLoan persists a loan row, including only the optional columns the
// live schema has. Installments and payments are inserted separately.
func (s *queries) InsertLoan(ctx context.Context, l *domain.Loan) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertLoan")
	defer span.End()

	caps, err := s.Columns(ctx, "loans")
	if err != nil {
		return 0, err
	}

	b := newInsert("loans", caps).
		set("user_id", l.UserID).
		set("name", l.Name).
		set("type", l.Type).
		set("principal", l.Principal).
		set("remaining_balance", l.RemainingBalance).
		set("start_date", l.StartDate).
		set("currency", l.Currency).
		set("status", l.Status).
		setIfPresent("account_id", l.AccountID).
		setIfPresent("monthly_payment", l.MonthlyPayment).
		setIfPresent("interest_rate", l.InterestRate).
		setIfPresent("term_months", l.TermMonths).
		setIfPresent("notes", l.Notes).
		setJSONIfPresent("metadata", l.Metadata)

	var id int64
	if err := s.q.QueryRow(ctx, b.sql(), b.vals...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *queries) InsertInstallment(ctx context.Context, i *domain.Installment) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO loan_installments (
			loan_id, installment_number, amount, due_date, status, paid_date,
			partial_amount_paid, principal_component, interest_component,
			payment_transaction_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		i.LoanID, i.Number, i.Amount, i.DueDate, i.Status, i.PaidDate,
		i.PartialAmountPaid, nullDecimal(i.PrincipalComponent),
		nullDecimal(i.InterestComponent), i.PaymentTransactionID,
	).Scan(&id)
	return id, err
}

func (s *queries) InsertLoanPayment(ctx context.Context, p *domain.LoanPayment) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO loan_payments (
			loan_id, transaction_id, paid_amount, principal_component,
			interest_component, paid_date
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		p.LoanID, p.TransactionID, p.PaidAmount,
		nullDecimal(p.PrincipalComponent), nullDecimal(p.InterestComponent),
		p.PaidDate,
	).Scan(&id)
	return id, err
}

// UpdateInstallmentPayment persists the payment-derived fields of one
// installment.
func (s *queries) UpdateInstallmentPayment(ctx context.Context, i *domain.Installment) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE loan_installments
		SET status = $2, paid_date = $3, partial_amount_paid = $4,
		    payment_transaction_id = $5
		WHERE id = $1
	`, i.ID, i.Status, i.PaidDate, i.PartialAmountPaid, i.PaymentTransactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "installment", ID: strconv.FormatInt(i.ID, 10)}
	}
	return nil
}

// UpdateLoanProgress updates the loan's remaining balance and status after
// a payment.
func (s *queries) UpdateLoanProgress(ctx context.Context, loanID int64, remaining decimal.Decimal, status string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE loans
		SET remaining_balance = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, loanID, remaining, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(loanID, 10)}
	}
	return nil
}
