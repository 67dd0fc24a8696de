// Package service — LoanService applies payments to loans: targeted at one
// installment or allocated FIFO across outstanding installments, with the
// funding account and loan progress updated in the same transaction.
package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/infra/observability"
	"github.com/rvelloso/finledger-go/internal/port"
)

var loanTracer = otel.Tracer("service/loans")

// LoanService orchestrates loan payment application.
type LoanService struct {
	store   port.Store
	metrics *observability.Metrics
	logger  *zap.Logger

	// clampOverpayment caps a targeted installment's cumulative paid amount
	// at its due amount instead of letting it run over.
	clampOverpayment bool
}

// NewLoanService creates a new loan service.
func NewLoanService(store port.Store, metrics *observability.Metrics, logger *zap.Logger, clampOverpayment bool) *LoanService {
	return &LoanService{store: store, metrics: metrics, logger: logger, clampOverpayment: clampOverpayment}
}

// ============================================================
// Pure allocation
// ============================================================

// allocateTargeted applies amount to the installment with the given number.
// The returned slice holds the touched installment with its paid amount,
// status, and paid date updated.
func allocateTargeted(installments []domain.Installment, number int, amount decimal.Decimal, paidDate time.Time, clamp bool) ([]domain.Installment, error) {
	for i := range installments {
		if installments[i].Number != number {
			continue
		}
		inst := installments[i]
		inst.PartialAmountPaid = inst.PartialAmountPaid.Add(amount)
		if clamp && inst.PartialAmountPaid.GreaterThan(inst.Amount) {
			inst.PartialAmountPaid = inst.Amount
		}
		inst.Status = inst.DeriveStatus()
		if inst.Status == domain.InstallmentPaid && inst.PaidDate == nil {
			pd := paidDate
			inst.PaidDate = &pd
		}
		return []domain.Installment{inst}, nil
	}
	return nil, &domain.ErrNotFound{Resource: "installment", ID: strconv.Itoa(number)}
}

// allocateFIFO walks installments in ascending number order, paying each
// outstanding one off until the amount runs out. Returns the touched
// installments and whatever amount was left after the last installment was
// satisfied.
func allocateFIFO(installments []domain.Installment, amount decimal.Decimal, paidDate time.Time) (touched []domain.Installment, leftover decimal.Decimal) {
	ordered := make([]domain.Installment, len(installments))
	copy(ordered, installments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	remaining := amount
	for _, inst := range ordered {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if inst.Status == domain.InstallmentPaid {
			continue
		}

		owed := inst.Amount.Sub(inst.PartialAmountPaid)
		if owed.LessThanOrEqual(decimal.Zero) {
			continue
		}

		if remaining.GreaterThanOrEqual(owed) {
			inst.PartialAmountPaid = inst.Amount
			inst.Status = domain.InstallmentPaid
			pd := paidDate
			inst.PaidDate = &pd
			remaining = remaining.Sub(owed)
		} else {
			inst.PartialAmountPaid = inst.PartialAmountPaid.Add(remaining)
			inst.Status = domain.InstallmentPartial
			remaining = decimal.Zero
		}
		touched = append(touched, inst)
	}
	return touched, remaining
}

// ============================================================
// Payment application — POST /v1/loans/{loanId}/payments
// ============================================================

// ApplyPayment records a payment against a loan. When the request names a
// funding account, a ledger transaction is created and the account balance
// adjusted inside the same database transaction as the payment itself.
func (s *LoanService) ApplyPayment(ctx context.Context, ident domain.Identity, loanID int64, req *domain.PaymentRequest) (*domain.Loan, error) {
	ctx, span := loanTracer.Start(ctx, "LoanService.ApplyPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("loan.id", loanID))

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}

	start := time.Now()
	paidDate := req.PaidDate.OrNow(time.Now().UTC())

	var result *domain.Loan
	err := s.store.RunInTx(ctx, func(tx port.Tx) error {
		loan, err := tx.GetLoan(ctx, ident.UserID, loanID)
		if err != nil {
			return err
		}

		var touched []domain.Installment
		if req.InstallmentNumber != nil {
			touched, err = allocateTargeted(loan.Installments, *req.InstallmentNumber, req.Amount, paidDate, s.clampOverpayment)
			if err != nil {
				return err
			}
		} else {
			var leftover decimal.Decimal
			touched, leftover = allocateFIFO(loan.Installments, req.Amount, paidDate)
			if leftover.GreaterThan(decimal.Zero) {
				// Leftover beyond what the installments consume is dropped,
				// not credited anywhere.
				s.logger.Warn("payment exceeds outstanding installments, leftover dropped",
					zap.Int64("loan_id", loanID),
					zap.String("leftover", leftover.String()),
				)
			}
		}

		var txnID *int64
		if req.AccountID != nil {
			txnID, err = s.recordFundingTransaction(ctx, tx, ident.UserID, *req.AccountID, loan, req.Amount, paidDate)
			if err != nil {
				return err
			}
		}

		for i := range touched {
			touched[i].PaymentTransactionID = txnID
			if err := tx.UpdateInstallmentPayment(ctx, &touched[i]); err != nil {
				return err
			}
		}

		payment := &domain.LoanPayment{
			LoanID:             loanID,
			TransactionID:      txnID,
			PaidAmount:         req.Amount,
			PrincipalComponent: req.PrincipalComponent,
			InterestComponent:  req.InterestComponent,
			PaidDate:           paidDate,
		}
		if _, err := tx.InsertLoanPayment(ctx, payment); err != nil {
			return err
		}

		remaining := loan.RemainingBalance.Sub(req.Amount)
		status := loan.Status
		if remaining.LessThanOrEqual(decimal.Zero) {
			remaining = decimal.Zero
			status = domain.LoanPaid
		}
		if err := tx.UpdateLoanProgress(ctx, loanID, remaining, status); err != nil {
			return err
		}

		result, err = tx.GetLoan(ctx, ident.UserID, loanID)
		return err
	})
	if err != nil {
		s.metrics.IncrOperation("loan_payment", "error")
		return nil, err
	}

	s.metrics.IncrOperation("loan_payment", "success")
	s.metrics.RecordOperationDuration("loan_payment", time.Since(start))
	return result, nil
}

// recordFundingTransaction creates the ledger transaction for a payment
// funded from an account and adjusts that account's balance. Repayment of
// money lent out is income to the funding account; anything else is an
// expense.
func (s *LoanService) recordFundingTransaction(ctx context.Context, tx port.Tx, userID string, accountID int64, loan *domain.Loan, amount decimal.Decimal, paidDate time.Time) (*int64, error) {
	account, err := tx.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	kind := domain.TransactionExpense
	delta := amount.Neg()
	if loan.Type == domain.LoanLent {
		kind = domain.TransactionIncome
		delta = amount
	}

	txn := &domain.Transaction{
		UserID:      userID,
		AccountID:   account.ID,
		Type:        kind,
		Amount:      amount,
		Currency:    account.Currency,
		Description: fmt.Sprintf("Loan payment: %s", loan.Name),
		Date:        paidDate,
	}
	id, err := tx.InsertTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	if err := tx.AdjustAccountBalance(ctx, account.ID, delta); err != nil {
		return nil, err
	}
	return &id, nil
}
