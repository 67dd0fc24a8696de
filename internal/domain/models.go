// Package domain defines the core business entities for the finance ledger.
// These models are independent of storage and transport and represent the
// canonical data structures used throughout the service layer.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Users / Identity
// ============================================================

// User represents a registered ledger user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated principal consumed by the core.
// It is produced by the auth layer and trusted as-is.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// ============================================================
// Accounts
// ============================================================

// Account represents a money account (checking, savings, credit, cash).
type Account struct {
	ID                int64            `json:"id"`
	UserID            string           `json:"user_id"`
	Name              string           `json:"name"`
	Type              string           `json:"type"`
	Balance           decimal.Decimal  `json:"balance"`
	Currency          string           `json:"currency"`
	CreditLimit       *decimal.Decimal `json:"credit_limit,omitempty"`
	Goals             json.RawMessage  `json:"goals,omitempty"`
	SelectedCardStyle json.RawMessage  `json:"selected_card_style,omitempty"`
	CardStyle         json.RawMessage  `json:"card_style,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ============================================================
// Transactions
// ============================================================

// Transaction kinds. Amounts are stored positive; the kind carries the sign.
const (
	TransactionIncome   = "income"
	TransactionExpense  = "expense"
	TransactionTransfer = "transfer"
)

// Transaction represents a single ledger entry. A transfer always exists as
// two rows sharing one TransferGroupID, opposite kinds, equal amount, each
// other's account as related account.
type Transaction struct {
	ID               int64           `json:"id"`
	UserID           string          `json:"user_id"`
	AccountID        int64           `json:"account_id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description"`
	CategoryID       *int64          `json:"category_id,omitempty"`
	RelatedAccountID *int64          `json:"related_account_id,omitempty"`
	TransferGroupID  *string         `json:"transfer_group_id,omitempty"`
	Date             time.Time       `json:"date"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ============================================================
// Categories
// ============================================================

// Category classifies transactions. UserID is nil for global categories
// shared by all users.
type Category struct {
	ID     int64   `json:"id"`
	UserID *string `json:"user_id,omitempty"`
	Name   string  `json:"name"`
	Type   string  `json:"type"` // income, expense
	Color  string  `json:"color"`
}

// ============================================================
// Loans
// ============================================================

// Loan kinds: money lent out vs. money borrowed.
const (
	LoanLent     = "lent"
	LoanBorrowed = "borrowed"
)

// Loan statuses.
const (
	LoanPending = "pending"
	LoanOverdue = "overdue"
	LoanPaid    = "paid"
)

// Loan represents a lent or borrowed amount with an optional amortization
// schedule and a payment history.
type Loan struct {
	ID               int64           `json:"id"`
	UserID           string          `json:"user_id"`
	AccountID        *int64          `json:"account_id,omitempty"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Principal        decimal.Decimal `json:"principal"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	MonthlyPayment   decimal.Decimal `json:"monthly_payment"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermMonths       int             `json:"term_months"`
	StartDate        time.Time       `json:"start_date"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Populated by loan reads; not columns of the loans table.
	Installments []Installment `json:"installments,omitempty"`
	Payments     []LoanPayment `json:"payments,omitempty"`
}

// Installment statuses. The status is derived: paid iff the cumulative paid
// amount covers the installment amount, partial iff strictly between zero
// and the amount.
const (
	InstallmentPending = "pending"
	InstallmentPartial = "partial"
	InstallmentPaid    = "paid"
)

// Installment is one scheduled due amount within a loan's repayment plan.
type Installment struct {
	ID                   int64            `json:"id"`
	LoanID               int64            `json:"loan_id"`
	Number               int              `json:"installment_number"`
	Amount               decimal.Decimal  `json:"amount"`
	DueDate              time.Time        `json:"due_date"`
	Status               string           `json:"status"`
	PaidDate             *time.Time       `json:"paid_date,omitempty"`
	PartialAmountPaid    decimal.Decimal  `json:"partial_amount_paid"`
	PrincipalComponent   *decimal.Decimal `json:"principal_component,omitempty"`
	InterestComponent    *decimal.Decimal `json:"interest_component,omitempty"`
	PaymentTransactionID *int64           `json:"payment_transaction_id,omitempty"`
}

// DeriveStatus returns the installment status implied by the paid amount.
// A zero-amount installment with nothing paid derives pending, never paid.
func (i *Installment) DeriveStatus() string {
	switch {
	case i.PartialAmountPaid.GreaterThanOrEqual(i.Amount) && i.Amount.GreaterThan(decimal.Zero):
		return InstallmentPaid
	case i.PartialAmountPaid.GreaterThan(decimal.Zero):
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}

// LoanPayment is one recorded payment against a loan.
type LoanPayment struct {
	ID                 int64            `json:"id"`
	LoanID             int64            `json:"loan_id"`
	TransactionID      *int64           `json:"transaction_id,omitempty"`
	PaidAmount         decimal.Decimal  `json:"paid_amount"`
	PrincipalComponent *decimal.Decimal `json:"principal_component,omitempty"`
	InterestComponent  *decimal.Decimal `json:"interest_component,omitempty"`
	PaidDate           time.Time        `json:"paid_date"`
}

// ============================================================
// Recurring transactions
// ============================================================

// Recurrence frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

// RecurringTransaction is a template that periodically generates
// transactions against an account.
type RecurringTransaction struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	Frequency     string          `json:"frequency"`
	NextDate      time.Time       `json:"next_date"`
	IsActive      bool            `json:"is_active"`
	LastGenerated *time.Time      `json:"last_generated,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// ============================================================
// Currencies
// ============================================================

// Currency is a reference-table row. Imports create minimal stubs for
// unknown codes.
type Currency struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	DecimalPlaces int    `json:"decimal_places"`
}

// ============================================================
// Backups
// ============================================================

// Backup kinds.
const (
	BackupPreImport  = "pre_import"
	BackupPreRestore = "pre_restore"
)

// BackupRecord is a retained point-in-time capture of a user's raw entity
// rows, taken automatically before any destructive import or restore.
// Never mutated after creation.
type BackupRecord struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BackupPayload is the serialized shape stored in a BackupRecord: raw
// storage rows, not the export projection.
type BackupPayload struct {
	Accounts              []Account              `json:"accounts"`
	Transactions          []Transaction          `json:"transactions"`
	Loans                 []Loan                 `json:"loans"`
	RecurringTransactions []RecurringTransaction `json:"recurringTransactions"`
	Categories            []Category             `json:"categories"`
}
