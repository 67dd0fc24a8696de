// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// Reader provides the per-user entity reads shared by the exporter, the
// backup orchestrator, and the restore path. Implemented both by the pooled
// store (transactionless export reads) and by a live transaction.
type Reader interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	// ListLoans returns loans with installments and payments populated.
	ListLoans(ctx context.Context, userID string) ([]domain.Loan, error)
	ListRecurringTransactions(ctx context.Context, userID string) ([]domain.RecurringTransaction, error)
	// ListCategories returns the categories visible to the user: their own
	// plus the global ones.
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// Tx is one transactional unit of work. All reads, deletes, and inserts of
// an import/restore critical section go through a single Tx; a returned
// error from the RunInTx callback rolls the whole thing back.
type Tx interface {
	Reader

	// Columns reports the set of columns currently present on a table, so
	// importers can degrade gracefully across schema variants.
	Columns(ctx context.Context, table string) (map[string]bool, error)

	// BestEffort runs fn inside a savepoint. A failure inside fn is
	// returned, but the surrounding transaction stays usable: the savepoint
	// is rolled back, nothing else is.
	BestEffort(ctx context.Context, fn func(tx Tx) error) error

	// DeleteUserData clears the user's rows across all five entity types.
	DeleteUserData(ctx context.Context, userID string) error

	InsertAccount(ctx context.Context, a *domain.Account) (int64, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) (int64, error)
	InsertCategory(ctx context.Context, c *domain.Category) (int64, error)
	InsertLoan(ctx context.Context, l *domain.Loan) (int64, error)
	InsertInstallment(ctx context.Context, i *domain.Installment) (int64, error)
	InsertLoanPayment(ctx context.Context, p *domain.LoanPayment) (int64, error)
	InsertRecurringTransaction(ctx context.Context, r *domain.RecurringTransaction) (int64, error)
	InsertBackup(ctx context.Context, b *domain.BackupRecord) (int64, error)

	// FindCategoryByName looks up a category owned by the user (or global)
	// with the exact name. ok is false when none exists.
	FindCategoryByName(ctx context.Context, userID, name string) (id int64, ok bool, err error)
	CategoryExists(ctx context.Context, id int64) (bool, error)
	AccountExists(ctx context.Context, userID string, id int64) (bool, error)

	CurrencyExists(ctx context.Context, code string) (bool, error)
	InsertCurrency(ctx context.Context, c *domain.Currency) error

	// Loan payment application.
	GetLoan(ctx context.Context, userID string, loanID int64) (*domain.Loan, error)
	GetAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error)
	UpdateInstallmentPayment(ctx context.Context, i *domain.Installment) error
	UpdateLoanProgress(ctx context.Context, loanID int64, remaining decimal.Decimal, status string) error
	AdjustAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
}

// Store is the full persistence port.
type Store interface {
	Reader

	// RunInTx executes fn inside one database transaction, committing on
	// nil and rolling back on error.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error

	// Users (auth collaborator).
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// Backups.
	ListBackups(ctx context.Context, userID string) ([]domain.BackupRecord, error)
	GetBackup(ctx context.Context, userID string, backupID int64) (*domain.BackupRecord, error)
}
