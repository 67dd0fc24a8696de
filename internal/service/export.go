// Package service — PortabilityService is the cross-account data
// portability engine: snapshot export, import into a different user's
// space with full relational remapping, pre-operation backups, and
// point-in-time restore.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/infra/observability"
	"github.com/rvelloso/finledger-go/internal/infra/resilience"
	"github.com/rvelloso/finledger-go/internal/port"
)

var portTracer = otel.Tracer("service/portability")

// maxConcurrentImports caps in-flight import/restore transactions. Each one
// rewrites a user's entire entity graph and holds row locks for its full
// duration.
const maxConcurrentImports = 4

// PortabilityService orchestrates export, import, backup and restore.
type PortabilityService struct {
	store     port.Store
	metrics   *observability.Metrics
	logger    *zap.Logger
	importSem *resilience.Bulkhead
}

// NewPortabilityService creates a new portability service.
func NewPortabilityService(store port.Store, metrics *observability.Metrics, logger *zap.Logger) *PortabilityService {
	return &PortabilityService{
		store:     store,
		metrics:   metrics,
		logger:    logger,
		importSem: resilience.NewBulkhead(maxConcurrentImports),
	}
}

// ============================================================
// Export — GET /v1/export
// ============================================================

// Export assembles the user's full entity graph into the portable snapshot
// shape. Reads run concurrently and without a shared transaction; a
// concurrent import by the same user can yield a snapshot mixing pre- and
// post-import state.
func (s *PortabilityService) Export(ctx context.Context, ident domain.Identity) (*domain.Snapshot, error) {
	ctx, span := portTracer.Start(ctx, "PortabilityService.Export")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", ident.UserID))

	start := time.Now()

	var (
		accounts   []domain.Account
		txns       []domain.Transaction
		loans      []domain.Loan
		recurring  []domain.RecurringTransaction
		categories []domain.Category
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accounts, err = s.store.ListAccounts(gctx, ident.UserID)
		return err
	})
	g.Go(func() (err error) {
		txns, err = s.store.ListTransactions(gctx, ident.UserID)
		return err
	})
	g.Go(func() (err error) {
		loans, err = s.store.ListLoans(gctx, ident.UserID)
		return err
	})
	g.Go(func() (err error) {
		recurring, err = s.store.ListRecurringTransactions(gctx, ident.UserID)
		return err
	})
	g.Go(func() (err error) {
		categories, err = s.store.ListCategories(gctx, ident.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.IncrOperation("export", "error")
		return nil, err
	}

	// One id-to-name table, applied to every transaction and recurring
	// transaction: names are portable across users, numeric ids are not.
	categoryNames := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}

	snap := &domain.Snapshot{
		ExportInfo: domain.ExportInfo{
			Version:         domain.SnapshotVersion,
			ExportDate:      domain.NewFlexTime(time.Now().UTC()),
			SourceUserID:    domain.NewFlexString(ident.UserID),
			SourceUserEmail: ident.Email,
		},
		Accounts:              make([]domain.SnapshotAccount, 0, len(accounts)),
		Transactions:          make([]domain.SnapshotTransaction, 0, len(txns)),
		Loans:                 make([]domain.SnapshotLoan, 0, len(loans)),
		RecurringTransactions: make([]domain.SnapshotRecurring, 0, len(recurring)),
		Categories:            make([]domain.SnapshotCategory, 0, len(categories)),
	}

	for i := range accounts {
		snap.Accounts = append(snap.Accounts, projectAccount(&accounts[i]))
	}
	for i := range txns {
		snap.Transactions = append(snap.Transactions, projectTransaction(&txns[i], categoryNames))
	}
	for i := range loans {
		snap.Loans = append(snap.Loans, projectLoan(&loans[i]))
	}
	for i := range recurring {
		snap.RecurringTransactions = append(snap.RecurringTransactions, projectRecurring(&recurring[i], categoryNames))
	}
	for _, c := range categories {
		snap.Categories = append(snap.Categories, domain.SnapshotCategory{
			ID:    domain.NewFlexID(c.ID),
			Name:  c.Name,
			Type:  c.Type,
			Color: c.Color,
		})
	}

	snap.Metadata = domain.SnapshotTotals{
		TotalAccounts:              len(snap.Accounts),
		TotalTransactions:          len(snap.Transactions),
		TotalLoans:                 len(snap.Loans),
		TotalRecurringTransactions: len(snap.RecurringTransactions),
		TotalCategories:            len(snap.Categories),
	}

	s.metrics.IncrOperation("export", "success")
	s.metrics.RecordOperationDuration("export", time.Since(start))
	s.logger.Info("export completed",
		zap.String("user_id", ident.UserID),
		zap.Int("accounts", snap.Metadata.TotalAccounts),
		zap.Int("transactions", snap.Metadata.TotalTransactions),
		zap.Int("loans", snap.Metadata.TotalLoans),
	)
	return snap, nil
}

// ============================================================
// Export projections
// ============================================================

func projectAccount(a *domain.Account) domain.SnapshotAccount {
	balance := a.Balance
	return domain.SnapshotAccount{
		ID:                domain.NewFlexID(a.ID),
		Name:              a.Name,
		Type:              a.Type,
		Balance:           &balance,
		Currency:          a.Currency,
		CreditLimit:       a.CreditLimit,
		Goals:             a.Goals,
		SelectedCardStyle: a.SelectedCardStyle,
		CardStyle:         a.CardStyle,
		CreatedAt:         domain.NewFlexTime(a.CreatedAt),
		UpdatedAt:         domain.NewFlexTime(a.UpdatedAt),
	}
}

func projectTransaction(t *domain.Transaction, categoryNames map[int64]string) domain.SnapshotTransaction {
	out := domain.SnapshotTransaction{
		ID:          domain.NewFlexID(t.ID),
		AccountID:   domain.NewFlexID(t.AccountID),
		Type:        t.Type,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Description: t.Description,
		Date:        domain.NewFlexTime(t.Date),
		Metadata:    t.Metadata,
		CreatedAt:   domain.NewFlexTime(t.CreatedAt),
		UpdatedAt:   domain.NewFlexTime(t.UpdatedAt),
	}
	if t.CategoryID != nil {
		out.CategoryID = domain.NewFlexID(*t.CategoryID)
		out.CategoryName = categoryNames[*t.CategoryID]
	}
	if t.RelatedAccountID != nil {
		out.RelatedAccountID = domain.NewFlexID(*t.RelatedAccountID)
	}
	if t.TransferGroupID != nil {
		out.TransferGroupID = *t.TransferGroupID
	}
	return out
}

func projectLoan(l *domain.Loan) domain.SnapshotLoan {
	principal := l.Principal
	remaining := l.RemainingBalance
	monthly := l.MonthlyPayment
	rate := l.InterestRate

	out := domain.SnapshotLoan{
		ID:               domain.NewFlexID(l.ID),
		Name:             l.Name,
		Type:             l.Type,
		Principal:        &principal,
		RemainingBalance: &remaining,
		MonthlyPayment:   &monthly,
		InterestRate:     &rate,
		TermMonths:       l.TermMonths,
		Date:             domain.NewFlexTime(l.StartDate),
		CurrencyCode:     l.Currency,
		Status:           l.Status,
		Notes:            l.Notes,
		Metadata:         l.Metadata,
	}
	if l.AccountID != nil {
		out.AccountID = domain.NewFlexID(*l.AccountID)
	}

	if len(l.Installments) > 0 {
		list := make([]domain.SnapshotInstallment, 0, len(l.Installments))
		for _, inst := range l.Installments {
			list = append(list, projectInstallment(&inst))
		}
		out.Installments = domain.InstallmentSpec{
			Kind:    domain.InstallmentsNested,
			Enabled: true,
			List:    list,
		}
	}

	for _, p := range l.Payments {
		sp := domain.SnapshotLoanPayment{
			ID:                 domain.NewFlexID(p.ID),
			PaidAmount:         p.PaidAmount,
			PrincipalComponent: p.PrincipalComponent,
			InterestComponent:  p.InterestComponent,
			PaidDate:           domain.NewFlexTime(p.PaidDate),
		}
		if p.TransactionID != nil {
			sp.TransactionID = domain.NewFlexID(*p.TransactionID)
		}
		out.Payments = append(out.Payments, sp)
	}
	return out
}

func projectInstallment(i *domain.Installment) domain.SnapshotInstallment {
	paid := i.PartialAmountPaid
	out := domain.SnapshotInstallment{
		ID:                 domain.NewFlexID(i.ID),
		Number:             i.Number,
		Amount:             i.Amount,
		DueDate:            domain.NewFlexTime(i.DueDate),
		Status:             i.Status,
		PartialAmountPaid:  &paid,
		PrincipalComponent: i.PrincipalComponent,
		InterestComponent:  i.InterestComponent,
	}
	if i.PaidDate != nil {
		out.PaidDate = domain.NewFlexTime(*i.PaidDate)
	}
	if i.PaymentTransactionID != nil {
		out.PaymentTransactionID = domain.NewFlexID(*i.PaymentTransactionID)
	}
	return out
}

func projectRecurring(r *domain.RecurringTransaction, categoryNames map[int64]string) domain.SnapshotRecurring {
	active := r.IsActive
	out := domain.SnapshotRecurring{
		ID:          domain.NewFlexID(r.ID),
		AccountID:   domain.NewFlexID(r.AccountID),
		Type:        r.Type,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		Frequency:   r.Frequency,
		NextDate:    domain.NewFlexTime(r.NextDate),
		IsActive:    &active,
		Metadata:    r.Metadata,
	}
	if r.CategoryID != nil {
		out.CategoryID = domain.NewFlexID(*r.CategoryID)
		out.CategoryName = categoryNames[*r.CategoryID]
	}
	if r.LastGenerated != nil {
		out.NextGenerated = domain.NewFlexTime(*r.LastGenerated)
	}
	return out
}
