package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/port"
)

// ============================================================
// Import — POST /v1/import
// ============================================================

// Import replaces the user's entire entity graph with the contents of a
// snapshot. The whole operation — pre-import backup, delete of existing
// rows, and every insert — runs inside one database transaction; any
// storage failure rolls the lot back and leaves prior state untouched.
func (s *PortabilityService) Import(ctx context.Context, ident domain.Identity, snap *domain.Snapshot) (*domain.ImportSummary, error) {
	ctx, span := portTracer.Start(ctx, "PortabilityService.Import")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", ident.UserID))

	if snap == nil || snap.ExportInfo.Version == "" {
		return nil, &domain.ErrValidation{Field: "exportInfo", Message: "missing snapshot metadata"}
	}
	if snap.ExportInfo.SourceUserID.IsSet && snap.ExportInfo.SourceUserID.Raw == ident.UserID {
		return nil, &domain.ErrValidation{Field: "exportInfo.sourceUserId", Message: "cannot import a snapshot into the user that exported it"}
	}

	return s.runImport(ctx, ident.UserID, snap, domain.BackupPreImport, "import")
}

// runImport is the shared critical section behind Import and Restore. The
// operation label distinguishes the two in logs and metrics.
func (s *PortabilityService) runImport(ctx context.Context, userID string, snap *domain.Snapshot, backupKind, operation string) (*domain.ImportSummary, error) {
	if err := s.importSem.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.importSem.Release()

	start := time.Now()
	now := time.Now().UTC()
	summary := &domain.ImportSummary{}

	err := s.store.RunInTx(ctx, func(tx port.Tx) error {
		rc := newRemapContext()

		// Safety backup of current state. Best-effort: losing the backup
		// must never block the user's own intentional operation.
		s.snapshotBeforeDestructiveOp(ctx, tx, userID, backupKind, summary)

		if err := tx.DeleteUserData(ctx, userID); err != nil {
			return err
		}

		if err := s.importCategories(ctx, tx, rc, userID, snap.Categories, summary); err != nil {
			return err
		}
		if err := s.importAccounts(ctx, tx, rc, userID, snap.Accounts, now, summary); err != nil {
			return err
		}
		if err := s.importTransactions(ctx, tx, rc, userID, snap.Transactions, now, summary); err != nil {
			return err
		}
		if err := s.importLoans(ctx, tx, rc, userID, snap.Loans, now, summary); err != nil {
			return err
		}
		return s.importRecurring(ctx, tx, rc, userID, snap.RecurringTransactions, now, summary)
	})
	if err != nil {
		s.metrics.IncrOperation(operation, "error")
		s.logger.Error("import rolled back",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, wrapTxFailure(operation, err)
	}

	s.recordImportMetrics(operation, summary, time.Since(start))
	s.logger.Info("import committed",
		zap.String("user_id", userID),
		zap.String("operation", operation),
		zap.Int("accounts", summary.Accounts.Imported),
		zap.Int("transactions", summary.Transactions.Imported),
		zap.Int("loans", summary.Loans.Imported),
		zap.Int("recurring", summary.RecurringTransactions.Imported),
		zap.Int("categories", summary.Categories.Imported),
	)
	return summary, nil
}

// wrapTxFailure keeps caller-addressable errors (validation, not-found)
// as-is and wraps storage failures as transactional ones.
func wrapTxFailure(operation string, err error) error {
	switch err.(type) {
	case *domain.ErrValidation, *domain.ErrNotFound, *domain.ErrForbidden, *domain.ErrUnauthorized:
		return err
	default:
		return &domain.ErrTransactionFailed{Operation: operation, Err: err}
	}
}

func (s *PortabilityService) recordImportMetrics(operation string, summary *domain.ImportSummary, elapsed time.Duration) {
	s.metrics.IncrOperation(operation, "success")
	s.metrics.RecordOperationDuration(operation, elapsed)
	s.metrics.AddEntitiesImported("accounts", summary.Accounts.Imported)
	s.metrics.AddEntitiesImported("transactions", summary.Transactions.Imported)
	s.metrics.AddEntitiesImported("loans", summary.Loans.Imported)
	s.metrics.AddEntitiesImported("recurring_transactions", summary.RecurringTransactions.Imported)
	s.metrics.AddEntitiesImported("categories", summary.Categories.Imported)
	s.metrics.AddRowsSkipped("transactions", summary.Transactions.Skipped)
	s.metrics.AddRowsSkipped("recurring_transactions", summary.RecurringTransactions.Skipped)
}

// ============================================================
// Entity importers, dependency order
// ============================================================

func (s *PortabilityService) importCategories(ctx context.Context, tx port.Tx, rc *remapContext, userID string, categories []domain.SnapshotCategory, summary *domain.ImportSummary) error {
	for _, c := range categories {
		if c.Name == "" {
			summary.Categories.Skipped++
			continue
		}
		if _, ok := rc.category(c.Name); ok {
			continue
		}

		id, found, err := tx.FindCategoryByName(ctx, userID, c.Name)
		if err != nil {
			return err
		}
		if !found {
			kind := c.Type
			if kind == "" {
				kind = "expense"
			}
			id, err = tx.InsertCategory(ctx, &domain.Category{
				UserID: &userID,
				Name:   c.Name,
				Type:   kind,
				Color:  c.Color,
			})
			if err != nil {
				return err
			}
		}
		// Resolved-to-existing rows (global categories survive the wipe)
		// count as imported too, keeping the summary comparable to the
		// snapshot's totals.
		summary.Categories.Imported++
		rc.putCategory(c.Name, id)
	}
	return nil
}

func (s *PortabilityService) importAccounts(ctx context.Context, tx port.Tx, rc *remapContext, userID string, accounts []domain.SnapshotAccount, now time.Time, summary *domain.ImportSummary) error {
	for i := range accounts {
		a := &accounts[i]

		currency := a.Currency
		if currency == "" {
			currency = "USD"
		}
		s.ensureCurrency(ctx, tx, rc, currency, summary)

		account := &domain.Account{
			UserID:            userID,
			Name:              a.Name,
			Type:              a.Type,
			Balance:           a.NormalizedBalance(),
			Currency:          currency,
			CreditLimit:       a.CreditLimit,
			Goals:             a.Goals,
			SelectedCardStyle: a.SelectedCardStyle,
			CardStyle:         a.CardStyle,
			CreatedAt:         a.CreatedAt.OrNow(now),
			UpdatedAt:         a.UpdatedAt.OrNow(now),
		}
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		rc.putAccount(a.ID, id)
		summary.Accounts.Imported++
	}
	return nil
}

func (s *PortabilityService) importTransactions(ctx context.Context, tx port.Tx, rc *remapContext, userID string, txns []domain.SnapshotTransaction, now time.Time, summary *domain.ImportSummary) error {
	for i := range txns {
		t := &txns[i]

		accountID, ok := rc.account(t.AccountID)
		if !ok {
			// Account never resolved: drop the row, keep the import going.
			s.logger.Debug("skipping transaction with unresolved account",
				zap.String("account_ref", t.AccountID.String()),
			)
			summary.Transactions.Skipped++
			continue
		}

		categoryID, err := s.resolveCategory(ctx, tx, rc, userID, t.CategoryRef(), t.Type)
		if err != nil {
			return err
		}

		currency := t.Currency
		if currency == "" {
			currency = "USD"
		}
		s.ensureCurrency(ctx, tx, rc, currency, summary)

		txn := &domain.Transaction{
			UserID:      userID,
			AccountID:   accountID,
			Type:        t.Type,
			Amount:      t.Amount,
			Currency:    currency,
			Description: t.Description,
			CategoryID:  categoryID,
			Date:        t.Date.OrNow(now),
			Metadata:    t.Metadata,
			CreatedAt:   t.CreatedAt.OrNow(now),
			UpdatedAt:   t.UpdatedAt.OrNow(now),
		}

		if related, ok := s.resolveRelatedAccount(ctx, tx, rc, userID, t.RelatedAccountID); ok {
			txn.RelatedAccountID = &related
		}
		if t.TransferGroupID != "" {
			group := t.TransferGroupID
			txn.TransferGroupID = &group
		}

		if _, err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		summary.Transactions.Imported++
	}
	return nil
}

// resolveRelatedAccount maps a transfer counterpart account reference,
// first through the remap table, then — for numeric ids — against rows that
// already exist in the target space.
func (s *PortabilityService) resolveRelatedAccount(ctx context.Context, tx port.Tx, rc *remapContext, userID string, ref domain.FlexID) (int64, bool) {
	if !ref.IsSet {
		return 0, false
	}
	if id, ok := rc.account(ref); ok {
		return id, true
	}
	if ref.IsNum {
		if exists, err := tx.AccountExists(ctx, userID, ref.Num); err == nil && exists {
			return ref.Num, true
		}
	}
	return 0, false
}

func (s *PortabilityService) importLoans(ctx context.Context, tx port.Tx, rc *remapContext, userID string, loans []domain.SnapshotLoan, now time.Time, summary *domain.ImportSummary) error {
	for i := range loans {
		l := &loans[i]

		currency := l.NormalizedCurrency()
		if currency == "" {
			currency = "USD"
		}
		s.ensureCurrency(ctx, tx, rc, currency, summary)

		loan := &domain.Loan{
			UserID:           userID,
			Name:             l.Name,
			Type:             l.Type,
			Principal:        l.NormalizedPrincipal(),
			RemainingBalance: l.NormalizedRemaining(),
			TermMonths:       l.TermMonths,
			StartDate:        l.Date.OrNow(now),
			Currency:         currency,
			Status:           l.Status,
			Notes:            l.Notes,
			Metadata:         l.Metadata,
		}
		if loan.Status == "" {
			loan.Status = domain.LoanPending
		}
		if l.MonthlyPayment != nil {
			loan.MonthlyPayment = *l.MonthlyPayment
		}
		if l.InterestRate != nil {
			loan.InterestRate = *l.InterestRate
		}
		if accountID, ok := rc.account(l.AccountID); ok {
			loan.AccountID = &accountID
		}

		loanID, err := tx.InsertLoan(ctx, loan)
		if err != nil {
			return err
		}

		for _, inst := range materializeSchedule(l.Installments, now) {
			inst.LoanID = loanID
			// Transaction links from the source space are meaningless here.
			inst.PaymentTransactionID = nil
			if _, err := tx.InsertInstallment(ctx, &inst); err != nil {
				return err
			}
		}

		// Payment history rows are inserted as historical fact; their
		// effect on installments was already applied in the source space.
		for _, p := range l.Payments {
			payment := &domain.LoanPayment{
				LoanID:             loanID,
				PaidAmount:         p.PaidAmount,
				PrincipalComponent: p.PrincipalComponent,
				InterestComponent:  p.InterestComponent,
				PaidDate:           p.PaidDate.OrNow(now),
			}
			if _, err := tx.InsertLoanPayment(ctx, payment); err != nil {
				return err
			}
		}

		summary.Loans.Imported++
	}
	return nil
}

func (s *PortabilityService) importRecurring(ctx context.Context, tx port.Tx, rc *remapContext, userID string, recurring []domain.SnapshotRecurring, now time.Time, summary *domain.ImportSummary) error {
	for i := range recurring {
		r := &recurring[i]

		accountID, ok := rc.account(r.AccountID)
		if !ok {
			s.logger.Debug("skipping recurring transaction with unresolved account",
				zap.String("account_ref", r.AccountID.String()),
			)
			summary.RecurringTransactions.Skipped++
			continue
		}

		categoryID, err := s.resolveCategory(ctx, tx, rc, userID, r.CategoryRef(), r.Type)
		if err != nil {
			return err
		}

		currency := r.Currency
		if currency == "" {
			currency = "USD"
		}
		s.ensureCurrency(ctx, tx, rc, currency, summary)

		rec := &domain.RecurringTransaction{
			UserID:      userID,
			AccountID:   accountID,
			Type:        r.Type,
			Amount:      r.Amount,
			Currency:    currency,
			Description: r.Description,
			CategoryID:  categoryID,
			Frequency:   r.Frequency,
			NextDate:    r.NextDate.OrNow(now),
			IsActive:    r.Active(),
			Metadata:    r.Metadata,
		}
		if !r.NextGenerated.IsZero() {
			lg := r.NextGenerated.Time
			rec.LastGenerated = &lg
		}

		if _, err := tx.InsertRecurringTransaction(ctx, rec); err != nil {
			return err
		}
		summary.RecurringTransactions.Imported++
	}
	return nil
}

// ============================================================
// Category resolution
// ============================================================

// resolveCategory maps a tagged category reference to a category id owned
// by (or visible to) the target user, creating one when a named category
// does not exist. Numeric ids are verified, never trusted: they may belong
// to the source user's now-deleted space.
func (s *PortabilityService) resolveCategory(ctx context.Context, tx port.Tx, rc *remapContext, userID string, ref domain.CategoryRef, txKind string) (*int64, error) {
	switch ref.Kind {
	case domain.CategoryRefByName:
		if id, ok := rc.category(ref.Name); ok {
			return &id, nil
		}
		id, found, err := tx.FindCategoryByName(ctx, userID, ref.Name)
		if err != nil {
			return nil, err
		}
		if !found {
			kind := "expense"
			if txKind == domain.TransactionIncome {
				kind = "income"
			}
			id, err = tx.InsertCategory(ctx, &domain.Category{
				UserID: &userID,
				Name:   ref.Name,
				Type:   kind,
			})
			if err != nil {
				return nil, err
			}
		}
		rc.putCategory(ref.Name, id)
		return &id, nil

	case domain.CategoryRefByID:
		exists, err := tx.CategoryExists(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		id := ref.ID
		return &id, nil

	default:
		return nil, nil
	}
}

// ============================================================
// Currency guarantor
// ============================================================

// ensureCurrency makes sure a reference row exists for the code, creating a
// minimal stub when absent. Best-effort: a failure is recorded as a
// degradation and the import continues; if the code is genuinely required,
// the dependent insert's foreign key will reject it fatally.
func (s *PortabilityService) ensureCurrency(ctx context.Context, tx port.Tx, rc *remapContext, code string, summary *domain.ImportSummary) {
	if rc.currencies[code] {
		return
	}
	err := tx.BestEffort(ctx, func(bt port.Tx) error {
		exists, err := bt.CurrencyExists(ctx, code)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return bt.InsertCurrency(ctx, &domain.Currency{Code: code, Name: code, DecimalPlaces: 2})
	})
	if err != nil {
		s.logger.Warn("currency stub creation failed",
			zap.String("currency", code),
			zap.Error(err),
		)
		s.metrics.IncrDegradedStep("currency_stub")
		summary.Degradations = append(summary.Degradations, domain.Degradation{
			Step:   "currency_stub",
			Reason: err.Error(),
		})
		return
	}
	rc.currencies[code] = true
}
