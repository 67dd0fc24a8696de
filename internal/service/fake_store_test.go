package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/port"
)

var errForcedFailure = errors.New("forced storage failure")

// fakeStore is an in-memory port.Store used across the service tests. It
// mimics the transactional semantics of the real store: RunInTx snapshots
// state and restores it when the callback errors, and BestEffort does the
// same at savepoint granularity.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64

	users      map[string]*domain.User
	accounts   []domain.Account
	txns       []domain.Transaction
	categories []domain.Category
	loans      []domain.Loan
	recurring  []domain.RecurringTransaction
	backups    []domain.BackupRecord
	currencies map[string]bool

	// failLoanInsertAt makes the Nth InsertLoan call fail (1-based).
	failLoanInsertAt int
	loanInserts      int

	failBackups bool
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*domain.User),
		currencies: map[string]bool{"USD": true},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

type storeState struct {
	accounts   []domain.Account
	txns       []domain.Transaction
	categories []domain.Category
	loans      []domain.Loan
	recurring  []domain.RecurringTransaction
	backups    []domain.BackupRecord
	currencies map[string]bool
	nextID     int64
}

func (f *fakeStore) snapshotState() storeState {
	st := storeState{
		accounts:   append([]domain.Account(nil), f.accounts...),
		txns:       append([]domain.Transaction(nil), f.txns...),
		categories: append([]domain.Category(nil), f.categories...),
		recurring:  append([]domain.RecurringTransaction(nil), f.recurring...),
		backups:    append([]domain.BackupRecord(nil), f.backups...),
		currencies: make(map[string]bool, len(f.currencies)),
		nextID:     f.nextID,
	}
	for _, l := range f.loans {
		cl := l
		cl.Installments = append([]domain.Installment(nil), l.Installments...)
		cl.Payments = append([]domain.LoanPayment(nil), l.Payments...)
		st.loans = append(st.loans, cl)
	}
	for k, v := range f.currencies {
		st.currencies[k] = v
	}
	return st
}

func (f *fakeStore) restoreState(st storeState) {
	f.accounts = st.accounts
	f.txns = st.txns
	f.categories = st.categories
	f.loans = st.loans
	f.recurring = st.recurring
	f.backups = st.backups
	f.currencies = st.currencies
	f.nextID = st.nextID
}

// ============================================================
// port.Store
// ============================================================

func (f *fakeStore) RunInTx(ctx context.Context, fn func(tx port.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := f.snapshotState()
	if err := fn(&fakeTx{s: f}); err != nil {
		f.restoreState(before)
		return err
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) CreateUser(ctx context.Context, u *domain.User) error {
	f.users[u.Email] = u
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: email}
	}
	return u, nil
}

func (f *fakeStore) ListBackups(ctx context.Context, userID string) ([]domain.BackupRecord, error) {
	var out []domain.BackupRecord
	for _, b := range f.backups {
		if b.UserID == userID {
			meta := b
			meta.Payload = nil
			out = append(out, meta)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBackup(ctx context.Context, userID string, backupID int64) (*domain.BackupRecord, error) {
	for i := range f.backups {
		if f.backups[i].ID == backupID && f.backups[i].UserID == userID {
			b := f.backups[i]
			return &b, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "backup", ID: strconv.FormatInt(backupID, 10)}
}

// ============================================================
// port.Reader
// ============================================================

func (f *fakeStore) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range f.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	var out []domain.Loan
	for _, l := range f.loans {
		if l.UserID == userID {
			cl := l
			cl.Installments = append([]domain.Installment(nil), l.Installments...)
			cl.Payments = append([]domain.LoanPayment(nil), l.Payments...)
			out = append(out, cl)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecurringTransactions(ctx context.Context, userID string) ([]domain.RecurringTransaction, error) {
	var out []domain.RecurringTransaction
	for _, r := range f.recurring {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range f.categories {
		if c.UserID == nil || *c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ============================================================
// port.Tx
// ============================================================

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return t.s.ListAccounts(ctx, userID)
}
func (t *fakeTx) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return t.s.ListTransactions(ctx, userID)
}
func (t *fakeTx) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	return t.s.ListLoans(ctx, userID)
}
func (t *fakeTx) ListRecurringTransactions(ctx context.Context, userID string) ([]domain.RecurringTransaction, error) {
	return t.s.ListRecurringTransactions(ctx, userID)
}
func (t *fakeTx) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return t.s.ListCategories(ctx, userID)
}

func (t *fakeTx) Columns(ctx context.Context, table string) (map[string]bool, error) {
	// The fake schema has every optional column.
	return map[string]bool{
		"metadata": true, "goals": true, "credit_limit": true,
		"card_style": true, "selected_card_style": true,
	}, nil
}

func (t *fakeTx) BestEffort(ctx context.Context, fn func(tx port.Tx) error) error {
	before := t.s.snapshotState()
	if err := fn(t); err != nil {
		t.s.restoreState(before)
		return err
	}
	return nil
}

func (t *fakeTx) DeleteUserData(ctx context.Context, userID string) error {
	keepAccounts := t.s.accounts[:0:0]
	for _, a := range t.s.accounts {
		if a.UserID != userID {
			keepAccounts = append(keepAccounts, a)
		}
	}
	t.s.accounts = keepAccounts

	keepTxns := t.s.txns[:0:0]
	for _, tx := range t.s.txns {
		if tx.UserID != userID {
			keepTxns = append(keepTxns, tx)
		}
	}
	t.s.txns = keepTxns

	keepLoans := t.s.loans[:0:0]
	for _, l := range t.s.loans {
		if l.UserID != userID {
			keepLoans = append(keepLoans, l)
		}
	}
	t.s.loans = keepLoans

	keepRec := t.s.recurring[:0:0]
	for _, r := range t.s.recurring {
		if r.UserID != userID {
			keepRec = append(keepRec, r)
		}
	}
	t.s.recurring = keepRec

	keepCats := t.s.categories[:0:0]
	for _, c := range t.s.categories {
		if c.UserID == nil || *c.UserID != userID {
			keepCats = append(keepCats, c)
		}
	}
	t.s.categories = keepCats
	return nil
}

func (t *fakeTx) InsertAccount(ctx context.Context, a *domain.Account) (int64, error) {
	a.ID = t.s.id()
	t.s.accounts = append(t.s.accounts, *a)
	return a.ID, nil
}

func (t *fakeTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) (int64, error) {
	txn.ID = t.s.id()
	t.s.txns = append(t.s.txns, *txn)
	return txn.ID, nil
}

func (t *fakeTx) InsertCategory(ctx context.Context, c *domain.Category) (int64, error) {
	c.ID = t.s.id()
	t.s.categories = append(t.s.categories, *c)
	return c.ID, nil
}

func (t *fakeTx) InsertLoan(ctx context.Context, l *domain.Loan) (int64, error) {
	t.s.loanInserts++
	if t.s.failLoanInsertAt > 0 && t.s.loanInserts == t.s.failLoanInsertAt {
		return 0, errForcedFailure
	}
	l.ID = t.s.id()
	cl := *l
	cl.Installments = nil
	cl.Payments = nil
	t.s.loans = append(t.s.loans, cl)
	return l.ID, nil
}

func (t *fakeTx) InsertInstallment(ctx context.Context, i *domain.Installment) (int64, error) {
	i.ID = t.s.id()
	for idx := range t.s.loans {
		if t.s.loans[idx].ID == i.LoanID {
			t.s.loans[idx].Installments = append(t.s.loans[idx].Installments, *i)
			return i.ID, nil
		}
	}
	return 0, &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(i.LoanID, 10)}
}

func (t *fakeTx) InsertLoanPayment(ctx context.Context, p *domain.LoanPayment) (int64, error) {
	p.ID = t.s.id()
	for idx := range t.s.loans {
		if t.s.loans[idx].ID == p.LoanID {
			t.s.loans[idx].Payments = append(t.s.loans[idx].Payments, *p)
			return p.ID, nil
		}
	}
	return 0, &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(p.LoanID, 10)}
}

func (t *fakeTx) InsertRecurringTransaction(ctx context.Context, r *domain.RecurringTransaction) (int64, error) {
	r.ID = t.s.id()
	t.s.recurring = append(t.s.recurring, *r)
	return r.ID, nil
}

func (t *fakeTx) InsertBackup(ctx context.Context, b *domain.BackupRecord) (int64, error) {
	if t.s.failBackups {
		return 0, errForcedFailure
	}
	b.ID = t.s.id()
	t.s.backups = append(t.s.backups, *b)
	return b.ID, nil
}

func (t *fakeTx) FindCategoryByName(ctx context.Context, userID, name string) (int64, bool, error) {
	for _, c := range t.s.categories {
		if c.Name == name && (c.UserID == nil || *c.UserID == userID) {
			return c.ID, true, nil
		}
	}
	return 0, false, nil
}

func (t *fakeTx) CategoryExists(ctx context.Context, id int64) (bool, error) {
	for _, c := range t.s.categories {
		if c.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) AccountExists(ctx context.Context, userID string, id int64) (bool, error) {
	for _, a := range t.s.accounts {
		if a.ID == id && a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) CurrencyExists(ctx context.Context, code string) (bool, error) {
	return t.s.currencies[code], nil
}

func (t *fakeTx) InsertCurrency(ctx context.Context, c *domain.Currency) error {
	t.s.currencies[c.Code] = true
	return nil
}

func (t *fakeTx) GetLoan(ctx context.Context, userID string, loanID int64) (*domain.Loan, error) {
	for _, l := range t.s.loans {
		if l.ID == loanID && l.UserID == userID {
			cl := l
			cl.Installments = append([]domain.Installment(nil), l.Installments...)
			cl.Payments = append([]domain.LoanPayment(nil), l.Payments...)
			return &cl, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(loanID, 10)}
}

func (t *fakeTx) GetAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error) {
	for _, a := range t.s.accounts {
		if a.ID == accountID && a.UserID == userID {
			cl := a
			return &cl, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(accountID, 10)}
}

func (t *fakeTx) UpdateInstallmentPayment(ctx context.Context, i *domain.Installment) error {
	for li := range t.s.loans {
		for ii := range t.s.loans[li].Installments {
			if t.s.loans[li].Installments[ii].ID == i.ID {
				t.s.loans[li].Installments[ii] = *i
				return nil
			}
		}
	}
	return &domain.ErrNotFound{Resource: "installment", ID: strconv.FormatInt(i.ID, 10)}
}

func (t *fakeTx) UpdateLoanProgress(ctx context.Context, loanID int64, remaining decimal.Decimal, status string) error {
	for i := range t.s.loans {
		if t.s.loans[i].ID == loanID {
			t.s.loans[i].RemainingBalance = remaining
			t.s.loans[i].Status = status
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "loan", ID: strconv.FormatInt(loanID, 10)}
}

func (t *fakeTx) AdjustAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	for i := range t.s.accounts {
		if t.s.accounts[i].ID == accountID {
			t.s.accounts[i].Balance = t.s.accounts[i].Balance.Add(delta)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(accountID, 10)}
}
