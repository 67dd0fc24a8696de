package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the portable export/import bundle: one user's full financial
// entity graph in its export projection. Import tolerates legacy field
// aliases and multiple input shapes; export always produces the canonical
// camel-cased form.

// SnapshotVersion is the format version written by the exporter.
const SnapshotVersion = "2.0"

// Snapshot is the top-level wire entity.
type Snapshot struct {
	ExportInfo            ExportInfo             `json:"exportInfo"`
	Accounts              []SnapshotAccount      `json:"accounts"`
	Transactions          []SnapshotTransaction  `json:"transactions"`
	Loans                 []SnapshotLoan         `json:"loans"`
	RecurringTransactions []SnapshotRecurring    `json:"recurringTransactions"`
	Categories            []SnapshotCategory     `json:"categories"`
	Metadata              SnapshotTotals         `json:"metadata"`
}

// ExportInfo describes the snapshot's origin.
type ExportInfo struct {
	Version         string   `json:"version"`
	ExportDate      FlexTime `json:"exportDate"`
	SourceUserID    FlexID   `json:"sourceUserId"`
	SourceUserEmail string   `json:"sourceUserEmail,omitempty"`
}

// SnapshotTotals carries per-entity counts for round-trip verification.
type SnapshotTotals struct {
	TotalAccounts              int `json:"totalAccounts"`
	TotalTransactions          int `json:"totalTransactions"`
	TotalLoans                 int `json:"totalLoans"`
	TotalRecurringTransactions int `json:"totalRecurringTransactions"`
	TotalCategories            int `json:"totalCategories"`
}

// ============================================================
// Flexible scalar decoding
// ============================================================

// FlexID is an identifier that may arrive as a JSON number, a numeric
// string, or a non-numeric slug. Numeric ids from a foreign user's space
// are never trusted blindly; the raw form is kept so name-based resolution
// can fall back to it.
type FlexID struct {
	Num    int64
	Raw    string
	IsNum  bool
	IsSet  bool
}

// NewFlexID builds a numeric FlexID, used by the exporter.
func NewFlexID(n int64) FlexID {
	return FlexID{Num: n, Raw: strconv.FormatInt(n, 10), IsNum: true, IsSet: true}
}

// NewFlexString builds a string FlexID, used for non-numeric user ids.
func NewFlexString(s string) FlexID {
	f := FlexID{Raw: s, IsSet: s != ""}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Num = n
		f.IsNum = true
	}
	return f
}

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = FlexID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = NewFlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = NewFlexID(i)
		return nil
	}
	// Non-integer number: keep the raw text, treat as non-numeric.
	*f = FlexID{Raw: n.String(), IsSet: true}
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	if !f.IsSet {
		return []byte("null"), nil
	}
	if f.IsNum {
		return []byte(strconv.FormatInt(f.Num, 10)), nil
	}
	return json.Marshal(f.Raw)
}

// String returns the raw textual form of the id.
func (f FlexID) String() string { return f.Raw }

// flexTimeLayouts are the accepted input layouts, most specific first.
var flexTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// FlexTime is a timestamp that tolerates several serialized layouts plus
// epoch milliseconds. A zero FlexTime means absent/unparseable; importers
// fall back to "now".
type FlexTime struct {
	time.Time
}

// NewFlexTime wraps a concrete time.
func NewFlexTime(t time.Time) FlexTime { return FlexTime{Time: t} }

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range flexTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		// Unparseable dates are tolerated, not fatal.
		t.Time = time.Time{}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// OrNow returns the wrapped time, or now when absent.
func (t FlexTime) OrNow(now time.Time) time.Time {
	if t.Time.IsZero() {
		return now
	}
	return t.Time
}

// ============================================================
// Category references
// ============================================================

// Category reference kinds, decoded once at the boundary.
const (
	CategoryRefNone   = "none"
	CategoryRefByID   = "by_id"
	CategoryRefByName = "by_name"
)

// CategoryRef is the canonical form of a loose category reference.
type CategoryRef struct {
	Kind string
	ID   int64
	Name string
}

// ResolveCategoryRef normalizes a raw id plus an optional human-readable
// name into a tagged reference. The name wins when present: numeric ids
// from the exporting user's space have no meaning in the importing user's
// space.
func ResolveCategoryRef(id FlexID, name string) CategoryRef {
	name = strings.TrimSpace(name)
	if name != "" {
		return CategoryRef{Kind: CategoryRefByName, Name: name}
	}
	if !id.IsSet {
		return CategoryRef{Kind: CategoryRefNone}
	}
	if id.IsNum {
		return CategoryRef{Kind: CategoryRefByID, ID: id.Num}
	}
	// Slug string in the id position: treat as a name.
	return CategoryRef{Kind: CategoryRefByName, Name: id.Raw}
}

// ============================================================
// Snapshot entities
// ============================================================

// SnapshotAccount is the export projection of an account.
// Balance tolerates the legacy aliases currentBalance and current_balance.
type SnapshotAccount struct {
	ID                FlexID           `json:"id"`
	Name              string           `json:"name"`
	Type              string           `json:"type"`
	Balance           *decimal.Decimal `json:"balance,omitempty"`
	CurrentBalance    *decimal.Decimal `json:"currentBalance,omitempty"`
	LegacyBalance     *decimal.Decimal `json:"current_balance,omitempty"`
	Currency          string           `json:"currency"`
	CreditLimit       *decimal.Decimal `json:"creditLimit,omitempty"`
	Goals             json.RawMessage  `json:"goals,omitempty"`
	SelectedCardStyle json.RawMessage  `json:"selectedCardStyle,omitempty"`
	CardStyle         json.RawMessage  `json:"cardStyle,omitempty"`
	CreatedAt         FlexTime         `json:"createdAt"`
	UpdatedAt         FlexTime         `json:"updatedAt"`
}

// NormalizedBalance picks the first populated balance alias, defaulting to
// zero.
func (a *SnapshotAccount) NormalizedBalance() decimal.Decimal {
	for _, v := range []*decimal.Decimal{a.Balance, a.CurrentBalance, a.LegacyBalance} {
		if v != nil {
			return *v
		}
	}
	return decimal.Zero
}

// SnapshotTransaction is the export projection of a transaction. The
// category is carried as both id and name so the snapshot stays portable
// across id collisions between users.
type SnapshotTransaction struct {
	ID               FlexID           `json:"id"`
	AccountID        FlexID           `json:"accountId"`
	Type             string           `json:"type"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Description      string           `json:"description"`
	CategoryID       FlexID           `json:"categoryId"`
	CategoryName     string           `json:"categoryName,omitempty"`
	RelatedAccountID FlexID           `json:"relatedAccountId"`
	TransferGroupID  string           `json:"transferGroupId,omitempty"`
	Date             FlexTime         `json:"date"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt        FlexTime         `json:"createdAt"`
	UpdatedAt        FlexTime         `json:"updatedAt"`
}

// CategoryRef returns the transaction's category reference in canonical
// tagged form.
func (t *SnapshotTransaction) CategoryRef() CategoryRef {
	return ResolveCategoryRef(t.CategoryID, t.CategoryName)
}

// SnapshotLoan is the export projection of a loan with its nested
// installments and payment history. Principal and outstanding balance
// tolerate the legacy aliases amount and remainingBalance.
type SnapshotLoan struct {
	ID                 FlexID           `json:"id"`
	AccountID          FlexID           `json:"accountId"`
	Name               string           `json:"name"`
	Type               string           `json:"type"`
	Principal          *decimal.Decimal `json:"principal,omitempty"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	OutstandingBalance *decimal.Decimal `json:"outstandingBalance,omitempty"`
	RemainingBalance   *decimal.Decimal `json:"remainingBalance,omitempty"`
	MonthlyPayment     *decimal.Decimal `json:"monthlyPayment,omitempty"`
	InterestRate       *decimal.Decimal `json:"interestRate,omitempty"`
	TermMonths         int              `json:"termMonths,omitempty"`
	Date               FlexTime         `json:"date"`
	CurrencyCode       string           `json:"currencyCode,omitempty"`
	Currency           string           `json:"currency,omitempty"`
	Status             string           `json:"status,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Metadata           json.RawMessage  `json:"metadata,omitempty"`
	Installments       InstallmentSpec  `json:"installments,omitempty"`
	Payments           []SnapshotLoanPayment `json:"payments,omitempty"`
}

// NormalizedPrincipal picks the first populated principal alias.
func (l *SnapshotLoan) NormalizedPrincipal() decimal.Decimal {
	for _, v := range []*decimal.Decimal{l.Principal, l.Amount} {
		if v != nil {
			return *v
		}
	}
	return decimal.Zero
}

// NormalizedRemaining picks the first populated outstanding-balance alias,
// falling back to the principal.
func (l *SnapshotLoan) NormalizedRemaining() decimal.Decimal {
	for _, v := range []*decimal.Decimal{l.OutstandingBalance, l.RemainingBalance} {
		if v != nil {
			return *v
		}
	}
	return l.NormalizedPrincipal()
}

// NormalizedCurrency picks the first populated currency alias.
func (l *SnapshotLoan) NormalizedCurrency() string {
	if l.CurrencyCode != "" {
		return l.CurrencyCode
	}
	return l.Currency
}

// SnapshotInstallment is one installment inside a loan's explicit schedule.
type SnapshotInstallment struct {
	ID                   FlexID           `json:"id"`
	Number               int              `json:"installmentNumber"`
	LegacyNumber         int              `json:"number,omitempty"`
	Amount               decimal.Decimal  `json:"amount"`
	DueDate              FlexTime         `json:"dueDate"`
	Status               string           `json:"status,omitempty"`
	PaidDate             FlexTime         `json:"paidDate"`
	PartialAmountPaid    *decimal.Decimal `json:"partialAmountPaid,omitempty"`
	PrincipalComponent   *decimal.Decimal `json:"principalComponent,omitempty"`
	InterestComponent    *decimal.Decimal `json:"interestComponent,omitempty"`
	PaymentTransactionID FlexID           `json:"paymentTransactionId"`
}

// NormalizedNumber picks the populated sequence-number alias.
func (i *SnapshotInstallment) NormalizedNumber() int {
	if i.Number > 0 {
		return i.Number
	}
	return i.LegacyNumber
}

// SnapshotLoanPayment is one historical payment row inside a loan.
type SnapshotLoanPayment struct {
	ID                 FlexID           `json:"id"`
	TransactionID      FlexID           `json:"transactionId"`
	PaidAmount         decimal.Decimal  `json:"paidAmount"`
	PrincipalComponent *decimal.Decimal `json:"principalComponent,omitempty"`
	InterestComponent  *decimal.Decimal `json:"interestComponent,omitempty"`
	PaidDate           FlexTime         `json:"paidDate"`
}

// SnapshotRecurring is the export projection of a recurring transaction.
type SnapshotRecurring struct {
	ID            FlexID          `json:"id"`
	AccountID     FlexID          `json:"accountId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description"`
	CategoryID    FlexID          `json:"categoryId"`
	CategoryName  string          `json:"categoryName,omitempty"`
	Frequency     string          `json:"frequency"`
	NextDate      FlexTime        `json:"nextDate"`
	IsActive      *bool           `json:"isActive,omitempty"`
	NextGenerated FlexTime        `json:"nextGenerated"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// CategoryRef returns the recurring transaction's category reference in
// canonical tagged form.
func (r *SnapshotRecurring) CategoryRef() CategoryRef {
	return ResolveCategoryRef(r.CategoryID, r.CategoryName)
}

// Active treats an absent isActive flag as true.
func (r *SnapshotRecurring) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// SnapshotCategory is the export projection of a category.
type SnapshotCategory struct {
	ID    FlexID `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

// ============================================================
// Installment specification (tagged union)
// ============================================================

// Installment specification kinds.
const (
	InstallmentsNone       = "none"
	InstallmentsExplicit   = "explicit"
	InstallmentsNested     = "nested"
	InstallmentsGeneration = "generation"
)

// InstallmentSpec is a loan's installment input, decoded once at the
// boundary into one of three shapes: an explicit list, a nested
// {enabled, installmentsList} object, or generation parameters.
type InstallmentSpec struct {
	Kind       string
	Enabled    bool
	List       []SnapshotInstallment
	Generation GenerationSpec
}

// GenerationSpec describes a schedule to materialize: Count installments of
// Amount each, the first due at FirstDueDate, subsequent ones spaced by
// Frequency (daily or monthly).
type GenerationSpec struct {
	FirstDueDate FlexTime        `json:"firstDueDate"`
	StartDate    FlexTime        `json:"startDate"`
	Frequency    string          `json:"frequency"`
	Count        int             `json:"count"`
	TotalCount   int             `json:"totalCount"`
	Amount       decimal.Decimal `json:"amount"`
	Installment  decimal.Decimal `json:"installmentAmount"`
}

// NormalizedCount picks the populated count alias.
func (g *GenerationSpec) NormalizedCount() int {
	if g.Count > 0 {
		return g.Count
	}
	return g.TotalCount
}

// NormalizedAmount picks the populated per-installment amount alias.
func (g *GenerationSpec) NormalizedAmount() decimal.Decimal {
	if !g.Amount.IsZero() {
		return g.Amount
	}
	return g.Installment
}

// NormalizedFirstDate picks the populated first-due-date alias.
func (g *GenerationSpec) NormalizedFirstDate() FlexTime {
	if !g.FirstDueDate.IsZero() {
		return g.FirstDueDate
	}
	return g.StartDate
}

// NormalizedFrequency defaults an absent frequency to monthly.
func (g *GenerationSpec) NormalizedFrequency() string {
	if g.Frequency == "" {
		return FrequencyMonthly
	}
	return g.Frequency
}

// nestedInstallments is the {enabled, installmentsList} wire shape.
type nestedInstallments struct {
	Enabled          *bool                 `json:"enabled"`
	InstallmentsList []SnapshotInstallment `json:"installmentsList"`
}

func (s *InstallmentSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = InstallmentSpec{Kind: InstallmentsNone}
		return nil
	}

	if data[0] == '[' {
		var list []SnapshotInstallment
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = InstallmentSpec{Kind: InstallmentsExplicit, Enabled: true, List: list}
		return nil
	}

	// Object: nested list wins over generation parameters when both appear.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["installmentsList"]; ok {
		var nested nestedInstallments
		if err := json.Unmarshal(data, &nested); err != nil {
			return err
		}
		*s = InstallmentSpec{
			Kind:    InstallmentsNested,
			Enabled: nested.Enabled == nil || *nested.Enabled,
			List:    nested.InstallmentsList,
		}
		return nil
	}

	var gen GenerationSpec
	if err := json.Unmarshal(data, &gen); err != nil {
		return err
	}
	*s = InstallmentSpec{Kind: InstallmentsGeneration, Enabled: true, Generation: gen}
	return nil
}

func (s InstallmentSpec) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case InstallmentsExplicit, InstallmentsNested:
		return json.Marshal(nestedInstallments{Enabled: &s.Enabled, InstallmentsList: s.List})
	case InstallmentsGeneration:
		return json.Marshal(s.Generation)
	default:
		return []byte("null"), nil
	}
}

// ============================================================
// Import summary
// ============================================================

// Degradation is a non-fatal step failure recorded during an import or
// restore. Degradations never abort the operation.
type Degradation struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// EntityCount reports how many rows of one entity type were imported and
// how many were dropped because a reference did not resolve.
type EntityCount struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped,omitempty"`
}

// ImportSummary is the aggregate result of an import or restore.
type ImportSummary struct {
	Accounts              EntityCount   `json:"accounts"`
	Transactions          EntityCount   `json:"transactions"`
	Loans                 EntityCount   `json:"loans"`
	RecurringTransactions EntityCount   `json:"recurringTransactions"`
	Categories            EntityCount   `json:"categories"`
	BackupID              *int64        `json:"backupId,omitempty"`
	Degradations          []Degradation `json:"degradations,omitempty"`
}
