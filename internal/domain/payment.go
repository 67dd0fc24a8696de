package domain

import "github.com/shopspring/decimal"

// PaymentRequest is the body for POST /v1/loans/{loanId}/payments.
// InstallmentNumber selects targeted mode; absent means FIFO allocation
// across outstanding installments. AccountID names an optional funding
// account whose balance is adjusted atomically with the payment.
type PaymentRequest struct {
	Amount             decimal.Decimal  `json:"amount"`
	InstallmentNumber  *int             `json:"installmentNumber,omitempty"`
	AccountID          *int64           `json:"accountId,omitempty"`
	PaidDate           FlexTime         `json:"paidDate"`
	PrincipalComponent *decimal.Decimal `json:"principalComponent,omitempty"`
	InterestComponent  *decimal.Decimal `json:"interestComponent,omitempty"`
}
