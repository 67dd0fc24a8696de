package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/service"
)

// ============================================================
// Loan payments — POST /v1/loans/{loanId}/payments
// ============================================================

func loanPaymentHandler(loanSvc *service.LoanService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/loans/{loanId}/payments")
		defer span.End()

		loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid loan id")
			return
		}

		var req domain.PaymentRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ident := IdentityFromContext(ctx)
		loan, err := loanSvc.ApplyPayment(ctx, ident, loanID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, loan)
	}
}
