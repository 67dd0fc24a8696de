package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/infra/observability"
	"github.com/rvelloso/finledger-go/internal/service"
)

// ============================================================
// Export — GET /v1/export
// ============================================================

func exportHandler(portSvc *service.PortabilityService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/export")
		defer span.End()

		ident := IdentityFromContext(ctx)
		snap, err := portSvc.Export(ctx, ident)
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}
		metrics.IncrRequest("ok")
		writeJSON(w, http.StatusOK, snap)
	}
}

// ============================================================
// Import — POST /v1/import
// ============================================================

func importHandler(portSvc *service.PortabilityService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/import")
		defer span.End()

		var snap domain.Snapshot
		if err := decodeBody(r, &snap); err != nil {
			writeError(w, http.StatusBadRequest, "invalid snapshot payload: "+err.Error())
			return
		}

		ident := IdentityFromContext(ctx)
		summary, err := portSvc.Import(ctx, ident, &snap)
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}
		metrics.IncrRequest("ok")
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Backups — GET /v1/backups, POST /v1/backups/{backupId}/restore
// ============================================================

func listBackupsHandler(portSvc *service.PortabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/backups")
		defer span.End()

		ident := IdentityFromContext(ctx)
		backups, err := portSvc.ListBackups(ctx, ident)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if backups == nil {
			backups = []domain.BackupRecord{}
		}
		writeJSON(w, http.StatusOK, backups)
	}
}

func restoreHandler(portSvc *service.PortabilityService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/backups/{backupId}/restore")
		defer span.End()

		backupID, err := strconv.ParseInt(chi.URLParam(r, "backupId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid backup id")
			return
		}

		ident := IdentityFromContext(ctx)
		summary, err := portSvc.Restore(ctx, ident, backupID)
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}
		metrics.IncrRequest("ok")
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Portability metrics — GET /v1/metrics/portability
// ============================================================

func portabilityMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPortabilitySnapshot())
	}
}
