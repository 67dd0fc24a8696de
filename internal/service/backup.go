package service

import (
	"context"
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/port"
)

// ============================================================
// Backup / Restore orchestration
// ============================================================

// snapshotBeforeDestructiveOp captures the user's raw entity rows into a
// BackupRecord inside the surrounding transaction, so a rolled-back import
// leaks no backup row either. Its own failure is contained by a savepoint:
// losing a safety backup never blocks the user's intentional operation.
func (s *PortabilityService) snapshotBeforeDestructiveOp(ctx context.Context, tx port.Tx, userID, kind string, summary *domain.ImportSummary) {
	err := tx.BestEffort(ctx, func(bt port.Tx) error {
		payload := domain.BackupPayload{}
		var err error
		if payload.Accounts, err = bt.ListAccounts(ctx, userID); err != nil {
			return err
		}
		if payload.Transactions, err = bt.ListTransactions(ctx, userID); err != nil {
			return err
		}
		if payload.Loans, err = bt.ListLoans(ctx, userID); err != nil {
			return err
		}
		if payload.RecurringTransactions, err = bt.ListRecurringTransactions(ctx, userID); err != nil {
			return err
		}
		if payload.Categories, err = bt.ListCategories(ctx, userID); err != nil {
			return err
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		id, err := bt.InsertBackup(ctx, &domain.BackupRecord{
			UserID:  userID,
			Kind:    kind,
			Payload: raw,
		})
		if err != nil {
			return err
		}
		summary.BackupID = &id
		return nil
	})
	if err != nil {
		summary.BackupID = nil
		s.logger.Warn("pre-operation backup failed, continuing",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		s.metrics.IncrDegradedStep(kind + "_backup")
		summary.Degradations = append(summary.Degradations, domain.Degradation{
			Step:   kind + "_backup",
			Reason: err.Error(),
		})
	}
}

// ListBackups returns the caller's backup records, newest first, without
// payloads.
func (s *PortabilityService) ListBackups(ctx context.Context, ident domain.Identity) ([]domain.BackupRecord, error) {
	ctx, span := portTracer.Start(ctx, "PortabilityService.ListBackups")
	defer span.End()

	return s.store.ListBackups(ctx, ident.UserID)
}

// Restore replaces the user's current data with a previously captured
// backup, going through the same import machinery — fresh remap scope,
// pre-restore safety backup, single transaction.
func (s *PortabilityService) Restore(ctx context.Context, ident domain.Identity, backupID int64) (*domain.ImportSummary, error) {
	ctx, span := portTracer.Start(ctx, "PortabilityService.Restore")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", ident.UserID),
		attribute.Int64("backup.id", backupID),
	)

	record, err := s.store.GetBackup(ctx, ident.UserID, backupID)
	if err != nil {
		return nil, err
	}

	var payload domain.BackupPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, &domain.ErrValidation{
			Field:   "backup " + strconv.FormatInt(backupID, 10),
			Message: "corrupt backup payload: " + err.Error(),
		}
	}

	snap := payloadToSnapshot(&payload)
	return s.runImport(ctx, ident.UserID, snap, domain.BackupPreRestore, "restore")
}

// payloadToSnapshot lifts raw backup rows into the snapshot projection so
// restore can reuse the import path unchanged. Category names are resolved
// from the payload's own category list.
func payloadToSnapshot(p *domain.BackupPayload) *domain.Snapshot {
	categoryNames := make(map[int64]string, len(p.Categories))
	for _, c := range p.Categories {
		categoryNames[c.ID] = c.Name
	}

	snap := &domain.Snapshot{
		ExportInfo: domain.ExportInfo{Version: domain.SnapshotVersion},
	}
	for i := range p.Accounts {
		snap.Accounts = append(snap.Accounts, projectAccount(&p.Accounts[i]))
	}
	for i := range p.Transactions {
		snap.Transactions = append(snap.Transactions, projectTransaction(&p.Transactions[i], categoryNames))
	}
	for i := range p.Loans {
		snap.Loans = append(snap.Loans, projectLoan(&p.Loans[i]))
	}
	for i := range p.RecurringTransactions {
		snap.RecurringTransactions = append(snap.RecurringTransactions, projectRecurring(&p.RecurringTransactions[i], categoryNames))
	}
	for _, c := range p.Categories {
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
	return snap
}
