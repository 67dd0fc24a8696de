package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/infra/cache"
)

// queries holds the SQL shared by the pooled store and live transactions.
type queries struct {
	q        querier
	logger   *zap.Logger
	colCache *cache.InMemory[map[string]bool]
}

// Columns reports the set of columns currently present on a table, served
// from a TTL cache shared across the pool and all transactions.
func (s *queries) Columns(ctx context.Context, table string) (map[string]bool, error) {
	if cols, ok := s.colCache.Get(table); ok {
		return cols, nil
	}
	cols, err := loadColumns(ctx, s.q, table)
	if err != nil {
		return nil, err
	}
	s.colCache.Set(table, cols)
	return cols, nil
}

// ============================================================
// Users
// ============================================================

func (s *queries) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Store.CreateUser")
	defer span.End()

	_, err := s.q.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Email, u.Name, u.PasswordHash)
	return err
}

func (s *queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.GetUserByEmail")
	defer span.End()

	var u domain.User
	err := s.q.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: email}
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ============================================================
// Currencies
// ============================================================

func (s *queries) CurrencyExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM currencies WHERE code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

func (s *queries) InsertCurrency(ctx context.Context, c *domain.Currency) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO currencies (code, name, symbol, decimal_places)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING
	`, c.Code, c.Name, c.Symbol, c.DecimalPlaces)
	return err
}

// ============================================================
// Backups
// ============================================================

func (s *queries) InsertBackup(ctx context.Context, b *domain.BackupRecord) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertBackup")
	defer span.End()

	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO backups (user_id, kind, payload)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id
	`, b.UserID, b.Kind, rawJSON(b.Payload)).Scan(&id)
	return id, err
}

// ListBackups returns the user's backups newest first, without payloads.
func (s *queries) ListBackups(ctx context.Context, userID string) ([]domain.BackupRecord, error) {
	ctx, span := tracer.Start(ctx, "Store.ListBackups")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, kind, created_at
		FROM backups
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BackupRecord
	for rows.Next() {
		var b domain.BackupRecord
		if err := rows.Scan(&b.ID, &b.UserID, &b.Kind, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *queries) GetBackup(ctx context.Context, userID string, backupID int64) (*domain.BackupRecord, error) {
	ctx, span := tracer.Start(ctx, "Store.GetBackup")
	defer span.End()

	var b domain.BackupRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, kind, payload, created_at
		FROM backups
		WHERE id = $1 AND user_id = $2
	`, backupID, userID).Scan(&b.ID, &b.UserID, &b.Kind, &b.Payload, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "backup", ID: strconv.FormatInt(backupID, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ============================================================
// Import critical section
// ============================================================

// DeleteUserData clears the user's rows across all five entity types.
// Child tables first; categories are deleted only when user-owned.
func (s *queries) DeleteUserData(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteUserData")
	defer span.End()

	statements := []string{
		`DELETE FROM loan_payments WHERE loan_id IN (SELECT id FROM loans WHERE user_id = $1)`,
		`DELETE FROM loan_installments WHERE loan_id IN (SELECT id FROM loans WHERE user_id = $1)`,
		`DELETE FROM loans WHERE user_id = $1`,
		`DELETE FROM recurring_transactions WHERE user_id = $1`,
		`DELETE FROM transactions WHERE user_id = $1`,
		`DELETE FROM accounts WHERE user_id = $1`,
		`DELETE FROM categories WHERE user_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := s.q.Exec(ctx, stmt, userID); err != nil {
			return err
		}
	}
	return nil
}

// rawJSON converts a RawMessage into a jsonb-safe parameter, mapping empty
// to NULL.
func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
