package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// ============================================================
// Categories
// ============================================================

// ListCategories returns the categories visible to the user: their own plus
// the global (unowned) ones.
func (s *queries) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Store.ListCategories")
	defer span.End()

	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, name, type, color
		FROM categories
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Color); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCategoryByName looks up a category with the exact name owned by the
// user, falling back to a global one.
func (s *queries) FindCategoryByName(ctx context.Context, userID, name string) (int64, bool, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		SELECT id FROM categories
		WHERE name = $2 AND (user_id = $1 OR user_id IS NULL)
		ORDER BY user_id NULLS LAST
		LIMIT 1
	`, userID, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *queries) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func (s *queries) InsertCategory(ctx context.Context, c *domain.Category) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.InsertCategory")
	defer span.End()

	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO categories (user_id, name, type, color)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.UserID, c.Name, c.Type, c.Color).Scan(&id)
	return id, err
}
