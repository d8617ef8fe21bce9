package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/stockroom/internal/storage"
)

// UpsertStockView replaces the stored stock projection for a product.
func (s *Store) UpsertStockView(ctx context.Context, view storage.StockView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	view.ProductID = strings.TrimSpace(view.ProductID)
	if view.ProductID == "" {
		return fmt.Errorf("product id is required")
	}
	if view.UpdatedAt.IsZero() {
		view.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO inventory_stock_views (product_id, amount, revision, pending, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (product_id) DO UPDATE SET
	amount = excluded.amount,
	revision = excluded.revision,
	pending = excluded.pending,
	updated_at = excluded.updated_at
`,
		view.ProductID,
		view.Amount,
		int64(view.Revision),
		view.Pending,
		toMillis(view.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert stock view: %w", err)
	}
	return nil
}

// GetStockView returns the stock projection for a product.
func (s *Store) GetStockView(ctx context.Context, productID string) (storage.StockView, error) {
	if err := ctx.Err(); err != nil {
		return storage.StockView{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.StockView{}, fmt.Errorf("storage is not configured")
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return storage.StockView{}, fmt.Errorf("product id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT product_id, amount, revision, pending, updated_at
FROM inventory_stock_views
WHERE product_id = ?
`, productID)
	view, err := scanStockView(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.StockView{}, storage.ErrNotFound
		}
		return storage.StockView{}, fmt.Errorf("get stock view: %w", err)
	}
	return view, nil
}

// ListStockViews returns stock projections ordered by product id.
func (s *Store) ListStockViews(ctx context.Context, limit int) ([]storage.StockView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT product_id, amount, revision, pending, updated_at
FROM inventory_stock_views
ORDER BY product_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stock views: %w", err)
	}
	defer rows.Close()

	views := make([]storage.StockView, 0, limit)
	for rows.Next() {
		view, err := scanStockView(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stock view: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock views: %w", err)
	}
	return views, nil
}

func scanStockView(scan func(dest ...any) error) (storage.StockView, error) {
	var view storage.StockView
	var revision, updatedAt int64
	if err := scan(&view.ProductID, &view.Amount, &revision, &view.Pending, &updatedAt); err != nil {
		return storage.StockView{}, err
	}
	view.Revision = uint64(revision)
	view.UpdatedAt = fromMillis(updatedAt)
	return view, nil
}

// UpsertCommandView replaces the stored command projection.
func (s *Store) UpsertCommandView(ctx context.Context, view storage.CommandView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	view.CommandID = strings.TrimSpace(view.CommandID)
	if view.CommandID == "" {
		return fmt.Errorf("command id is required")
	}
	view.Status = strings.TrimSpace(view.Status)
	if view.Status == "" {
		return fmt.Errorf("status is required")
	}
	if view.UpdatedAt.IsZero() {
		view.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO inventory_command_views (command_id, status, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (command_id) DO UPDATE SET
	status = excluded.status,
	updated_at = excluded.updated_at
`,
		view.CommandID,
		view.Status,
		toMillis(view.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert command view: %w", err)
	}
	return nil
}

// GetCommandView returns the command projection for a command id.
func (s *Store) GetCommandView(ctx context.Context, commandID string) (storage.CommandView, error) {
	if err := ctx.Err(); err != nil {
		return storage.CommandView{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CommandView{}, fmt.Errorf("storage is not configured")
	}

	commandID = strings.TrimSpace(commandID)
	if commandID == "" {
		return storage.CommandView{}, fmt.Errorf("command id is required")
	}

	var view storage.CommandView
	var updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT command_id, status, updated_at
FROM inventory_command_views
WHERE command_id = ?
`, commandID)
	if err := row.Scan(&view.CommandID, &view.Status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CommandView{}, storage.ErrNotFound
		}
		return storage.CommandView{}, fmt.Errorf("get command view: %w", err)
	}
	view.UpdatedAt = fromMillis(updatedAt)
	return view, nil
}
