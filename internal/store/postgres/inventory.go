package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajvveer/careOps/internal/models"
)

const inventoryCols = "id, workspace_id, name, quantity, threshold, unit, created_at, updated_at"

func scanInventoryItem(sc scanner) (models.InventoryItem, error) {
	var i models.InventoryItem
	err := sc.Scan(&i.ID, &i.WorkspaceID, &i.Name, &i.Quantity, &i.Threshold, &i.Unit, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (s *Store) CreateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO inventory_items(id, workspace_id, name, quantity, threshold, unit)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`,
		i.ID, i.WorkspaceID, i.Name, i.Quantity, i.Threshold, i.Unit,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (s *Store) GetInventoryItem(ctx context.Context, workspaceID, id uuid.UUID) (models.InventoryItem, error) {
	i, err := scanInventoryItem(s.q.QueryRow(ctx, `
SELECT `+inventoryCols+` FROM inventory_items WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	if err != nil {
		return models.InventoryItem{}, notFound(err, "inventory item %s", id)
	}
	return i, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	err := s.q.QueryRow(ctx, `
UPDATE inventory_items
SET name = $3, quantity = $4, threshold = $5, unit = $6, updated_at = now()
WHERE id = $1 AND workspace_id = $2
RETURNING updated_at`,
		i.ID, i.WorkspaceID, i.Name, i.Quantity, i.Threshold, i.Unit,
	).Scan(&i.UpdatedAt)
	return notFound(err, "inventory item %s", i.ID)
}

// ListLowStockItems scans every workspace; the daily inventory sweep is the
// only caller.
func (s *Store) ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+inventoryCols+` FROM inventory_items
WHERE quantity <= threshold
ORDER BY workspace_id, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInventory(rows)
}

func collectInventory(rows pgx.Rows) ([]models.InventoryItem, error) {
	var out []models.InventoryItem
	for rows.Next() {
		i, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
