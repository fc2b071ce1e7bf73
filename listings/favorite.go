package listings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arnasbieliauskas/ntduomenys/dbopen"
)

// SetFavorite toggles the favorite flag for one identity on the history rows
// and the latest-state row in a single transaction, so the two tables never
// disagree about a favorite. A blank external id is a no-op.
func (s *Store) SetFavorite(ctx context.Context, id Identity, selected bool) error {
	id = id.Normalized()
	if id.ExternalID == "" {
		return nil
	}
	flag := boolInt(selected)
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
UPDATE listings SET selected = ?
WHERE TRIM(IFNULL(external_id, '')) = ?
  AND COALESCE(NULLIF(TRIM(search_object), ''), '') = ?`,
			flag, id.ExternalID, id.SearchObject)
		if err != nil {
			return fmt.Errorf("update history favorite: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
UPDATE latest_listings SET selected = ?
WHERE external_id = ? AND search_object = ?`,
			flag, id.ExternalID, id.SearchObject)
		if err != nil {
			return fmt.Errorf("update latest favorite: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("favorite updated",
		"external_id", id.ExternalID, "search_object", id.SearchObject, "selected", selected)
	return nil
}
