// ./internal/state/quote_store.go
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsedQuoteStore is the append-only postgres replay guard. It satisfies
// quote.UsedStore. Rows are never deleted: a burned identifier stays burned.
type UsedQuoteStore struct{}

func (UsedQuoteStore) IsUsed(id uuid.UUID) (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database not initialized")
	}

	var exists bool
	err := DB.QueryRow(`SELECT EXISTS (SELECT 1 FROM used_quotes WHERE quote_id = $1);`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check quote usage: %w", err)
	}
	return exists, nil
}

func (UsedQuoteStore) MarkUsed(id uuid.UUID, at time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// A conflicting insert means the quote was already burned; surfacing that
	// as an error keeps the settle path honest about replays.
	res, err := DB.Exec(`INSERT INTO used_quotes (quote_id, used_at) VALUES ($1, $2) ON CONFLICT (quote_id) DO NOTHING;`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark quote used: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm quote marking: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("quote %s already marked used", id)
	}
	return nil
}
