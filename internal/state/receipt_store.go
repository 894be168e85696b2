// ./internal/state/receipt_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gabikreal1/HLE/internal/types"
)

// ReceiptStore persists executed rebalance receipts. It satisfies
// rebalance.ReceiptSink.
type ReceiptStore struct{}

func (ReceiptStore) SaveReceipt(receipt types.RebalanceReceipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rebalance_receipts (
			action_timestamp, instrument_id, action_type, amount, diff_bps, payload, success, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING receipt_id;`

	var receiptID int64
	err := DB.QueryRow(
		query,
		receipt.Timestamp, int64(receipt.Instrument), receipt.Action.String(),
		receipt.Amount.String(), receipt.DiffBps, receipt.Payload,
		receipt.Success, receipt.Message,
	).Scan(&receiptID)
	if err != nil {
		return fmt.Errorf("failed to save rebalance receipt: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("action", receipt.Action.String()).
		Str("amount", receipt.Amount.String()).
		Msg("Rebalance receipt saved")
	return nil
}

// LoadRecentReceipts returns up to limit receipts, newest first.
func LoadRecentReceipts(limit int) ([]types.RebalanceReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := DB.Query(`
		SELECT action_timestamp, instrument_id, action_type, amount, diff_bps, payload, success, COALESCE(message, '')
		FROM rebalance_receipts
		ORDER BY action_timestamp DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.RebalanceReceipt
	for rows.Next() {
		var (
			r          types.RebalanceReceipt
			instrument int64
			action     string
			amount     string
		)
		if err := rows.Scan(&r.Timestamp, &instrument, &action, &amount, &r.DiffBps, &r.Payload, &r.Success, &r.Message); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance receipt: %w", err)
		}
		r.Instrument = types.InstrumentID(instrument)
		switch action {
		case types.RebalanceToPool.String():
			r.Action = types.RebalanceToPool
		case types.RebalanceToExternal.String():
			r.Action = types.RebalanceToExternal
		default:
			r.Action = types.RebalanceNone
		}
		if r.Amount, err = scanInt(amount, "amount"); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
