package domain

// MinterVersion is surfaced in stats and health payloads.
const MinterVersion = 2

// LedgerStats aggregates holds and transfers for operator tooling.
type LedgerStats struct {
	Total               int     `json:"total"`
	Pending             int     `json:"pending"`
	Submitted           int     `json:"submitted"`
	Confirmed           int     `json:"confirmed"`
	Failed              int     `json:"failed"`
	TotalAmount         float64 `json:"totalAmount"` // CONFIRMED holds only
	TotalTransfers      int     `json:"totalTransfers"`
	TotalTransferAmount float64 `json:"totalTransferAmount"` // COMPLETED transfers only
	MinterVersion       int     `json:"minterVersion"`
}

// ComputeStats aggregates over holds and transfers. Pure read: inputs are
// not mutated and the counts always sum to len(holds).
func ComputeStats(holds []*Hold, transfers []*Transfer) LedgerStats {
	stats := LedgerStats{
		Total:          len(holds),
		TotalTransfers: len(transfers),
		MinterVersion:  MinterVersion,
	}
	for _, h := range holds {
		switch h.Status {
		case HoldPending:
			stats.Pending++
		case HoldSubmitted:
			stats.Submitted++
		case HoldConfirmed:
			stats.Confirmed++
			stats.TotalAmount += h.AmountUsd
		case HoldFailed:
			stats.Failed++
		}
	}
	for _, t := range transfers {
		if t.Status == TransferCompleted {
			stats.TotalTransferAmount += t.Amount
		}
	}
	return stats
}
