// Package points migrates the legacy point total and transaction history
// into an append-only ledger, and derives the user level from points.
package points

import (
	"time"

	"github.com/hyperengineering/cadence/internal/legacy"
	"github.com/hyperengineering/cadence/internal/types"
	"github.com/oklog/ulid/v2"
)

// LevelForPoints derives the user level from a point total. Each level n
// costs 100*n points to clear, so level thresholds are 0, 100, 300, 600,
// 1000, ... The level is always derived, never stored as authority.
func LevelForPoints(total int) int {
	if total < 0 {
		return 1
	}
	level := 1
	threshold := 0
	for {
		threshold += 100 * level
		if total < threshold {
			return level
		}
		level++
	}
}

// MigrateLedger builds the normalized ledger from legacy stats. When the
// legacy data carries no transaction history, exactly one transaction is
// synthesized for the full legacy total so the conservation invariant
// (total == sum of transaction amounts) holds even for data that predates
// ledger tracking. The level is derived from the migrated total; the
// legacy stored level is ignored to self-heal prior desynchronization.
func MigrateLedger(stats *legacy.UserStats, now time.Time) (types.UserProgress, []types.PointTransaction) {
	now = now.UTC()
	var txs []types.PointTransaction

	if len(stats.Transactions) == 0 {
		if stats.TotalPoints != 0 {
			txs = append(txs, types.PointTransaction{
				ID:        ulid.Make().String(),
				UserID:    stats.UserID,
				Amount:    stats.TotalPoints,
				Reason:    types.ReasonLegacyMigration,
				CreatedAt: now,
			})
		}
	} else {
		txs = make([]types.PointTransaction, 0, len(stats.Transactions))
		for _, t := range stats.Transactions {
			txs = append(txs, types.PointTransaction{
				ID:        ulid.Make().String(),
				UserID:    stats.UserID,
				Amount:    t.Amount,
				Reason:    t.Reason,
				CreatedAt: t.CreatedAt.UTC(),
			})
		}
	}

	total := 0
	for _, t := range txs {
		total += t.Amount
	}

	return types.UserProgress{
		UserID:      stats.UserID,
		TotalPoints: total,
		Level:       LevelForPoints(total),
		UpdatedAt:   now,
	}, txs
}
