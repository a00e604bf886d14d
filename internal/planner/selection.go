package planner

import (
	"fmt"

	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// selectCoins prefers a single coin that exactly covers need, otherwise
// accumulates the fewest largest coins that do. candidates must already
// be sorted largest first (internal/db.SelectableCoins orders by amount
// DESC).
func selectCoins(assetID models.Hash, candidates []models.CoinRecord, need uint64) ([]models.CoinRecord, error) {
	if need == 0 {
		return nil, nil
	}

	for _, c := range candidates {
		if c.Amount == need {
			return []models.CoinRecord{c}, nil
		}
	}

	var selected []models.CoinRecord
	var total uint64
	for _, c := range candidates {
		selected = append(selected, c)
		total += c.Amount
		if total >= need {
			return selected, nil
		}
	}

	return nil, walleterr.New(walleterr.KindInsufficientFunds, "planner.selectCoins",
		fmt.Sprintf("asset %s: need %d, only %d selectable", assetID, need, total))
}

// selectedTotal sums the amount of a selected coin set.
func selectedTotal(coins []models.CoinRecord) uint64 {
	var total uint64
	for _, c := range coins {
		total += c.Amount
	}
	return total
}
