// Package offers implements the offer engine: building, taking,
// importing, combining, and cancelling coin-set offer files. The actual
// CLVM puzzle/solution bytes and signature aggregation stay behind the
// same external-collaborator boundary internal/planner draws around
// them; this package only ever reasons about coins, asset amounts, and
// the planner's AssetSpend/Condition vocabulary.
package offers

import (
	"context"
	"sort"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/planner"
	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// SignatureAggregator combines the individual signatures of two or more
// spend bundles into one aggregated signature, the BLS aggregation
// capability `combine_offers` needs. Like planner.PuzzleBuilder, the
// actual elliptic-curve math is an external collaborator here.
type SignatureAggregator interface {
	Aggregate(sigs []models.Signature) (models.Signature, error)
}

// Engine builds and manages offers against store, lowering planned
// spends to wire bytes via builder.
type Engine struct {
	store   *db.Store
	builder planner.PuzzleBuilder
	aggregator SignatureAggregator
}

// New constructs an Engine.
func New(store *db.Store, builder planner.PuzzleBuilder, aggregator SignatureAggregator) *Engine {
	return &Engine{store: store, builder: builder, aggregator: aggregator}
}

// MakeResult is the outcome of building the maker side of an offer.
type MakeResult struct {
	Offer  models.Offer
	Bundle *models.SpendBundle
}

// MakeOffer selects coins to cover terms.Offered (plus fee, added to the
// native asset's need), locks the primary coin of every asset group
// into the settlement puzzle, and threads a ring-of-assertions across
// every primary coin so a partial acceptance can never be valid.
func (e *Engine) MakeOffer(ctx context.Context, terms Terms, changeP2PuzzleHash models.Hash, expirationSeconds *int64, fee uint64) (*MakeResult, error) {
	needs := map[models.Hash]uint64{}
	for _, leg := range terms.Offered {
		if leg.Amount > 0 {
			needs[leg.AssetID] += leg.Amount
		}
	}
	if fee > 0 {
		needs[models.ZeroHash] += fee
	}

	assetIDs := sortedAssetIDs(needs)
	groups := make(map[models.Hash][]models.CoinRecord, len(assetIDs))
	var allCoinIDs []models.Hash
	for _, assetID := range assetIDs {
		candidates, err := e.store.SelectableCoins(ctx, assetID)
		if err != nil {
			return nil, err
		}
		selected, err := selectCoins(assetID, candidates, needs[assetID])
		if err != nil {
			return nil, err
		}
		groups[assetID] = selected
		for _, c := range selected {
			allCoinIDs = append(allCoinIDs, c.CoinID)
		}
	}

	nonce := Nonce(allCoinIDs)

	payments := make([]planner.CreateCoin, 0, len(terms.Requested)+len(terms.NftRoyalties))
	for _, leg := range terms.Requested {
		if leg.Amount == 0 {
			continue
		}
		payments = append(payments, planner.CreateCoin{PuzzleHash: changeP2PuzzleHash, Amount: leg.Amount})
	}
	for _, r := range terms.NftRoyalties {
		payments = append(payments, planner.CreateCoin{PuzzleHash: r.RoyaltyPuzzleHash, Amount: r.Amount})
	}

	var allSlots []planner.AssetSpend
	var primaryIdx []int
	paymentsAttached := false

	for _, assetID := range assetIDs {
		selected := groups[assetID]
		if len(selected) == 0 {
			continue
		}
		offeredAmount := uint64(0)
		for _, leg := range terms.Offered {
			if leg.AssetID == assetID {
				offeredAmount = leg.Amount
			}
		}

		slots := make([]planner.AssetSpend, 0, len(selected))
		for _, rec := range selected {
			p2Hash := rec.PuzzleHash
			if rec.P2PuzzleHash != nil {
				p2Hash = *rec.P2PuzzleHash
			}
			slots = append(slots, planner.AssetSpend{Coin: rec.Coin(), P2PuzzleHash: p2Hash})
		}

		if assetID.IsZero() && fee > 0 {
			slots[0].Conditions = append(slots[0].Conditions, planner.ReserveFee{Amount: fee})
		}
		if offeredAmount > 0 {
			slots[0].Conditions = append(slots[0].Conditions, planner.CreateCoin{
				PuzzleHash: puzzle.SettlementPaymentsModHash, Amount: offeredAmount,
			})
		}
		if !paymentsAttached && len(payments) > 0 {
			slots[0].Conditions = append(slots[0].Conditions, planner.SettleIntoNonce{Nonce: nonce, Payments: payments})
			paymentsAttached = true
		}

		existing := selectedTotal(selected)
		spend := offeredAmount
		if assetID.IsZero() {
			spend += fee
		}
		if existing > spend {
			change := existing - spend
			slots[len(slots)-1].Conditions = append(slots[len(slots)-1].Conditions,
				planner.CreateCoin{PuzzleHash: changeP2PuzzleHash, Amount: change})
		}

		if len(slots) > 1 {
			for i := range slots {
				next := slots[(i+1)%len(slots)]
				slots[i].Conditions = append(slots[i].Conditions, planner.AssertConcurrentSpend{CoinID: next.Coin.CoinID()})
			}
		}

		primaryIdx = append(primaryIdx, len(allSlots))
		allSlots = append(allSlots, slots...)
	}

	if len(primaryIdx) > 1 {
		for i, idx := range primaryIdx {
			nextIdx := primaryIdx[(i+1)%len(primaryIdx)]
			allSlots[idx].Conditions = append(allSlots[idx].Conditions,
				planner.AssertConcurrentSpend{CoinID: allSlots[nextIdx].Coin.CoinID()})
		}
	}

	bundle, err := buildBundle(ctx, e.builder, allSlots)
	if err != nil {
		return nil, err
	}

	offerID := nonce
	offer := models.Offer{
		ID: offerID, Nonce: nonce, Status: models.OfferStatusActive,
		ExpirationSeconds: expirationSeconds, Fee: fee, IsOurOffer: true,
	}

	err = e.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.InsertOffer(ctx, offer); err != nil {
			return err
		}
		for _, leg := range terms.Offered {
			if err := tx.InsertOfferedAsset(ctx, models.OfferedAsset{OfferID: offerID, AssetID: leg.AssetID, Amount: leg.Amount, IsRequested: false}); err != nil {
				return err
			}
		}
		for _, leg := range terms.Requested {
			if err := tx.InsertOfferedAsset(ctx, models.OfferedAsset{OfferID: offerID, AssetID: leg.AssetID, Amount: leg.Amount, IsRequested: true}); err != nil {
				return err
			}
		}
		for _, coinID := range allCoinIDs {
			if err := tx.SetOfferLock(ctx, coinID, &offerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MakeResult{Offer: offer, Bundle: bundle}, nil
}

// TakeOffer satisfies an Active offer's requested side: it selects
// wallet coins to pay every requested asset amount directly to the
// maker's own puzzle hash (the requested leg never routes through the
// settlement puzzle, only the offered leg does), then replays the
// maker's already-locked coins so the combined bundle spends both sides
// atomically. Change goes back to the last selected coin's own p2 puzzle
// hash.
func (e *Engine) TakeOffer(ctx context.Context, offer models.Offer, makerP2PuzzleHash models.Hash, fee uint64) (*models.SpendBundle, error) {
	if offer.Status != models.OfferStatusActive {
		return nil, walleterr.New(walleterr.KindInvariantViolation, "offers.TakeOffer", "offer is not active")
	}
	legs, err := e.store.OfferedAssetsByOfferID(ctx, offer.ID)
	if err != nil {
		return nil, err
	}

	needs := map[models.Hash]uint64{}
	for _, leg := range legs {
		if leg.IsRequested && leg.Amount > 0 {
			needs[leg.AssetID] += leg.Amount
		}
	}
	if fee > 0 {
		needs[models.ZeroHash] += fee
	}

	var takerSlots []planner.AssetSpend
	for _, assetID := range sortedAssetIDs(needs) {
		candidates, err := e.store.SelectableCoins(ctx, assetID)
		if err != nil {
			return nil, err
		}
		selected, err := selectCoins(assetID, candidates, needs[assetID])
		if err != nil {
			return nil, err
		}
		slots := make([]planner.AssetSpend, 0, len(selected))
		for _, rec := range selected {
			p2Hash := rec.PuzzleHash
			if rec.P2PuzzleHash != nil {
				p2Hash = *rec.P2PuzzleHash
			}
			slots = append(slots, planner.AssetSpend{Coin: rec.Coin(), P2PuzzleHash: p2Hash})
		}
		if assetID.IsZero() && fee > 0 {
			slots[0].Conditions = append(slots[0].Conditions, planner.ReserveFee{Amount: fee})
		}
		amount := needs[assetID]
		if assetID.IsZero() {
			amount = needs[assetID] - fee
		}
		if amount > 0 {
			slots[0].Conditions = append(slots[0].Conditions, planner.CreateCoin{PuzzleHash: makerP2PuzzleHash, Amount: amount})
		}
		existing := selectedTotal(selected)
		if existing > needs[assetID] {
			change := existing - needs[assetID]
			slots[len(slots)-1].Conditions = append(slots[len(slots)-1].Conditions,
				planner.CreateCoin{PuzzleHash: slots[len(slots)-1].P2PuzzleHash, Amount: change})
		}
		if len(slots) > 1 {
			for i := range slots {
				next := slots[(i+1)%len(slots)]
				slots[i].Conditions = append(slots[i].Conditions, planner.AssertConcurrentSpend{CoinID: next.Coin.CoinID()})
			}
		}
		takerSlots = append(takerSlots, slots...)
	}

	makerCoins, err := e.store.CoinsByOfferID(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	makerSlots := make([]planner.AssetSpend, 0, len(makerCoins))
	for _, rec := range makerCoins {
		makerSlots = append(makerSlots, planner.AssetSpend{
			Coin: rec.Coin(), P2PuzzleHash: puzzle.SettlementPaymentsModHash,
		})
	}

	return buildBundle(ctx, e.builder, append(takerSlots, makerSlots...))
}

// ImportOffer persists an already-decoded offer (parsed elsewhere, since
// bech32m decoding is outside this package's scope) as an Active row
// with its denormalized asset legs. The Sync Manager owns transitioning
// it to Completed/Cancelled/Expired as locked coins are observed spent
// or the clock runs past expiration.
func (e *Engine) ImportOffer(ctx context.Context, offer models.Offer, legs []models.OfferedAsset) error {
	offer.Status = models.OfferStatusActive
	return e.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.InsertOffer(ctx, offer); err != nil {
			return err
		}
		for _, leg := range legs {
			leg.OfferID = offer.ID
			if err := tx.InsertOfferedAsset(ctx, leg); err != nil {
				return err
			}
		}
		return nil
	})
}

// CombineOffers concatenates every bundle's spends and aggregates their
// signatures, so multiple compatible offers can be accepted in one
// on-chain transaction.
func (e *Engine) CombineOffers(bundles []*models.SpendBundle) (*models.SpendBundle, error) {
	if len(bundles) == 0 {
		return nil, walleterr.New(walleterr.KindInvariantViolation, "offers.CombineOffers", "no bundles to combine")
	}
	var spends []models.CoinSpend
	var sigs []models.Signature
	for _, b := range bundles {
		spends = append(spends, b.Spends...)
		sigs = append(sigs, b.AggregatedSig)
	}
	aggregated, err := e.aggregator.Aggregate(sigs)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.KindInvariantViolation, "offers.CombineOffers", "aggregate signatures", err)
	}
	return &models.SpendBundle{Spends: spends, AggregatedSig: aggregated}, nil
}

// CancelOffer re-spends every coin this offer locked into the
// settlement puzzle back to walletP2PuzzleHash, invalidating the offer
// on-chain without anyone taking it.
func (e *Engine) CancelOffer(ctx context.Context, offer models.Offer, walletP2PuzzleHash models.Hash, fee uint64) (*models.SpendBundle, error) {
	coins, err := e.store.CoinsByOfferID(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, walleterr.New(walleterr.KindNotFound, "offers.CancelOffer", "no coins locked under this offer")
	}

	var slots []planner.AssetSpend
	for _, rec := range coins {
		slots = append(slots, planner.AssetSpend{
			Coin: rec.Coin(), P2PuzzleHash: puzzle.SettlementPaymentsModHash,
			Conditions: []planner.Condition{planner.CreateCoin{PuzzleHash: walletP2PuzzleHash, Amount: rec.Amount}},
		})
	}
	if fee > 0 {
		slots[0].Conditions = append(slots[0].Conditions, planner.ReserveFee{Amount: fee})
	}
	if len(slots) > 1 {
		for i := range slots {
			next := slots[(i+1)%len(slots)]
			slots[i].Conditions = append(slots[i].Conditions, planner.AssertConcurrentSpend{CoinID: next.Coin.CoinID()})
		}
	}

	bundle, err := buildBundle(ctx, e.builder, slots)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx *db.Tx) error {
		for _, rec := range coins {
			if err := tx.SetOfferLock(ctx, rec.CoinID, nil); err != nil {
				return err
			}
		}
		return tx.UpdateOfferStatus(ctx, offer.ID, models.OfferStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func buildBundle(ctx context.Context, builder planner.PuzzleBuilder, slots []planner.AssetSpend) (*models.SpendBundle, error) {
	spends := make([]models.CoinSpend, 0, len(slots))
	for _, slot := range slots {
		reveal, solution, err := builder.BuildSpend(ctx, slot)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.KindInvariantViolation, "offers.buildBundle", "build puzzle reveal/solution", err)
		}
		spends = append(spends, models.CoinSpend{Coin: slot.Coin, PuzzleReveal: reveal, Solution: solution})
	}
	return &models.SpendBundle{Spends: spends}, nil
}

func sortedAssetIDs(needs map[models.Hash]uint64) []models.Hash {
	ids := make([]models.Hash, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].IsZero() != ids[j].IsZero() {
			return ids[i].IsZero()
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}

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
	return nil, walleterr.New(walleterr.KindInsufficientFunds, "offers.selectCoins", "asset "+assetID.String()+": insufficient spendable coins")
}

func selectedTotal(coins []models.CoinRecord) uint64 {
	var total uint64
	for _, c := range coins {
		total += c.Amount
	}
	return total
}
