package planner

import (
	"context"
	"sort"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// AssetSpend is one input coin plus the condition list the planner has
// decided it carries, prior to CLVM encoding.
type AssetSpend struct {
	Coin         models.Coin
	P2PuzzleHash models.Hash
	Conditions   []Condition
}

// PuzzleBuilder lowers a planned AssetSpend to an actual puzzle
// reveal/solution pair. Building the CLVM program itself sits outside
// this package's scope, the same external-collaborator boundary
// puzzle.Program draws around decoding one.
type PuzzleBuilder interface {
	BuildSpend(ctx context.Context, spend AssetSpend) (puzzleReveal, solution []byte, err error)
}

// Planner assembles unsigned spend bundles from a high-level action
// list.
type Planner struct {
	store   *db.Store
	builder PuzzleBuilder
}

// New constructs a Planner against store, using builder to lower planned
// spends to wire bytes.
func New(store *db.Store, builder PuzzleBuilder) *Planner {
	return &Planner{store: store, builder: builder}
}

// Result is the outcome of a successful Plan call: the unsigned bundle
// plus every coin id it consumes, so the caller (the mempool ledger) can
// lock them atomically with enqueueing the bundle.
type Result struct {
	Bundle        *models.SpendBundle
	SelectedCoins []models.Hash
}

// Plan runs the full pipeline: preselect coins per asset, distribute
// payments and change across them, thread the ring-of-assertions and
// fee-reservation conditions through, and lower every resulting
// AssetSpend to a CoinSpend via the PuzzleBuilder.
func (p *Planner) Plan(ctx context.Context, actions []Action, fee uint64) (*Result, error) {
	needs, err := p.preselect(actions, fee)
	if err != nil {
		return nil, err
	}

	groups := make(map[models.Hash][]models.CoinRecord, len(needs))
	var selectedCoins []models.Hash
	assetIDs := sortedAssetIDs(needs)
	for _, assetID := range assetIDs {
		need := needs[assetID]
		if need == 0 {
			continue
		}
		candidates, err := p.store.SelectableCoins(ctx, assetID)
		if err != nil {
			return nil, err
		}
		selected, err := selectCoins(assetID, candidates, need)
		if err != nil {
			return nil, err
		}
		groups[assetID] = selected
		for _, c := range selected {
			selectedCoins = append(selectedCoins, c.CoinID)
		}
	}

	changeHash, haveChangeHash, err := p.changePuzzleHash(ctx)
	if err != nil {
		return nil, err
	}

	spentByAsset := sentAmounts(actions)

	var allSlots []AssetSpend
	var feeCoinID *models.Hash

	for _, assetID := range assetIDs {
		selected, ok := groups[assetID]
		if !ok {
			continue
		}
		slots, err := p.distribute(assetID, selected, actions, spentByAsset[assetID], fee, changeHash, haveChangeHash)
		if err != nil {
			return nil, err
		}
		if assetID.IsZero() && fee > 0 && len(slots) > 0 {
			id := slots[0].Coin.CoinID()
			feeCoinID = &id
		}
		allSlots = append(allSlots, slots...)
	}

	if err := p.singletonMutations(ctx, actions, &allSlots); err != nil {
		return nil, err
	}

	if feeCoinID != nil {
		enforceFeeAssertions(allSlots, *feeCoinID)
	}

	bundle, err := p.build(ctx, allSlots)
	if err != nil {
		return nil, err
	}

	return &Result{Bundle: bundle, SelectedCoins: selectedCoins}, nil
}

// preselect computes, per asset id, the net amount of spendable coin
// value this plan must select to cover every Send plus the fee.
// Launcher-creating actions are approximated at their mandatory 1-mojo
// XCH cost; every other singleton mutation re-spends an existing coin
// and consumes no fresh value beyond the fee.
func (p *Planner) preselect(actions []Action, fee uint64) (map[models.Hash]uint64, error) {
	needs := map[models.Hash]uint64{models.ZeroHash: fee}

	for _, a := range actions {
		switch act := a.(type) {
		case Send:
			id := models.ZeroHash
			if act.AssetID != nil {
				id = *act.AssetID
			}
			needs[id] += act.Amount
		case SettlePayment:
			id := models.ZeroHash
			if act.AssetID != nil {
				id = *act.AssetID
			}
			needs[id] += act.NotarizedPayment.Amount
		case FeeAction:
			needs[models.ZeroHash] += act.Amount
		case MintCat:
			needs[models.ZeroHash] += act.Amount
		case MintNft, CreateDid, MintOption:
			needs[models.ZeroHash]++
		}
	}

	return needs, nil
}

// sentAmounts sums the Send actions' amounts per asset id, the "spent"
// term of the change formula.
func sentAmounts(actions []Action) map[models.Hash]uint64 {
	spent := map[models.Hash]uint64{}
	for _, a := range actions {
		send, ok := a.(Send)
		if !ok {
			continue
		}
		id := models.ZeroHash
		if send.AssetID != nil {
			id = *send.AssetID
		}
		spent[id] += send.Amount
	}
	for _, a := range actions {
		settle, ok := a.(SettlePayment)
		if !ok {
			continue
		}
		id := models.ZeroHash
		if settle.AssetID != nil {
			id = *settle.AssetID
		}
		spent[id] += settle.NotarizedPayment.Amount
	}
	return spent
}

func sortedAssetIDs(needs map[models.Hash]uint64) []models.Hash {
	ids := make([]models.Hash, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		// Native asset (the fee payer) always distributes first so its
		// single reserving coin exists before cross-group fee assertions
		// are threaded through the other groups.
		if ids[i].IsZero() != ids[j].IsZero() {
			return ids[i].IsZero()
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func (p *Planner) changePuzzleHash(ctx context.Context) (models.Hash, bool, error) {
	d, found, err := p.store.UnusedDerivationIndex(ctx, false)
	if err != nil {
		return models.Hash{}, false, err
	}
	return d.P2PuzzleHash, found, nil
}

// distribute builds one AssetSpend per selected coin, attaches every Send
// payment targeting this asset (routing collisions through an
// intermediate zero-value coin), appends change to the last slot, and
// threads the ring-of-assertions between slots.
func (p *Planner) distribute(assetID models.Hash, selected []models.CoinRecord, actions []Action, spent uint64, fee uint64, changeHash models.Hash, haveChangeHash bool) ([]AssetSpend, error) {
	slots := make([]AssetSpend, 0, len(selected))
	for _, rec := range selected {
		p2Hash := rec.PuzzleHash
		if rec.P2PuzzleHash != nil {
			p2Hash = *rec.P2PuzzleHash
		}
		slots = append(slots, AssetSpend{Coin: rec.Coin(), P2PuzzleHash: p2Hash})
	}

	if assetID.IsZero() && fee > 0 && len(slots) > 0 {
		slots[0].Conditions = append(slots[0].Conditions, ReserveFee{Amount: fee})
	}

	for _, a := range actions {
		send, ok := a.(Send)
		if !ok {
			continue
		}
		sendAsset := models.ZeroHash
		if send.AssetID != nil {
			sendAsset = *send.AssetID
		}
		if sendAsset != assetID {
			continue
		}
		memos := send.Memos
		if send.MemoMode == MemoModeHint {
			memos = [][]byte{send.Recipient.Bytes()}
		}
		addPayment(&slots, CreateCoin{PuzzleHash: send.Recipient, Amount: send.Amount, Memos: memos})
	}

	for _, a := range actions {
		settle, ok := a.(SettlePayment)
		if !ok {
			continue
		}
		settleAsset := models.ZeroHash
		if settle.AssetID != nil {
			settleAsset = *settle.AssetID
		}
		if settleAsset != assetID {
			continue
		}
		np := settle.NotarizedPayment
		addPayment(&slots, CreateCoin{PuzzleHash: np.PuzzleHash, Amount: np.Amount, Memos: np.Memos})
	}

	existing := selectedTotal(selected)
	spendAmount := spent
	if assetID.IsZero() {
		spendAmount += fee
	}
	if existing > spendAmount && len(slots) > 0 {
		change := existing - spendAmount
		changeHashToUse := slots[len(slots)-1].P2PuzzleHash
		if haveChangeHash {
			changeHashToUse = changeHash
		}
		last := len(slots) - 1
		slots[last].Conditions = append(slots[last].Conditions, CreateCoin{PuzzleHash: changeHashToUse, Amount: change})
	}

	if len(slots) > 1 {
		for i := range slots {
			next := slots[(i+1)%len(slots)]
			slots[i].Conditions = append(slots[i].Conditions, AssertConcurrentSpend{CoinID: next.Coin.CoinID()})
		}
	}

	return slots, nil
}

// addPayment implements the intermediate-parent collision rule: the
// first slot not already carrying an identical payment gets it
// directly; if every existing slot already does, a zero-value
// child coin is allocated off the first slot and the payment is routed
// through it instead, so the two resulting coin ids stay unique.
func addPayment(slots *[]AssetSpend, payment CreateCoin) {
	for i := range *slots {
		if !hasEqualCondition((*slots)[i].Conditions, payment) {
			(*slots)[i].Conditions = append((*slots)[i].Conditions, payment)
			return
		}
	}

	parent := &(*slots)[0]
	marker := CreateCoin{PuzzleHash: parent.P2PuzzleHash, Amount: 0}
	if !hasEqualCondition(parent.Conditions, marker) {
		parent.Conditions = append(parent.Conditions, marker)
	}

	child := AssetSpend{
		Coin:         parent.Coin.Child(parent.P2PuzzleHash, 0),
		P2PuzzleHash: parent.P2PuzzleHash,
		Conditions:   []Condition{payment},
	}
	*slots = append(*slots, child)
}

// enforceFeeAssertions ensures every spend that is not the fee-reserving
// coin itself asserts concurrent spend with it.
func enforceFeeAssertions(slots []AssetSpend, feeCoinID models.Hash) {
	for i := range slots {
		if slots[i].Coin.CoinID() == feeCoinID {
			continue
		}
		assertion := AssertConcurrentSpend{CoinID: feeCoinID}
		if !hasEqualCondition(slots[i].Conditions, assertion) {
			slots[i].Conditions = append(slots[i].Conditions, assertion)
		}
	}
}

// build lowers every planned AssetSpend to a models.CoinSpend via the
// injected PuzzleBuilder.
func (p *Planner) build(ctx context.Context, slots []AssetSpend) (*models.SpendBundle, error) {
	spends := make([]models.CoinSpend, 0, len(slots))
	for _, slot := range slots {
		reveal, solution, err := p.builder.BuildSpend(ctx, slot)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.KindInvariantViolation, "planner.build", "build puzzle reveal/solution", err)
		}
		spends = append(spends, models.CoinSpend{Coin: slot.Coin, PuzzleReveal: reveal, Solution: solution})
	}
	return &models.SpendBundle{Spends: spends}, nil
}

// RoyaltyPayments computes the royalty CreateCoin for each trade amount
// on the maker side of an NFT offer settlement:
// royalty = amount * royaltyBasisPoints / 10_000, one coin per nonce.
func RoyaltyPayments(tradeAmounts []uint64, royaltyPuzzleHash models.Hash, royaltyBasisPoints uint16) []Condition {
	var out []Condition
	for _, amount := range tradeAmounts {
		royalty := amount * uint64(royaltyBasisPoints) / 10_000
		if royalty == 0 {
			continue
		}
		out = append(out, CreateCoin{PuzzleHash: royaltyPuzzleHash, Amount: royalty})
	}
	return out
}

