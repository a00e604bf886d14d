package planner

import (
	"context"

	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// singletonMutations handles the action kinds that spend or create a
// singleton coin directly, rather than flowing through an asset group's
// fungible coin selection. New launches append their launcher coin
// directly to the bundle's first slot, without going through addPayment;
// existing singletons are re-spent at their own current coin.
func (p *Planner) singletonMutations(ctx context.Context, actions []Action, slots *[]AssetSpend) error {
	for _, a := range actions {
		switch act := a.(type) {
		case MintNft:
			if err := p.launch(ctx, slots, act); err != nil {
				return err
			}
		case CreateDid:
			if err := p.launch(ctx, slots, act); err != nil {
				return err
			}
		case MintOption:
			if err := p.launch(ctx, slots, act); err != nil {
				return err
			}
		case TransferNft:
			if err := p.mutate(ctx, slots, act.NftID, act); err != nil {
				return err
			}
		case AssignNft:
			if err := p.mutate(ctx, slots, act.NftID, act); err != nil {
				return err
			}
		case UpdateNftMetadata:
			if err := p.mutate(ctx, slots, act.NftID, act); err != nil {
				return err
			}
		case TransferDid:
			if err := p.mutate(ctx, slots, act.DidID, act); err != nil {
				return err
			}
		case ExerciseOption:
			if err := p.mutate(ctx, slots, act.OptionID, act); err != nil {
				return err
			}
		case MeltSingleton:
			if err := p.mutate(ctx, slots, act.SingletonID, act); err != nil {
				return err
			}
		}
	}
	return nil
}

// launch allocates a fresh launcher coin off the first slot (the
// fee-reserving slot when a fee is set) and attaches a LaunchSingleton
// condition naming the mint action, so the PuzzleBuilder can curry the
// eve puzzle from its parameters. The launcher itself always creates
// exactly one coin of amount 1, the coin-set model's odd-amount
// singleton rule.
func (p *Planner) launch(ctx context.Context, slots *[]AssetSpend, action Action) error {
	if len(*slots) == 0 {
		return walleterr.New(walleterr.KindInvariantViolation, "planner.launch", "no native coin selected to fund a launcher")
	}
	parent := &(*slots)[0]
	parent.Conditions = append(parent.Conditions, CreateCoin{
		PuzzleHash: puzzle.SingletonLauncherModHash,
		Amount:     1,
	})

	launcherCoin := parent.Coin.Child(puzzle.SingletonLauncherModHash, 1)
	*slots = append(*slots, AssetSpend{
		Coin:         launcherCoin,
		P2PuzzleHash: puzzle.SingletonLauncherModHash,
		Conditions:   []Condition{LaunchSingleton{Action: action}},
	})
	return nil
}

// mutate fetches the singleton's current unspent coin and attaches a
// MutateSingleton condition naming action, so the PuzzleBuilder can
// derive the recreated puzzle and solution.
func (p *Planner) mutate(ctx context.Context, slots *[]AssetSpend, singletonID models.Hash, action Action) error {
	coins, err := p.store.SelectableCoins(ctx, singletonID)
	if err != nil {
		return err
	}
	if len(coins) == 0 {
		return walleterr.New(walleterr.KindNotFound, "planner.mutate", "no spendable coin for singleton "+singletonID.String())
	}
	rec := coins[0]
	p2Hash := rec.PuzzleHash
	if rec.P2PuzzleHash != nil {
		p2Hash = *rec.P2PuzzleHash
	}
	*slots = append(*slots, AssetSpend{
		Coin:         rec.Coin(),
		P2PuzzleHash: p2Hash,
		Conditions:   []Condition{MutateSingleton{Action: action}},
	})
	return nil
}
