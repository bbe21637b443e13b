package flipcore

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Direction of a price prediction.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Step labels the orchestrator's current position in the multi-transaction
// bet flow. Exposed read-only so a caller can drive a progress indicator.
type Step string

const (
	StepIdle                Step = "idle"
	StepApprovingWager      Step = "approving_wager"
	StepApprovingCollateral Step = "approving_collateral"
	StepPlacingBet          Step = "placing_bet"
	StepSuccess             Step = "success"
	StepError               Step = "error"
)

// DraftBet is a purely local bet intent: nothing has been submitted yet.
// ClientID correlates log lines and journal entries across the flow; it is
// NOT the contract-assigned bet id.
type DraftBet struct {
	ClientID   uuid.UUID
	Direction  Direction
	Amount     *big.Int // wager token base units
	Leverage   uint64
	Duration   time.Duration
	EntryPrice *big.Int // client-observed price, scaled by PricePrecision
	CreatedAt  time.Time
}

// NewDraftBet stamps a fresh correlation id and creation time.
func NewDraftBet(dir Direction, amount *big.Int, leverage uint64, duration time.Duration, entryPrice *big.Int) DraftBet {
	return DraftBet{
		ClientID:   uuid.New(),
		Direction:  dir,
		Amount:     amount,
		Leverage:   leverage,
		Duration:   duration,
		EntryPrice: entryPrice,
		CreatedAt:  time.Now(),
	}
}

// SubmittedBet is a draft that was accepted on-chain. BetID is the
// contract-assigned identifier extracted from the BetPlaced event; it is
// nil only for bets whose placement receipt could not be reconciled.
type SubmittedBet struct {
	DraftBet
	BetID  *big.Int
	TxHash common.Hash
}

// Outcome is the authoritative result of a resolved bet, taken from the
// BetResolved event. Any locally computed payout is advisory only (see
// ProvisionalPayout) and must never be shown as the final result.
type Outcome struct {
	Won        bool
	Payout     *big.Int
	FinalPrice *big.Int
}

// ProvisionalPayout is a pre-confirmation estimate. The distinct type keeps
// advisory numbers from being confused with an Outcome.
type ProvisionalPayout struct {
	Payout *big.Int
}

// TokenBalance is one token's last fetched balance.
type TokenBalance struct {
	Symbol   string
	Raw      *big.Int
	Decimals uint8
}

// Display renders the balance in human units.
func (b TokenBalance) Display() string {
	return FormatUnits(b.Raw, int(b.Decimals))
}

// DailyLimit mirrors the contract's per-account daily wager accounting,
// denominated in the wager token. Values may be stale until refreshed.
type DailyLimit struct {
	Used  *big.Int
	Limit *big.Int
}

// Remaining is the amount still wagerable today, floored at zero.
func (d DailyLimit) Remaining() *big.Int {
	if d.Limit == nil || d.Used == nil {
		return big.NewInt(0)
	}
	r := new(big.Int).Sub(d.Limit, d.Used)
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return r
}

// Snapshot is the locally cached view of on-chain balances and limits.
type Snapshot struct {
	Wager        TokenBalance
	Collateral   TokenBalance
	Limit        DailyLimit
	HouseEdgeBps *big.Int
	FetchedAt    time.Time
}

// RequiredCollateral returns the collateral owed for a wager at the given
// leverage: amount * (leverage - 1) for leverage above 1x, zero otherwise.
func RequiredCollateral(amount *big.Int, leverage uint64) *big.Int {
	if amount == nil || leverage <= 1 {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(amount, new(big.Int).SetUint64(leverage-1))
}
