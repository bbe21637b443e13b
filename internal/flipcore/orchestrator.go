package flipcore

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Metrics is the counter surface the orchestrator feeds. Implemented by
// internal/metrics; a nil value disables instrumentation.
type Metrics interface {
	BetPlaced()
	BetResolved(won bool)
	ApprovalSubmitted(token string)
	StepFailed(stage string)
}

// OutcomeRecorder receives authoritative outcomes, e.g. to update the
// player stats journal. Failures are the recorder's problem: recording
// never blocks or fails a resolution.
type OutcomeRecorder interface {
	Record(ctx context.Context, player common.Address, bet SubmittedBet, out Outcome)
}

// Orchestrator sequences the approve → approve → place transaction flow
// and the resolve flow, keeping the local snapshot reconciled with
// on-chain truth. It is the single owner of Session, snapshot and step
// state; the presentation layer sees them read-only.
type Orchestrator struct {
	cfg      Config
	log      *zap.Logger
	sessions *SessionManager
	fetcher  *Fetcher
	metrics  Metrics
	recorder OutcomeRecorder

	inFlight atomic.Bool

	mu      sync.Mutex
	step    Step
	lastErr string
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

func WithMetrics(m Metrics) Option          { return func(o *Orchestrator) { o.metrics = m } }
func WithRecorder(r OutcomeRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func NewOrchestrator(cfg Config, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PricePrecision == nil {
		cfg.PricePrecision = big.NewInt(100_000_000)
	}
	o := &Orchestrator{
		cfg:      cfg,
		log:      log,
		sessions: NewSessionManager(cfg, log),
		fetcher:  NewFetcher(cfg, log),
		step:     StepIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sessions exposes the session manager (connect state, wallet name).
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// Connect authorizes a wallet and performs the initial balance fetch.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if _, err := o.sessions.Connect(ctx); err != nil {
		return err
	}
	if _, warnings, err := o.Refresh(ctx); err != nil {
		o.log.Warn("initial balance fetch failed", zap.Error(err))
	} else if len(warnings) > 0 {
		o.log.Warn("initial balance fetch degraded", zap.Strings("warnings", warnings))
	}
	return nil
}

// Disconnect tears everything down and drops cached balances.
func (o *Orchestrator) Disconnect() {
	o.sessions.Disconnect()
	o.fetcher.Forget()
	o.setStep(StepIdle, "")
}

// Account returns the connected account, if any.
func (o *Orchestrator) Account() (common.Address, bool) {
	sess, err := o.sessions.Session()
	if err != nil {
		return common.Address{}, false
	}
	return sess.Account, true
}

// Step reports where the orchestrator currently is in a bet flow.
func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// ErrorMessage returns the last sanitized failure message, if any.
func (o *Orchestrator) ErrorMessage() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Snapshot returns the cached balance/limit view.
func (o *Orchestrator) Snapshot() (Snapshot, bool) { return o.fetcher.Last() }

// Refresh re-reads balances and limits for the connected account.
func (o *Orchestrator) Refresh(ctx context.Context) (Snapshot, []string, error) {
	sess, err := o.sessions.Session()
	if err != nil {
		return Snapshot{}, nil, err
	}
	handles, err := o.sessions.CurrentHandles()
	if err != nil {
		return Snapshot{}, nil, err
	}
	be, err := o.sessions.Backend()
	if err != nil {
		return Snapshot{}, nil, err
	}
	return o.fetcher.Refresh(ctx, sess, handles, be)
}

func (o *Orchestrator) setStep(s Step, errMsg string) {
	o.mu.Lock()
	o.step = s
	o.lastErr = errMsg
	o.mu.Unlock()
}

// refreshAsync re-syncs balances without blocking the caller. Used after
// success and after partial failure, so a mined approval followed by a
// failed placement never leaves the cached allowance/balance view stale.
func (o *Orchestrator) refreshAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, _, err := o.Refresh(ctx); err != nil {
			o.log.Debug("post-bet refresh failed", zap.Error(err))
		}
	}()
}

// fail classifies err, records it as the current error state, triggers a
// reconciliation refresh and reports the failed stage.
func (o *Orchestrator) fail(stage string, err error) *ClassifiedError {
	ce := Classify(o.log.With(zap.String("stage", stage)), err)
	o.setStep(StepError, ce.Message)
	if o.metrics != nil {
		o.metrics.StepFailed(stage)
	}
	o.refreshAsync()
	return ce
}

func (o *Orchestrator) validateDraft(draft DraftBet) error {
	if draft.Amount == nil || draft.Amount.Sign() <= 0 {
		return fmt.Errorf("bet amount must be positive")
	}
	if draft.Direction != DirectionUp && draft.Direction != DirectionDown {
		return fmt.Errorf("bad direction %q", draft.Direction)
	}
	if draft.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1")
	}
	if o.cfg.MaxLeverage > 0 && draft.Leverage > o.cfg.MaxLeverage {
		return fmt.Errorf("leverage %d exceeds maximum %d", draft.Leverage, o.cfg.MaxLeverage)
	}
	if draft.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if draft.EntryPrice == nil || draft.EntryPrice.Sign() <= 0 {
		return fmt.Errorf("entry price is required")
	}
	return nil
}

// PlaceBet runs the full placement sequence for one draft:
// local validation, collateral check, wager approval, collateral approval,
// placement, and receipt reconciliation. Only one placement may be in
// flight per orchestrator; the approve-then-spend sequence is not atomic
// and two interleaved flows could double-spend an approval.
func (o *Orchestrator) PlaceBet(ctx context.Context, draft DraftBet) (*SubmittedBet, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, Classify(o.log, ErrBetInFlight)
	}
	defer o.inFlight.Store(false)

	log := o.log.With(zap.String("client_id", draft.ClientID.String()))

	sess, err := o.sessions.Session()
	if err != nil {
		return nil, o.fail("precondition", err)
	}
	if err := o.validateDraft(draft); err != nil {
		return nil, o.fail("validate", err)
	}

	collateral := RequiredCollateral(draft.Amount, draft.Leverage)
	if draft.Leverage > 1 && !o.cfg.HasCollateralToken() {
		// Submitting would be a guaranteed on-chain failure.
		return nil, o.fail("validate", ErrMisconfiguredCollateral)
	}

	handles, err := o.sessions.CurrentHandles()
	if err != nil {
		return nil, o.fail("precondition", err)
	}

	if draft.Leverage > 1 {
		bal, err := handles.Collateral.CallUint(ctx, "balanceOf", sess.Account)
		if err != nil {
			return nil, o.fail("collateral_check", err)
		}
		if bal.Cmp(collateral) < 0 {
			return nil, o.fail("collateral_check", ErrInsufficientCollateral)
		}
	}

	// Advisory only: the cached limit may be stale, the contract enforces
	// the real one at call time.
	if snap, ok := o.fetcher.Last(); ok && snap.Limit.Remaining().Cmp(draft.Amount) < 0 {
		log.Warn("draft exceeds cached daily limit, contract may revert",
			zap.String("remaining", snap.Limit.Remaining().String()))
	}

	if err := o.ensureAllowance(ctx, handles.Wager, sess.Account, draft.Amount, StepApprovingWager, "wager"); err != nil {
		return nil, o.fail(string(StepApprovingWager), err)
	}
	if draft.Leverage > 1 {
		if err := o.ensureAllowance(ctx, handles.Collateral, sess.Account, collateral, StepApprovingCollateral, "collateral"); err != nil {
			return nil, o.fail(string(StepApprovingCollateral), err)
		}
	}

	o.setStep(StepPlacingBet, "")
	log.Info("placing bet",
		zap.String("direction", string(draft.Direction)),
		zap.String("amount", draft.Amount.String()),
		zap.Uint64("leverage", draft.Leverage),
		zap.Duration("duration", draft.Duration))
	rcpt, err := handles.Bet.Transact(ctx, "placeBet",
		draft.Amount,
		new(big.Int).SetUint64(draft.Leverage),
		draft.Direction == DirectionUp,
		big.NewInt(int64(draft.Duration/time.Second)),
		draft.EntryPrice,
	)
	if err != nil {
		return nil, o.fail(string(StepPlacingBet), err)
	}

	placed, err := decodeBetPlaced(handles.Bet.Address(), rcpt.Logs)
	if err != nil {
		// The transaction succeeded; funds moved but we cannot learn the
		// assigned id. Surfaced distinctly from a revert.
		return nil, o.fail("reconcile", err)
	}

	o.setStep(StepSuccess, "")
	if o.metrics != nil {
		o.metrics.BetPlaced()
	}
	o.refreshAsync()

	log.Info("bet placed",
		zap.String("bet_id", placed.BetID.String()),
		zap.String("tx", rcpt.TxHash.Hex()))
	return &SubmittedBet{DraftBet: draft, BetID: placed.BetID, TxHash: rcpt.TxHash}, nil
}

// ensureAllowance approves the bet contract for amount when the current
// allowance falls short. With a sufficient allowance no transaction is
// issued at all, not even a zero-amount approve.
func (o *Orchestrator) ensureAllowance(ctx context.Context, token *ContractHandle, owner common.Address, amount *big.Int, step Step, label string) error {
	spender := o.cfg.BetContract
	allowance, err := token.CallUint(ctx, "allowance", owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	o.setStep(step, "")
	if o.metrics != nil {
		o.metrics.ApprovalSubmitted(label)
	}
	o.log.Info("approving spend",
		zap.String("token", label),
		zap.String("amount", amount.String()))
	_, err = token.Transact(ctx, "approve", spender, amount)
	return err
}

// ResolveBet submits the resolution for a placed bet and returns the
// authoritative outcome from the BetResolved event. finalPrice must be
// scaled by PricePrecision, like the entry price.
func (o *Orchestrator) ResolveBet(ctx context.Context, bet *SubmittedBet, finalPrice *big.Int) (*Outcome, error) {
	if bet == nil || bet.BetID == nil {
		// Pure validation failure: no transaction was attempted, so no
		// refresh is needed.
		ce := Classify(o.log, ErrMissingBetID)
		o.setStep(StepError, ce.Message)
		return nil, ce
	}
	if finalPrice == nil || finalPrice.Sign() <= 0 {
		return nil, o.fail("validate", fmt.Errorf("final price is required"))
	}
	sess, err := o.sessions.Session()
	if err != nil {
		return nil, o.fail("precondition", err)
	}
	handles, err := o.sessions.CurrentHandles()
	if err != nil {
		return nil, o.fail("precondition", err)
	}

	rcpt, err := handles.Bet.Transact(ctx, "resolveBet", bet.BetID, finalPrice)
	if err != nil {
		return nil, o.fail("resolving", err)
	}
	resolved, err := decodeBetResolved(handles.Bet.Address(), bet.BetID, rcpt.Logs)
	if err != nil {
		return nil, o.fail("reconcile", err)
	}

	out := &Outcome{Won: resolved.Won, Payout: resolved.Payout, FinalPrice: finalPrice}
	o.setStep(StepSuccess, "")
	if o.metrics != nil {
		o.metrics.BetResolved(out.Won)
	}
	if o.recorder != nil {
		o.recorder.Record(ctx, sess.Account, *bet, *out)
	}
	o.refreshAsync()

	o.log.Info("bet resolved",
		zap.String("bet_id", bet.BetID.String()),
		zap.Bool("won", out.Won),
		zap.String("payout", out.Payout.String()))
	return out, nil
}

// EstimatePayout computes the pre-confirmation payout estimate for a
// winning bet. Advisory only; the BetResolved event is the authority.
func (o *Orchestrator) EstimatePayout(amount *big.Int, leverage uint64) ProvisionalPayout {
	if amount == nil {
		return ProvisionalPayout{Payout: big.NewInt(0)}
	}
	edge := big.NewInt(500) // 5% default house edge
	if snap, ok := o.fetcher.Last(); ok && snap.HouseEdgeBps != nil {
		edge = snap.HouseEdgeBps
	}
	winnings := new(big.Int).Mul(amount, new(big.Int).SetUint64(leverage))
	winnings.Mul(winnings, new(big.Int).Sub(big.NewInt(10_000), edge))
	winnings.Div(winnings, big.NewInt(10_000))
	return ProvisionalPayout{Payout: winnings.Add(winnings, amount)}
}

// WatchResolutions starts a BetResolved watcher bound to the current
// session. The caller owns Stop; the watcher also exits by itself when the
// session is invalidated.
func (o *Orchestrator) WatchResolutions(ctx context.Context) (*ResolutionWatcher, error) {
	sess, err := o.sessions.Session()
	if err != nil {
		return nil, err
	}
	be, err := o.sessions.Backend()
	if err != nil {
		return nil, err
	}
	w := NewResolutionWatcher(o.log, be, sess, o.cfg.BetContract)
	w.Start(ctx)
	return w, nil
}
