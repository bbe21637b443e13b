package flipcore

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher reads balances, decimals and daily-limit counters for the
// connected account. Reads fan out independently and tolerate partial
// failure: a failed read falls back to its last-known value (or a default)
// and records a warning. Only a failed mandatory read — the wager balance —
// surfaces as a blocking error.
type Fetcher struct {
	cfg Config
	log *zap.Logger

	mu   sync.Mutex
	last *Snapshot
}

func NewFetcher(cfg Config, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, log: log}
}

// Last returns the cached snapshot, if any refresh has succeeded before.
func (f *Fetcher) Last() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Snapshot{}, false
	}
	return *f.last, true
}

// Forget drops the cached snapshot. Called on disconnect so balances are
// never carried across sessions.
func (f *Fetcher) Forget() {
	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()
}

// Refresh re-reads all on-chain values for the session's account. The
// returned warnings list the reads that fell back; err is non-nil only for
// an invalid session, missing contracts, or a failed mandatory read.
func (f *Fetcher) Refresh(ctx context.Context, sess *Session, h *Handles, be Backend) (Snapshot, []string, error) {
	if !sess.Valid() {
		return Snapshot{}, nil, ErrStaleSession
	}

	// Contracts must actually exist on this network before anything else;
	// an empty-code address would make every read silently return zeros.
	if code, err := be.CodeAt(ctx, f.cfg.WagerToken, nil); err == nil && len(code) == 0 {
		return Snapshot{}, nil, fmt.Errorf("%s token contract not found on this network", f.cfg.WagerSymbol)
	}
	if code, err := be.CodeAt(ctx, f.cfg.BetContract, nil); err == nil && len(code) == 0 {
		return Snapshot{}, nil, fmt.Errorf("game contract not found on this network")
	}

	account := sess.Account
	hasColl := f.cfg.HasCollateralToken()

	var (
		wg sync.WaitGroup

		wagerDec     uint8
		wagerDecErr  error
		wagerBal     *big.Int
		wagerBalErr  error
		collDec      uint8
		collDecErr   error
		collBal      *big.Int
		collBalErr   error
		limit        *big.Int
		limitErr     error
		used         *big.Int
		usedErr      error
		houseEdge    *big.Int
		houseEdgeErr error
	)

	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { wagerDec, wagerDecErr = h.Wager.CallUint8(ctx, "decimals") })
	run(func() { wagerBal, wagerBalErr = h.Wager.CallUint(ctx, "balanceOf", account) })
	if hasColl {
		run(func() { collDec, collDecErr = h.Collateral.CallUint8(ctx, "decimals") })
		run(func() { collBal, collBalErr = h.Collateral.CallUint(ctx, "balanceOf", account) })
	} else {
		// No collateral token configured: fall back to the native balance.
		collDec = f.cfg.Chain.NativeCurrency.Decimals
		run(func() { collBal, collBalErr = be.BalanceAt(ctx, account, nil) })
	}
	run(func() { limit, limitErr = h.Bet.CallUint(ctx, "dailyBetLimit") })
	run(func() { used, usedErr = h.Bet.CallUint(ctx, "getPlayerDailyUsed", account) })
	run(func() { houseEdge, houseEdgeErr = h.Bet.CallUint(ctx, "houseEdgeBps") })
	wg.Wait()

	prev, hadPrev := f.Last()
	var warnings []string
	warn := func(read string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", read, err))
		f.log.Warn("balance read failed, using fallback", zap.String("read", read), zap.Error(err))
	}

	snap := Snapshot{FetchedAt: time.Now()}

	snap.Wager.Symbol = f.cfg.WagerSymbol
	snap.Wager.Decimals = 18
	if wagerDecErr == nil {
		snap.Wager.Decimals = wagerDec
	} else if hadPrev {
		snap.Wager.Decimals = prev.Wager.Decimals
		warn("wager decimals", wagerDecErr)
	} else {
		warn("wager decimals", wagerDecErr)
	}

	snap.Collateral.Symbol = f.cfg.CollateralSymbol
	snap.Collateral.Decimals = 18
	if collDecErr == nil {
		snap.Collateral.Decimals = collDec
	} else if hadPrev {
		snap.Collateral.Decimals = prev.Collateral.Decimals
		warn("collateral decimals", collDecErr)
	} else {
		warn("collateral decimals", collDecErr)
	}

	snap.Wager.Raw = big.NewInt(0)
	if wagerBalErr == nil {
		snap.Wager.Raw = wagerBal
	} else if hadPrev {
		snap.Wager.Raw = prev.Wager.Raw
	}

	snap.Collateral.Raw = big.NewInt(0)
	if collBalErr == nil {
		snap.Collateral.Raw = collBal
	} else if hadPrev {
		snap.Collateral.Raw = prev.Collateral.Raw
		warn("collateral balance", collBalErr)
	} else {
		warn("collateral balance", collBalErr)
	}

	snap.Limit.Limit = f.defaultLimit(snap.Wager.Decimals)
	if limitErr == nil {
		snap.Limit.Limit = limit
	} else if hadPrev && prev.Limit.Limit != nil {
		snap.Limit.Limit = prev.Limit.Limit
		warn("daily limit", limitErr)
	} else {
		warn("daily limit", limitErr)
	}

	snap.Limit.Used = big.NewInt(0)
	if usedErr == nil {
		snap.Limit.Used = used
	} else if hadPrev && prev.Limit.Used != nil {
		snap.Limit.Used = prev.Limit.Used
		warn("daily used", usedErr)
	} else {
		warn("daily used", usedErr)
	}

	if houseEdgeErr == nil {
		snap.HouseEdgeBps = houseEdge
	} else if hadPrev {
		snap.HouseEdgeBps = prev.HouseEdgeBps
	}

	// The wager balance is the one read the caller cannot act without.
	if wagerBalErr != nil {
		return snap, warnings, fmt.Errorf("fetch %s balance: %w", f.cfg.WagerSymbol, wagerBalErr)
	}

	f.mu.Lock()
	f.last = &snap
	f.mu.Unlock()
	return snap, warnings, nil
}

// defaultLimit mirrors the product default shown before the first
// successful limit read.
func (f *Fetcher) defaultLimit(decimals uint8) *big.Int {
	if f.cfg.DefaultDailyLimit != nil {
		return f.cfg.DefaultDailyLimit
	}
	// 5000 wager tokens in base units.
	limit := big.NewInt(5000)
	return limit.Mul(limit, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
