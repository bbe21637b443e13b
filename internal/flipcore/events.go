package flipcore

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// PlacedEvent is a decoded BetPlaced log. The contract-assigned BetID only
// exists here: a receipt alone cannot tell the client which id it got.
type PlacedEvent struct {
	BetID        *big.Int
	Player       common.Address
	Amount       *big.Int
	Leverage     *big.Int
	PredictionUp bool
	EntryPrice   *big.Int
}

// ResolvedEvent is a decoded BetResolved log.
type ResolvedEvent struct {
	BetID  *big.Int
	Player common.Address
	Won    bool
	Payout *big.Int
}

// decodeBetPlaced scans receipt logs for the contract's BetPlaced event.
// A receipt also carries the token Transfer/Approval logs of the same
// transaction, so decoding is tolerant: logs from other addresses, with
// other topics, or that fail to unpack are skipped silently. Ordering
// within the log list is not assumed.
func decodeBetPlaced(contract common.Address, logs []*types.Log) (*PlacedEvent, error) {
	for _, lg := range logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != betPlacedTopic {
			continue
		}
		vals := map[string]any{}
		if err := chadFlipABI.UnpackIntoMap(vals, "BetPlaced", lg.Data); err != nil {
			continue
		}
		amount, ok1 := vals["amount"].(*big.Int)
		leverage, ok2 := vals["leverage"].(*big.Int)
		up, ok3 := vals["predictionUp"].(bool)
		entry, ok4 := vals["entryPrice"].(*big.Int)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		return &PlacedEvent{
			BetID:        new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			Player:       common.BytesToAddress(lg.Topics[2].Bytes()),
			Amount:       amount,
			Leverage:     leverage,
			PredictionUp: up,
			EntryPrice:   entry,
		}, nil
	}
	return nil, ErrEventNotFound
}

// decodeBetResolved scans receipt logs for BetResolved matching wantBetID.
// Matching on the id guards against picking up a concurrent unrelated
// resolution landing in the same block.
func decodeBetResolved(contract common.Address, wantBetID *big.Int, logs []*types.Log) (*ResolvedEvent, error) {
	for _, lg := range logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != betResolvedTopic {
			continue
		}
		betID := new(big.Int).SetBytes(lg.Topics[1].Bytes())
		if wantBetID != nil && betID.Cmp(wantBetID) != 0 {
			continue
		}
		vals := map[string]any{}
		if err := chadFlipABI.UnpackIntoMap(vals, "BetResolved", lg.Data); err != nil {
			continue
		}
		won, ok1 := vals["won"].(bool)
		payout, ok2 := vals["payoutAmount"].(*big.Int)
		if !ok1 || !ok2 {
			continue
		}
		return &ResolvedEvent{
			BetID:  betID,
			Player: common.BytesToAddress(lg.Topics[2].Bytes()),
			Won:    won,
			Payout: payout,
		}, nil
	}
	return nil, ErrEventNotFound
}

// ResolutionWatcher polls the chain for BetResolved events of the bet
// contract and pushes them to a channel. It is bound to one session: a
// session rebuild must create a new watcher, and Stop unsubscribes the old
// one so rebuilt handles never double-handle the same event.
type ResolutionWatcher struct {
	log      *zap.Logger
	be       Backend
	sess     *Session
	contract common.Address
	interval time.Duration

	out    chan ResolvedEvent
	cancel context.CancelFunc
}

func NewResolutionWatcher(log *zap.Logger, be Backend, sess *Session, contract common.Address) *ResolutionWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResolutionWatcher{
		log:      log,
		be:       be,
		sess:     sess,
		contract: contract,
		interval: 2 * time.Second,
		out:      make(chan ResolvedEvent, 16),
	}
}

// Events delivers decoded resolutions. Closed when the watcher stops.
func (w *ResolutionWatcher) Events() <-chan ResolvedEvent { return w.out }

// Start begins polling from the current head. The loop exits when the
// context is cancelled, Stop is called, or the session is invalidated.
func (w *ResolutionWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
}

func (w *ResolutionWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *ResolutionWatcher) loop(ctx context.Context) {
	defer close(w.out)

	var from *big.Int
	if head, err := w.be.HeaderByNumber(ctx, nil); err == nil && head != nil {
		from = new(big.Int).Set(head.Number)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !w.sess.Valid() {
			w.log.Debug("resolution watcher stopping: session invalidated")
			return
		}
		head, err := w.be.HeaderByNumber(ctx, nil)
		if err != nil || head == nil {
			continue
		}
		if from == nil {
			from = new(big.Int).Set(head.Number)
			continue
		}
		if head.Number.Cmp(from) < 0 {
			continue
		}
		q := ethereum.FilterQuery{
			FromBlock: from,
			ToBlock:   head.Number,
			Addresses: []common.Address{w.contract},
			Topics:    [][]common.Hash{{betResolvedTopic}},
		}
		logs, err := w.be.FilterLogs(ctx, q)
		if err != nil {
			w.log.Debug("filter logs failed", zap.Error(err))
			continue
		}
		for i := range logs {
			ev, err := decodeBetResolved(w.contract, nil, []*types.Log{&logs[i]})
			if err != nil {
				continue
			}
			select {
			case w.out <- *ev:
			default: // slow consumer; drop instead of stalling the poll loop
			}
		}
		from = new(big.Int).Add(head.Number, big.NewInt(1))
	}
}
