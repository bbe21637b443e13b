package stats

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chadflip/chadflip/internal/flipcore"
)

// Recorder folds resolved bets into the persistent journal. It implements
// flipcore.OutcomeRecorder; persistence failures are logged and swallowed
// so a flaky store never fails a resolution.
type Recorder struct {
	store Store
	log   *zap.Logger
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Record(ctx context.Context, player common.Address, bet flipcore.SubmittedBet, out flipcore.Outcome) {
	s, err := r.store.Load(ctx, player)
	if err != nil {
		r.log.Warn("stats load failed, outcome not recorded", zap.Error(err))
		return
	}
	s.applyOutcome(bet.Amount, bet.Leverage, out.Won, out.Payout)
	if err := r.store.Save(ctx, player, s); err != nil {
		r.log.Warn("stats save failed", zap.Error(err))
		return
	}
	r.log.Debug("stats updated",
		zap.String("player", player.Hex()),
		zap.Uint64("wins", s.TotalWins),
		zap.Uint64("losses", s.TotalLosses),
		zap.Uint64("streak", s.WinStreak))
}
