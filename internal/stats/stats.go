package stats

import (
	"math/big"
	"time"
)

// PlayerStats is the per-player betting journal. All token amounts are in
// the wager token's base units. NetPnL may be negative.
type PlayerStats struct {
	TotalWins          uint64    `json:"totalWins"`
	TotalLosses        uint64    `json:"totalLosses"`
	WinStreak          uint64    `json:"winStreak"`
	BestStreak         uint64    `json:"bestStreak"`
	TotalVolume        *big.Int  `json:"totalVolume"`
	NetPnL             *big.Int  `json:"netPnL"`
	HighestLeverageWin uint64    `json:"highestLeverageWin"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func newPlayerStats() PlayerStats {
	return PlayerStats{TotalVolume: big.NewInt(0), NetPnL: big.NewInt(0)}
}

func (s *PlayerStats) normalize() {
	if s.TotalVolume == nil {
		s.TotalVolume = big.NewInt(0)
	}
	if s.NetPnL == nil {
		s.NetPnL = big.NewInt(0)
	}
}

// applyOutcome folds one resolved bet into the journal. A win adds the
// profit (payout minus stake) to NetPnL; a loss subtracts the stake. The
// stake counts toward volume either way.
func (s *PlayerStats) applyOutcome(amount *big.Int, leverage uint64, won bool, payout *big.Int) {
	s.normalize()
	if amount == nil {
		amount = big.NewInt(0)
	}
	s.TotalVolume = new(big.Int).Add(s.TotalVolume, amount)
	if won {
		s.TotalWins++
		s.WinStreak++
		if s.WinStreak > s.BestStreak {
			s.BestStreak = s.WinStreak
		}
		if leverage > s.HighestLeverageWin {
			s.HighestLeverageWin = leverage
		}
		profit := big.NewInt(0)
		if payout != nil {
			profit = new(big.Int).Sub(payout, amount)
		}
		s.NetPnL = new(big.Int).Add(s.NetPnL, profit)
	} else {
		s.TotalLosses++
		s.WinStreak = 0
		s.NetPnL = new(big.Int).Sub(s.NetPnL, amount)
	}
	s.UpdatedAt = time.Now()
}

// Achievement is an unlockable badge derived from the journal.
type Achievement struct {
	ID    string
	Title string
}

var achievementTable = []struct {
	id, title string
	unlocked  func(s PlayerStats) bool
}{
	{"first_blood", "First Blood", func(s PlayerStats) bool { return s.TotalWins >= 1 }},
	{"hot_streak", "Hot Streak", func(s PlayerStats) bool { return s.BestStreak >= 3 }},
	{"unstoppable", "Unstoppable", func(s PlayerStats) bool { return s.BestStreak >= 7 }},
	{"degen", "Certified Degen", func(s PlayerStats) bool { return s.HighestLeverageWin >= 5 }},
	{"max_degen", "Maximum Overdrive", func(s PlayerStats) bool { return s.HighestLeverageWin >= 10 }},
	{"veteran", "Veteran", func(s PlayerStats) bool { return s.TotalWins+s.TotalLosses >= 50 }},
}

// Achievements returns the badges unlocked by the current journal state.
func Achievements(s PlayerStats) []Achievement {
	var out []Achievement
	for _, a := range achievementTable {
		if a.unlocked(s) {
			out = append(out, Achievement{ID: a.id, Title: a.title})
		}
	}
	return out
}
