package flipcore

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI fragments for the ChadFlip game contract and the standard fungible
// token surface. This is the "robust" ChadFlip interface: the client
// supplies the entry price on placement and a raw scaled price on
// resolution; the contract computes the outcome.
const chadFlipABIJSON = `[
  {"type":"function","name":"placeBet","stateMutability":"nonpayable",
   "inputs":[{"name":"_amount","type":"uint256"},{"name":"_leverage","type":"uint256"},{"name":"_predictionUp","type":"bool"},{"name":"_duration","type":"uint256"},{"name":"_entryPrice","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"resolveBet","stateMutability":"nonpayable",
   "inputs":[{"name":"_betId","type":"uint256"},{"name":"_finalPrice","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"dailyBetLimit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPlayerDailyUsed","stateMutability":"view","inputs":[{"name":"_player","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"houseEdgeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"MAX_LEVERAGE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"PRICE_PRECISION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"BetPlaced","anonymous":false,
   "inputs":[{"name":"betId","type":"uint256","indexed":true},{"name":"player","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"leverage","type":"uint256","indexed":false},{"name":"predictionUp","type":"bool","indexed":false},{"name":"entryPrice","type":"uint256","indexed":false}]},
  {"type":"event","name":"BetResolved","anonymous":false,
   "inputs":[{"name":"betId","type":"uint256","indexed":true},{"name":"player","type":"address","indexed":true},{"name":"won","type":"bool","indexed":false},{"name":"payoutAmount","type":"uint256","indexed":false}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	chadFlipABI abi.ABI
	erc20ABI    abi.ABI

	betPlacedTopic   common.Hash
	betResolvedTopic common.Hash
)

func init() {
	ab, _ := abi.JSON(strings.NewReader(chadFlipABIJSON))
	chadFlipABI = ab
	tb, _ := abi.JSON(strings.NewReader(erc20ABIJSON))
	erc20ABI = tb
	betPlacedTopic = chadFlipABI.Events["BetPlaced"].ID
	betResolvedTopic = chadFlipABI.Events["BetResolved"].ID
}
