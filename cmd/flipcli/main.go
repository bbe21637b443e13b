package main

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chadflip/chadflip/internal/config"
	"github.com/chadflip/chadflip/internal/flipcore"
	"github.com/chadflip/chadflip/internal/logger"
	"github.com/chadflip/chadflip/internal/metrics"
	"github.com/chadflip/chadflip/internal/stats"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	st := config.Load()

	log, err := logger.New("flipcli", st.Env)
	if err != nil {
		die("build logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if st.PrivateKeyHex == "" && st.KeyFile == "" {
		st.PrivateKeyHex = readPassword("Enter wallet private key: ")
	}

	coreCfg, err := buildCoreConfig(st)
	if err != nil {
		die(err.Error())
	}

	store, healthFn := buildStatsStore(st)
	m := metrics.New(nil)
	metrics.StartMetricsServer(st.MetricsPort, healthFn)

	orch := flipcore.NewOrchestrator(coreCfg, log,
		flipcore.WithMetrics(m),
		flipcore.WithRecorder(stats.NewRecorder(store, log)),
	)

	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL          :", st.RPCURL)
	fmt.Println("CHAIN_ID         :", st.ChainID)
	fmt.Println("BET_CONTRACT     :", st.BetContract)
	fmt.Println("WAGER_TOKEN      :", st.WagerToken, "("+st.WagerSymbol+")")
	fmt.Println("COLLATERAL_TOKEN :", collateralDesc(st))
	fmt.Println("PRIVATE_KEY      :", maskHex(st.PrivateKeyHex))
	fmt.Println("MAX_LEVERAGE     :", st.MaxLeverage)
	fmt.Println("METRICS_PORT     :", st.MetricsPort)
	fmt.Println("=====================")

	ctx := context.Background()
	if err := orch.Connect(ctx); err != nil {
		die("connect wallet: " + err.Error())
	}
	account, _ := orch.Account()
	fmt.Println("\nConnected:", account.Hex(), "via", orch.Sessions().WalletName())
	printSnapshot(orch)

	go printResolutions(ctx, orch)

	reader := bufio.NewReader(os.Stdin)
	var lastBet *flipcore.SubmittedBet

	for {
		cmd := readLine(reader, "\nflip> ")
		switch strings.ToLower(cmd) {
		case "bet", "b":
			if bet := placeBet(ctx, reader, orch); bet != nil {
				lastBet = bet
			}
		case "resolve", "r":
			resolveBet(ctx, reader, orch, lastBet)
		case "balance", "bal":
			if _, warnings, err := orch.Refresh(ctx); err != nil {
				fmt.Println("  [!] refresh:", err)
				continue
			} else if len(warnings) > 0 {
				fmt.Println("  [!] degraded reads:", strings.Join(warnings, "; "))
			}
			printSnapshot(orch)
		case "stats":
			printStats(ctx, store, orch)
		case "help", "":
			fmt.Println("  bet | resolve | balance | stats | quit")
		case "quit", "q", "exit":
			orch.Disconnect()
			return
		default:
			fmt.Println("  unknown command, try: bet | resolve | balance | stats | quit")
		}
	}
}

func collateralDesc(st config.Settings) string {
	if st.CollateralToken == "" {
		return "(none, native " + st.CollateralSymbol + ")"
	}
	return st.CollateralToken + " (" + st.CollateralSymbol + ")"
}

func buildCoreConfig(st config.Settings) (flipcore.Config, error) {
	var cfg flipcore.Config
	if !common.IsHexAddress(st.BetContract) {
		return cfg, fmt.Errorf("BET_CONTRACT is missing or not a valid address")
	}
	if !common.IsHexAddress(st.WagerToken) {
		return cfg, fmt.Errorf("WAGER_TOKEN is missing or not a valid address")
	}
	if st.CollateralToken != "" && !common.IsHexAddress(st.CollateralToken) {
		return cfg, fmt.Errorf("COLLATERAL_TOKEN is not a valid address")
	}
	chainID, ok := new(big.Int).SetString(st.ChainID, 10)
	if !ok {
		return cfg, fmt.Errorf("CHAIN_ID %q is not a decimal number", st.ChainID)
	}

	chain := flipcore.MonadTestnet
	if chainID.Cmp(chain.ChainID) != 0 {
		chain = flipcore.ChainMetadata{
			ChainID: chainID,
			Name:    "chain " + st.ChainID,
			NativeCurrency: flipcore.NativeCurrency{
				Name:     st.CollateralSymbol,
				Symbol:   st.CollateralSymbol,
				Decimals: 18,
			},
			RPCURLs: []string{st.RPCURL},
		}
	} else if st.RPCURL != "" {
		chain.RPCURLs = []string{st.RPCURL}
	}

	cfg = flipcore.Config{
		Chain:            chain,
		BetContract:      common.HexToAddress(st.BetContract),
		WagerToken:       common.HexToAddress(st.WagerToken),
		WagerSymbol:      st.WagerSymbol,
		CollateralSymbol: st.CollateralSymbol,
		MaxLeverage:      uint64(st.MaxLeverage),
		Wallet: flipcore.WalletConfig{
			PrivateKeyHex: st.PrivateKeyHex,
			KeyFile:       st.KeyFile,
			Chains:        flipcore.NewChainRegistry(chain),
			DefaultChain:  chainID,
		},
	}
	if st.CollateralToken != "" {
		cfg.CollateralToken = common.HexToAddress(st.CollateralToken)
	}
	if st.DefaultDailyLimit > 0 {
		d := big.NewInt(st.DefaultDailyLimit)
		cfg.DefaultDailyLimit = d.Mul(d, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	}
	return cfg, nil
}

func buildStatsStore(st config.Settings) (stats.Store, metrics.HealthFunc) {
	if st.RedisAddr == "" {
		return stats.NewMemoryStore(), nil
	}
	rs := stats.NewRedisStore(st.RedisAddr, st.RedisPassword, st.RedisDB)
	return rs, rs.Ping
}

func printSnapshot(orch *flipcore.Orchestrator) {
	snap, ok := orch.Snapshot()
	if !ok {
		fmt.Println("  (no balances fetched yet)")
		return
	}
	fmt.Printf("  %s balance     : %s\n", snap.Wager.Symbol, snap.Wager.Display())
	fmt.Printf("  %s balance      : %s\n", snap.Collateral.Symbol, snap.Collateral.Display())
	fmt.Printf("  Daily limit used : %s / %s %s\n",
		flipcore.FormatUnits(snap.Limit.Used, int(snap.Wager.Decimals)),
		flipcore.FormatUnits(snap.Limit.Limit, int(snap.Wager.Decimals)),
		snap.Wager.Symbol)
	if snap.HouseEdgeBps != nil {
		fmt.Printf("  House edge       : %s bps\n", snap.HouseEdgeBps.String())
	}
}

func wagerDecimals(orch *flipcore.Orchestrator) int {
	if snap, ok := orch.Snapshot(); ok {
		return int(snap.Wager.Decimals)
	}
	return 18
}

func placeBet(ctx context.Context, reader *bufio.Reader, orch *flipcore.Orchestrator) *flipcore.SubmittedBet {
	fmt.Println("\n--- New bet (direction -> amount -> leverage -> duration -> entry price) ---")

	dir := flipcore.DirectionUp
	switch strings.ToLower(readLine(reader, "Direction (up/down): ")) {
	case "up", "u":
	case "down", "d":
		dir = flipcore.DirectionDown
	default:
		fmt.Println("  [!] direction must be up or down")
		return nil
	}

	dec := wagerDecimals(orch)
	amount, err := flipcore.ParseUnits(readLine(reader, "Amount (in tokens): "), dec)
	if err != nil {
		fmt.Println("  [!] bad amount:", err)
		return nil
	}

	leverage, err := strconv.ParseUint(readLine(reader, "Leverage (1-10): "), 10, 64)
	if err != nil || leverage < 1 {
		fmt.Println("  [!] bad leverage")
		return nil
	}
	if leverage > 1 {
		coll := flipcore.RequiredCollateral(amount, leverage)
		fmt.Println("  Required collateral:", flipcore.FormatUnits(coll, dec))
	}

	durSecs, err := strconv.ParseInt(readLine(reader, "Duration (seconds, default 60): "), 10, 64)
	if err != nil || durSecs <= 0 {
		durSecs = 60
	}

	entry, err := flipcore.ParseUnits(readLine(reader, "Entry price (USD): "), 8)
	if err != nil {
		fmt.Println("  [!] bad price:", err)
		return nil
	}

	est := orch.EstimatePayout(amount, leverage)
	fmt.Println("  Estimated payout if won:", flipcore.FormatUnits(est.Payout, dec), "(advisory)")

	draft := flipcore.NewDraftBet(dir, amount, leverage, time.Duration(durSecs)*time.Second, entry)
	bet, err := orch.PlaceBet(ctx, draft)
	if err != nil {
		fmt.Println("  [X]", err.Error())
		return nil
	}
	fmt.Println("  Bet placed! id:", bet.BetID.String(), "| tx:", bet.TxHash.Hex())
	return bet
}

func resolveBet(ctx context.Context, reader *bufio.Reader, orch *flipcore.Orchestrator, bet *flipcore.SubmittedBet) {
	if bet == nil {
		fmt.Println("  [!] no bet placed in this session yet")
		return
	}
	final, err := flipcore.ParseUnits(readLine(reader, "Final price (USD): "), 8)
	if err != nil {
		fmt.Println("  [!] bad price:", err)
		return
	}
	out, err := orch.ResolveBet(ctx, bet, final)
	if err != nil {
		fmt.Println("  [X]", err.Error())
		return
	}
	dec := wagerDecimals(orch)
	if out.Won {
		fmt.Println("  WIN! payout:", flipcore.FormatUnits(out.Payout, dec))
	} else {
		fmt.Println("  Lost. Better luck next flip.")
	}
}

func printStats(ctx context.Context, store stats.Store, orch *flipcore.Orchestrator) {
	account, ok := orch.Account()
	if !ok {
		fmt.Println("  [!] not connected")
		return
	}
	s, err := store.Load(ctx, account)
	if err != nil {
		fmt.Println("  [!] load stats:", err)
		return
	}
	dec := wagerDecimals(orch)
	fmt.Printf("  Wins/Losses : %d / %d (streak %d, best %d)\n", s.TotalWins, s.TotalLosses, s.WinStreak, s.BestStreak)
	fmt.Println("  Volume      :", flipcore.FormatUnits(s.TotalVolume, dec))
	fmt.Println("  Net PnL     :", flipcore.FormatUnits(s.NetPnL, dec))
	if s.HighestLeverageWin > 0 {
		fmt.Printf("  Best lev win: %dx\n", s.HighestLeverageWin)
	}
	for _, a := range stats.Achievements(s) {
		fmt.Println("  \U0001F3C6", a.Title)
	}
}

func printResolutions(ctx context.Context, orch *flipcore.Orchestrator) {
	w, err := orch.WatchResolutions(ctx)
	if err != nil {
		return
	}
	for ev := range w.Events() {
		fmt.Printf("\n  [event] bet %s resolved for %s: won=%v payout=%s\nflip> ",
			ev.BetID.String(), ev.Player.Hex(), ev.Won, ev.Payout.String())
	}
}
