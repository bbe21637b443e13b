package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings keeps all configuration options.
// Naming mirrors the deployment env keys to avoid touching other code.
type Settings struct {
	Env      string
	LogLevel string

	RPCURL  string
	ChainID string // decimal chain id, kept as string for registry lookups

	BetContract      string
	WagerToken       string
	CollateralToken  string // empty disables leveraged bets
	WagerSymbol      string
	CollateralSymbol string

	MaxLeverage       int
	DefaultDailyLimit int64 // whole wager tokens, display fallback only

	PrivateKeyHex string
	KeyFile       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsPort string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		return def
	}

	st := Settings{}
	st.Env = get([]string{"env", "ENV"}, "local")
	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")

	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "https://testnet-rpc.monad.xyz")
	st.ChainID = get([]string{"chain_id", "CHAIN_ID"}, "10143")

	st.BetContract = get([]string{"bet_contract", "BET_CONTRACT"}, "")
	st.WagerToken = get([]string{"wager_token", "WAGER_TOKEN"}, "")
	st.CollateralToken = get([]string{"collateral_token", "COLLATERAL_TOKEN"}, "")
	st.WagerSymbol = get([]string{"wager_symbol", "WAGER_SYMBOL"}, "CHAD")
	st.CollateralSymbol = get([]string{"collateral_symbol", "COLLATERAL_SYMBOL"}, "MON")

	st.MaxLeverage = getInt([]string{"max_leverage", "MAX_LEVERAGE"}, 10)
	st.DefaultDailyLimit = getInt64([]string{"default_daily_limit", "DEFAULT_DAILY_LIMIT"}, 5000)

	st.PrivateKeyHex = get([]string{"private_key", "PRIVATE_KEY"}, "")
	st.KeyFile = get([]string{"key_file", "KEY_FILE"}, "")

	st.RedisAddr = get([]string{"redis_addr", "REDIS_ADDR"}, "")
	st.RedisPassword = get([]string{"redis_password", "REDIS_PASSWORD"}, "")
	st.RedisDB = getInt([]string{"redis_db", "REDIS_DB"}, 0)

	st.MetricsPort = get([]string{"metrics_port", "METRICS_PORT"}, "9091")

	return st
}
