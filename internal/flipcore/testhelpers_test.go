package flipcore

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	testAccount  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testBetAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testWagerTok = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testCollTok  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func callKey(addr common.Address, selector []byte) string {
	return addr.Hex() + "/" + hex.EncodeToString(selector[:4])
}

type receiptSpec struct {
	status uint64
	logs   []*types.Log
}

// fakeBackend dispatches eth_call by contract address and method selector,
// and mints a pre-armed receipt the moment a transaction is sent.
type fakeBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	code     map[common.Address][]byte
	balances map[common.Address]*big.Int

	callOut map[string][]byte
	callErr map[string]error

	estimateErr map[string]error
	receiptFor  map[string]receiptSpec
	receipts    map[common.Hash]*types.Receipt
	sent        []*types.Transaction
	nonce       uint64

	head    *big.Int
	logs    []types.Log
	filtErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:     big.NewInt(10143),
		code:        map[common.Address][]byte{testBetAddr: {1}, testWagerTok: {1}, testCollTok: {1}},
		balances:    map[common.Address]*big.Int{},
		callOut:     map[string][]byte{},
		callErr:     map[string]error{},
		estimateErr: map[string]error{},
		receiptFor:  map[string]receiptSpec{},
		receipts:    map[common.Hash]*types.Receipt{},
		head:        big.NewInt(100),
	}
}

// stubView arms a read-only method to return outs.
func (b *fakeBackend) stubView(t *testing.T, addr common.Address, a abi.ABI, name string, outs ...any) {
	t.Helper()
	m, ok := a.Methods[name]
	require.True(t, ok, "unknown method %s", name)
	packed, err := m.Outputs.Pack(outs...)
	require.NoError(t, err)
	b.mu.Lock()
	b.callOut[callKey(addr, m.ID)] = packed
	b.mu.Unlock()
}

func (b *fakeBackend) stubViewErr(addr common.Address, a abi.ABI, name string, err error) {
	m := a.Methods[name]
	b.mu.Lock()
	b.callErr[callKey(addr, m.ID)] = err
	b.mu.Unlock()
}

// armReceipt makes the next transaction hitting addr/method mine with the
// given status and logs.
func (b *fakeBackend) armReceipt(addr common.Address, a abi.ABI, name string, status uint64, logs ...*types.Log) {
	m := a.Methods[name]
	b.mu.Lock()
	b.receiptFor[callKey(addr, m.ID)] = receiptSpec{status: status, logs: logs}
	b.mu.Unlock()
}

func (b *fakeBackend) armEstimateErr(addr common.Address, a abi.ABI, name string, err error) {
	m := a.Methods[name]
	b.mu.Lock()
	b.estimateErr[callKey(addr, m.ID)] = err
	b.mu.Unlock()
}

func (b *fakeBackend) sentCalls(addr common.Address, a abi.ABI, name string) int {
	m := a.Methods[name]
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, tx := range b.sent {
		if tx.To() != nil && *tx.To() == addr && len(tx.Data()) >= 4 &&
			hex.EncodeToString(tx.Data()[:4]) == hex.EncodeToString(m.ID) {
			n++
		}
	}
	return n
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[account], nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("bad call")
	}
	key := callKey(*msg.To, msg.Data[:4])
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.callErr[key]; ok {
		return nil, err
	}
	if out, ok := b.callOut[key]; ok {
		return out, nil
	}
	return nil, errors.New("no stub for " + key)
}

func (b *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[account]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.nonce
	b.nonce++
	return n, nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if msg.To != nil && len(msg.Data) >= 4 {
		b.mu.Lock()
		err := b.estimateErr[callKey(*msg.To, msg.Data[:4])]
		b.mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
	return 100_000, nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: new(big.Int).Set(b.head), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	spec := receiptSpec{status: types.ReceiptStatusSuccessful}
	if tx.To() != nil && len(tx.Data()) >= 4 {
		if s, ok := b.receiptFor[callKey(*tx.To(), tx.Data()[:4])]; ok {
			spec = s
		}
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      spec.status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).Set(b.head),
		Logs:        spec.logs,
	}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logs, b.filtErr
}

// fakeWallet is a scriptable Wallet: chain switches pop results off a list
// so tests can model unknown-chain and permanent-failure flows.
type fakeWallet struct {
	mu sync.Mutex

	accounts   []common.Address
	accountErr error
	chainID    *big.Int
	be         *fakeBackend
	evs        chan WalletEvent

	switchResults []error
	switched      []*big.Int
	added         []ChainMetadata
	closed        bool
}

func newFakeWallet(be *fakeBackend, chainID int64) *fakeWallet {
	return &fakeWallet{
		accounts: []common.Address{testAccount},
		chainID:  big.NewInt(chainID),
		be:       be,
		evs:      make(chan WalletEvent, 8),
	}
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	if w.accountErr != nil {
		return nil, w.accountErr
	}
	return w.accounts, nil
}

func (w *fakeWallet) ChainID(context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.chainID), nil
}

func (w *fakeWallet) SwitchChain(_ context.Context, id *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switched = append(w.switched, new(big.Int).Set(id))
	if len(w.switchResults) > 0 {
		err := w.switchResults[0]
		w.switchResults = w.switchResults[1:]
		if err != nil {
			return err
		}
	}
	w.chainID = new(big.Int).Set(id)
	return nil
}

func (w *fakeWallet) AddChain(_ context.Context, meta ChainMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, meta)
	return nil
}

func (w *fakeWallet) SignTx(_ context.Context, _ common.Address, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func (w *fakeWallet) Backend() Backend { return w.be }

func (w *fakeWallet) Notifications() <-chan WalletEvent { return w.evs }

func (w *fakeWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.evs)
	}
	return nil
}

func testConfig(w Wallet, withCollateral bool) Config {
	cfg := Config{
		Chain:            MonadTestnet,
		BetContract:      testBetAddr,
		WagerToken:       testWagerTok,
		WagerSymbol:      "CHAD",
		CollateralSymbol: "MON",
		MaxLeverage:      10,
		Probes: []ProviderProbe{{
			Name:  "fake",
			Probe: func(context.Context, WalletConfig) (Wallet, error) { return w, nil },
		}},
	}
	if withCollateral {
		cfg.CollateralToken = testCollTok
	}
	return cfg
}

// stubHealthyReads arms every view the fetcher touches with sane values.
func stubHealthyReads(t *testing.T, be *fakeBackend, withCollateral bool) {
	t.Helper()
	be.stubView(t, testWagerTok, erc20ABI, "decimals", uint8(18))
	be.stubView(t, testWagerTok, erc20ABI, "balanceOf", chad(1000))
	if withCollateral {
		be.stubView(t, testCollTok, erc20ABI, "decimals", uint8(18))
		be.stubView(t, testCollTok, erc20ABI, "balanceOf", chad(1000))
	}
	be.stubView(t, testBetAddr, chadFlipABI, "dailyBetLimit", chad(5000))
	be.stubView(t, testBetAddr, chadFlipABI, "getPlayerDailyUsed", chad(0))
	be.stubView(t, testBetAddr, chadFlipABI, "houseEdgeBps", big.NewInt(500))
}

// chad converts whole tokens into 18-decimal base units.
func chad(n int64) *big.Int {
	v := big.NewInt(n)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// betPlacedLog builds a well-formed BetPlaced log.
func betPlacedLog(t *testing.T, contract common.Address, betID *big.Int, player common.Address, amount *big.Int, leverage int64, up bool, entry *big.Int) *types.Log {
	t.Helper()
	data, err := chadFlipABI.Events["BetPlaced"].Inputs.NonIndexed().Pack(amount, big.NewInt(leverage), up, entry)
	require.NoError(t, err)
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			betPlacedTopic,
			common.BigToHash(betID),
			common.BytesToHash(common.LeftPadBytes(player.Bytes(), 32)),
		},
		Data: data,
	}
}

// betResolvedLog builds a well-formed BetResolved log.
func betResolvedLog(t *testing.T, contract common.Address, betID *big.Int, player common.Address, won bool, payout *big.Int) *types.Log {
	t.Helper()
	data, err := chadFlipABI.Events["BetResolved"].Inputs.NonIndexed().Pack(won, payout)
	require.NoError(t, err)
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			betResolvedTopic,
			common.BigToHash(betID),
			common.BytesToHash(common.LeftPadBytes(player.Bytes(), 32)),
		},
		Data: data,
	}
}
