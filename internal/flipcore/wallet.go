package flipcore

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// WalletEventKind distinguishes wallet-initiated notifications.
type WalletEventKind int

const (
	AccountsChanged WalletEventKind = iota
	ChainChanged
)

// WalletEvent is an account-changed or chain-changed notification. Either
// one invalidates the current session and all derived contract handles.
type WalletEvent struct {
	Kind    WalletEventKind
	Account common.Address
	ChainID *big.Int
}

// Wallet is the signer capability the session manager consumes. It mirrors
// the injected-provider surface: account authorization, active-chain query,
// chain switch/registration, signing, and change notifications.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, id *big.Int) error
	AddChain(ctx context.Context, meta ChainMetadata) error
	SignTx(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error)
	Backend() Backend
	Notifications() <-chan WalletEvent
	Close() error
}

// DialFunc opens an RPC connection for a chain's endpoint.
type DialFunc func(url string) (Backend, error)

func dialEthclient(url string) (Backend, error) {
	ec, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	return ec, nil
}

// WalletConfig feeds the provider probes.
type WalletConfig struct {
	PrivateKeyHex string
	KeyFile       string
	Chains        *ChainRegistry
	DefaultChain  *big.Int
	Dial          DialFunc
}

func (c WalletConfig) dial() DialFunc {
	if c.Dial != nil {
		return c.Dial
	}
	return dialEthclient
}

// ProviderProbe is one named wallet-detection strategy. Probe returns
// (nil, nil) when its wallet kind is simply not present; a non-nil error
// aborts detection.
type ProviderProbe struct {
	Name  string
	Probe func(ctx context.Context, cfg WalletConfig) (Wallet, error)
}

// DetectWallet walks the probes in order; first match wins. Returns
// ErrNoWalletFound when no probe produces a wallet.
func DetectWallet(ctx context.Context, cfg WalletConfig, probes []ProviderProbe) (Wallet, string, error) {
	for _, p := range probes {
		w, err := p.Probe(ctx, cfg)
		if err != nil {
			return nil, p.Name, fmt.Errorf("probe %s: %w", p.Name, err)
		}
		if w != nil {
			return w, p.Name, nil
		}
	}
	return nil, "", ErrNoWalletFound
}

// DefaultProbes: an explicit private key first, then a key file on disk.
func DefaultProbes() []ProviderProbe {
	return []ProviderProbe{
		{Name: "env-key", Probe: probeEnvKey},
		{Name: "key-file", Probe: probeKeyFile},
	}
}

func probeEnvKey(ctx context.Context, cfg WalletConfig) (Wallet, error) {
	h := strings.TrimSpace(cfg.PrivateKeyHex)
	if h == "" {
		return nil, nil
	}
	return NewKeyWallet(ctx, h, cfg)
}

func probeKeyFile(ctx context.Context, cfg WalletConfig) (Wallet, error) {
	path := strings.TrimSpace(cfg.KeyFile)
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return NewKeyWallet(ctx, strings.TrimSpace(string(b)), cfg)
}

// keyWallet signs with a local private key and talks to whichever chain RPC
// the registry maps the active chain id to. SwitchChain re-dials; handles
// derived from the previous connection are invalidated via Notifications.
type keyWallet struct {
	key  *keySigner
	cfg  WalletConfig
	mu   sync.Mutex
	be   Backend
	cur  *big.Int
	evs  chan WalletEvent
	done bool
}

type keySigner struct {
	addr common.Address
	sign func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// NewKeyWallet parses a hex key (with or without 0x) and dials the default
// chain's registered endpoint.
func NewKeyWallet(ctx context.Context, pkHex string, cfg WalletConfig) (Wallet, error) {
	h := strings.TrimPrefix(strings.TrimSpace(pkHex), "0x")
	if h == "" {
		return nil, fmt.Errorf("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	addr := gethcrypto.PubkeyToAddress(prv.PublicKey)

	w := &keyWallet{
		cfg: cfg,
		evs: make(chan WalletEvent, 8),
		key: &keySigner{
			addr: addr,
			sign: func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
				return types.SignTx(tx, types.LatestSignerForChainID(chainID), prv)
			},
		},
	}
	if cfg.DefaultChain != nil {
		if err := w.connectChain(ctx, cfg.DefaultChain); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *keyWallet) connectChain(ctx context.Context, id *big.Int) error {
	meta, ok := w.cfg.Chains.Lookup(id)
	if !ok {
		return ErrUnknownChain
	}
	var lastErr error
	for _, url := range meta.RPCURLs {
		be, err := w.cfg.dial()(url)
		if err != nil {
			lastErr = err
			continue
		}
		got, err := be.ChainID(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if got.Cmp(id) != 0 {
			lastErr = fmt.Errorf("endpoint %s reports chain %s, want %s", url, got, id)
			continue
		}
		w.be = be
		w.cur = new(big.Int).Set(id)
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("chain %s has no RPC endpoints", id)
	}
	return lastErr
}

func (w *keyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.key.addr}, nil
}

func (w *keyWallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return nil, fmt.Errorf("no chain connected")
	}
	return new(big.Int).Set(w.cur), nil
}

func (w *keyWallet) SwitchChain(ctx context.Context, id *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur != nil && w.cur.Cmp(id) == 0 {
		return nil
	}
	if err := w.connectChain(ctx, id); err != nil {
		return err
	}
	w.emit(WalletEvent{Kind: ChainChanged, Account: w.key.addr, ChainID: new(big.Int).Set(id)})
	return nil
}

func (w *keyWallet) AddChain(ctx context.Context, meta ChainMetadata) error {
	w.cfg.Chains.Register(meta)
	return nil
}

func (w *keyWallet) SignTx(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error) {
	if from != w.key.addr {
		return nil, fmt.Errorf("unknown account %s", from.Hex())
	}
	w.mu.Lock()
	chainID := w.cur
	w.mu.Unlock()
	return w.key.sign(tx, chainID)
}

func (w *keyWallet) Backend() Backend {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.be
}

func (w *keyWallet) Notifications() <-chan WalletEvent { return w.evs }

func (w *keyWallet) emit(ev WalletEvent) {
	if w.done {
		return
	}
	select {
	case w.evs <- ev:
	default: // slow consumer; drop rather than block signing paths
	}
}

func (w *keyWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.done = true
		close(w.evs)
	}
	return nil
}
