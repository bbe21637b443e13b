package flipcore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Config wires the orchestration core to one concrete deployment.
type Config struct {
	Chain           ChainMetadata // required chain; metadata is reused for wallet_addEthereumChain
	BetContract     common.Address
	WagerToken      common.Address
	CollateralToken common.Address // zero address means "no collateral token configured"

	WagerSymbol      string
	CollateralSymbol string

	MaxLeverage       uint64
	PricePrecision    *big.Int // price scaling factor the contract expects (1e8)
	DefaultDailyLimit *big.Int // display fallback when the limit read fails

	Wallet WalletConfig
	Probes []ProviderProbe // nil = DefaultProbes
}

// HasCollateralToken reports whether a collateral token is configured.
func (c Config) HasCollateralToken() bool {
	return c.CollateralToken != (common.Address{})
}

// State of the wallet session lifecycle. Failures never park the manager in
// a terminal error state; they return it to StateDisconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Session is the live binding to one wallet account on one chain. It is the
// single source of truth for "is a wallet usable right now": every contract
// handle derives from a session and dies with it.
type Session struct {
	Account common.Address
	ChainID *big.Int

	gen uint64
	mgr *SessionManager
}

// Valid reports whether this session is still the manager's current one.
// Any account or chain change bumps the generation and strands old handles.
func (s *Session) Valid() bool {
	if s == nil || s.mgr == nil {
		return false
	}
	return s.mgr.gen.Load() == s.gen && s.mgr.State() == StateConnected
}

// Handles are the contract bindings derived from the current session.
type Handles struct {
	Bet        *ContractHandle
	Wager      *ContractHandle
	Collateral *ContractHandle // nil when no collateral token is configured
}

// SessionManager owns the connect/disconnect lifecycle and reacts to
// wallet-initiated account and chain changes.
type SessionManager struct {
	cfg Config
	log *zap.Logger

	gen atomic.Uint64

	mu          sync.Mutex
	state       State
	wallet      Wallet
	walletName  string
	session     *Session
	handles     *Handles
	watchCancel context.CancelFunc
}

func NewSessionManager(cfg Config, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{cfg: cfg, log: log}
}

func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect authorizes a wallet, enforces the required chain (switching or
// registering it when possible) and builds a fresh session with derived
// contract handles.
func (m *SessionManager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.state == StateConnected {
		s := m.session
		m.mu.Unlock()
		return s, nil
	}
	if m.state == StateConnecting {
		m.mu.Unlock()
		return nil, fmt.Errorf("connect already in progress")
	}
	m.state = StateConnecting
	m.mu.Unlock()

	sess, err := m.connect(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

func (m *SessionManager) connect(ctx context.Context) (*Session, error) {
	probes := m.cfg.Probes
	if probes == nil {
		probes = DefaultProbes()
	}
	wallet, name, err := DetectWallet(ctx, m.cfg.Wallet, probes)
	if err != nil {
		return nil, err
	}

	accounts, err := wallet.RequestAccounts(ctx)
	if err != nil {
		_ = wallet.Close()
		return nil, err // ErrUserRejected surfaces unchanged
	}
	if len(accounts) == 0 {
		_ = wallet.Close()
		return nil, ErrNoWalletFound
	}
	account := accounts[0]

	required := m.cfg.Chain.ChainID
	active, err := wallet.ChainID(ctx)
	if err != nil {
		_ = wallet.Close()
		return nil, err
	}
	if active.Cmp(required) != 0 {
		m.log.Warn("wrong network, attempting switch",
			zap.String("active", active.String()), zap.String("required", required.String()))
		if err := m.switchOrRegister(ctx, wallet); err != nil {
			_ = wallet.Close()
			return nil, err
		}
	}

	be := wallet.Backend()
	if be == nil {
		_ = wallet.Close()
		return nil, fmt.Errorf("wallet %s has no RPC backend", name)
	}

	gen := m.gen.Add(1)
	sess := &Session{
		Account: account,
		ChainID: new(big.Int).Set(required),
		gen:     gen,
		mgr:     m,
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	prev := m.wallet
	m.wallet = wallet
	m.walletName = name
	m.session = sess
	m.watchCancel = cancel
	m.handles = &Handles{
		Bet:   newContractHandle("chadflip", m.cfg.BetContract, chadFlipABI, sess, be, wallet),
		Wager: newContractHandle("wager-token", m.cfg.WagerToken, erc20ABI, sess, be, wallet),
	}
	if m.cfg.HasCollateralToken() {
		m.handles.Collateral = newContractHandle("collateral-token", m.cfg.CollateralToken, erc20ABI, sess, be, wallet)
	}
	// The state transition and the watcher start stay on the connected side
	// of this lock: any notification the watcher picks up, including one
	// already queued during the handshake, finds a Connected manager and
	// invalidates the session instead of being dropped.
	m.state = StateConnected
	m.mu.Unlock()

	if prev != nil && prev != wallet {
		_ = prev.Close()
	}
	go m.watchWallet(watchCtx, wallet)

	m.log.Info("wallet connected",
		zap.String("wallet", name),
		zap.String("account", account.Hex()),
		zap.String("chain", required.String()))
	return sess, nil
}

// switchOrRegister asks the wallet to switch to the required chain,
// registering the chain first when the wallet does not know it. Both
// failing degrades to a NetworkMismatch instructing a manual switch.
func (m *SessionManager) switchOrRegister(ctx context.Context, wallet Wallet) error {
	required := m.cfg.Chain.ChainID
	err := wallet.SwitchChain(ctx, required)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnknownChain) {
		if addErr := wallet.AddChain(ctx, m.cfg.Chain); addErr != nil {
			m.log.Error("chain registration failed", zap.Error(addErr))
			return classifiedf(ErrNetworkMismatch,
				"Could not add %s to your wallet. Please switch networks manually.", m.cfg.Chain.Name)
		}
		if err = wallet.SwitchChain(ctx, required); err == nil {
			return nil
		}
	}
	m.log.Error("chain switch failed", zap.Error(err))
	return classifiedf(ErrNetworkMismatch,
		"Could not switch to %s. Please switch networks manually.", m.cfg.Chain.Name)
}

// watchWallet consumes wallet-initiated notifications for the lifetime of
// one session. Any event invalidates the whole session: a stale signer must
// never sign for the wrong account or against the wrong chain.
func (m *SessionManager) watchWallet(ctx context.Context, wallet Wallet) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-wallet.Notifications():
			if !ok {
				return
			}
			reason := "account changed"
			if ev.Kind == ChainChanged {
				reason = "chain changed"
			}
			m.Invalidate(reason)
		}
	}
}

// Invalidate tears down the current session and all derived handles. The
// caller must Connect again; in-flight operations holding old handles fail
// with ErrStaleSession.
func (m *SessionManager) Invalidate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return
	}
	m.gen.Add(1)
	m.state = StateDisconnected
	m.session = nil
	m.handles = nil
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	m.log.Warn("session invalidated, reconnect required", zap.String("reason", reason))
}

// Disconnect tears down the session and releases the wallet. Idempotent.
func (m *SessionManager) Disconnect() {
	m.Invalidate("disconnect requested")
	m.mu.Lock()
	w := m.wallet
	m.wallet = nil
	m.walletName = ""
	m.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}

// Session returns the current session or ErrNotConnected.
func (m *SessionManager) Session() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// CurrentHandles returns the contract handles for the current session.
func (m *SessionManager) CurrentHandles() (*Handles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.handles == nil {
		return nil, ErrNotConnected
	}
	return m.handles, nil
}

// Backend returns the RPC backend bound to the current session.
func (m *SessionManager) Backend() (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.handles == nil {
		return nil, ErrNotConnected
	}
	return m.handles.Bet.be, nil
}

// WalletName reports which provider probe matched, for logging.
func (m *SessionManager) WalletName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.walletName
}
