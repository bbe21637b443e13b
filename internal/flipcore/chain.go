package flipcore

import (
	"math/big"
	"sync"
)

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// ChainMetadata is everything a wallet needs to register a chain: the same
// shape a wallet_addEthereumChain request carries.
type ChainMetadata struct {
	ChainID        *big.Int
	Name           string
	NativeCurrency NativeCurrency
	RPCURLs        []string
	ExplorerURLs   []string
}

// MonadTestnet is the default deployment target for the ChadFlip contract.
var MonadTestnet = ChainMetadata{
	ChainID: big.NewInt(10143),
	Name:    "Monad Testnet",
	NativeCurrency: NativeCurrency{
		Name:     "MON",
		Symbol:   "MON",
		Decimals: 18,
	},
	RPCURLs:      []string{"https://testnet-rpc.monad.xyz"},
	ExplorerURLs: []string{"https://testnet.monadexplorer.com"},
}

// ChainRegistry holds the chains a wallet may be asked to switch to.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[string]ChainMetadata // keyed by decimal chain id
}

func NewChainRegistry(seed ...ChainMetadata) *ChainRegistry {
	r := &ChainRegistry{chains: make(map[string]ChainMetadata)}
	for _, m := range seed {
		r.Register(m)
	}
	return r
}

func (r *ChainRegistry) Register(m ChainMetadata) {
	if m.ChainID == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[m.ChainID.String()] = m
}

func (r *ChainRegistry) Lookup(id *big.Int) (ChainMetadata, bool) {
	if id == nil {
		return ChainMetadata{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.chains[id.String()]
	return m, ok
}
