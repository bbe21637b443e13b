package flipcore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractHandle is a session-bound contract binding. Every call verifies
// the session is still current, so a handle kept across an account or
// chain change fails with ErrStaleSession instead of signing against the
// wrong account.
type ContractHandle struct {
	name string
	addr common.Address
	abi  abi.ABI
	sess *Session
	be   Backend
	w    Wallet
}

func newContractHandle(name string, addr common.Address, a abi.ABI, sess *Session, be Backend, w Wallet) *ContractHandle {
	return &ContractHandle{name: name, addr: addr, abi: a, sess: sess, be: be, w: w}
}

func (h *ContractHandle) Address() common.Address { return h.addr }

func (h *ContractHandle) guard() error {
	if !h.sess.Valid() {
		return ErrStaleSession
	}
	return nil
}

// Call performs a read-only eth_call and unpacks the outputs.
func (h *ContractHandle) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	data, err := h.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", h.name, method, err)
	}
	out, err := callWithRetry(ctx, h.be, ethereum.CallMsg{From: h.sess.Account, To: &h.addr, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", h.name, method, err)
	}
	vals, err := h.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", h.name, method, err)
	}
	return vals, nil
}

// CallUint is Call for single-uint256 views.
func (h *ContractHandle) CallUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := h.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s.%s: empty return", h.name, method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected return type %T", h.name, method, vals[0])
	}
	return v, nil
}

// CallUint8 is Call for uint8 views (token decimals).
func (h *ContractHandle) CallUint8(ctx context.Context, method string, args ...any) (uint8, error) {
	vals, err := h.Call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%s.%s: empty return", h.name, method)
	}
	v, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s.%s: unexpected return type %T", h.name, method, vals[0])
	}
	return v, nil
}

// Transact packs, signs, submits and awaits one state-changing call.
// Gas is estimated up front so a call guaranteed to revert never reaches
// the network; the estimate gets a 20% buffer. Fees follow EIP-1559 with
// feeCap = 2*baseFee + tip.
func (h *ContractHandle) Transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	data, err := h.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", h.name, method, err)
	}
	from := h.sess.Account
	msg := ethereum.CallMsg{From: from, To: &h.addr, Data: data, Value: big.NewInt(0)}

	gas, err := h.be.EstimateGas(ctx, msg)
	if err != nil {
		return nil, err
	}
	gas = gas + gas/5

	head, err := h.be.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	tip, err := h.be.SuggestGasTipCap(ctx)
	if err != nil || tip == nil || tip.Sign() <= 0 {
		tip = big.NewInt(1_000_000_000) // 1 gwei fallback
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	nonce, err := h.be.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   h.sess.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &h.addr,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := h.w.SignTx(ctx, from, tx)
	if err != nil {
		return nil, err
	}
	if err := h.be.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}

	rcpt, err := h.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		// Replay the call at the failing block to recover the revert reason.
		if _, callErr := h.be.CallContract(ctx, msg, rcpt.BlockNumber); callErr != nil {
			return nil, callErr
		}
		return nil, &RevertError{}
	}
	return rcpt, nil
}

// waitMined polls for the receipt. On context expiry it reports the
// transaction as still pending: once broadcast, we have no authority to
// cancel it and must not claim it failed.
func (h *ContractHandle) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		rcpt, err := h.be.TransactionReceipt(ctx, txHash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrTxPending, txHash.Hex())
		case <-ticker.C:
		}
	}
}
