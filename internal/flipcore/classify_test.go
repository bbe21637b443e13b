package flipcore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRPCError struct {
	msg  string
	code int
	data any
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) ErrorCode() int { return e.code }

type fakeDataError struct {
	fakeRPCError
}

func (e *fakeDataError) ErrorData() any { return e.data }

// revertData encodes reason the way Error(string) reverts appear in RPC
// error data.
func revertData(t *testing.T, reason string) string {
	t.Helper()
	strTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strTy}}.Pack(reason)
	require.NoError(t, err)
	return "0x08c379a0" + fmt.Sprintf("%x", packed)
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(zap.NewNop(), nil))
}

func TestClassifyUserRejection(t *testing.T) {
	cases := []error{
		errors.New("MetaMask Tx Signature: User denied transaction signature"),
		errors.New("ACTION_REJECTED by wallet"),
		&fakeRPCError{msg: "rejected", code: 4001},
		ErrUserRejected,
	}
	for _, err := range cases {
		ce := Classify(zap.NewNop(), err)
		require.NotNil(t, ce)
		assert.Equal(t, "You rejected the transaction.", ce.Message)
		assert.ErrorIs(t, ce, ErrUserRejected)
	}
}

func TestClassifyInsufficientGas(t *testing.T) {
	ce := Classify(zap.NewNop(), errors.New("err: insufficient funds for gas * price + value"))
	assert.ErrorIs(t, ce, ErrInsufficientGas)
	assert.Equal(t, "Insufficient native balance to pay the gas fee.", ce.Message)
}

func TestClassifyRevertReasons(t *testing.T) {
	cases := []struct {
		reason string
		want   string
	}{
		{"Insufficient balance", "Insufficient CHAD balance."},
		{"Daily limit exceeded", "Daily betting limit exceeded."},
		{"ERC20: transfer amount exceeds balance", "Insufficient MON balance for collateral."},
		{"ERC20: insufficient allowance", "Token allowance is too low. Approve the contract and retry."},
		{"Bet already resolved", "Transaction failed: Bet already resolved"},
		{"", "Transaction reverted. Please try again."},
	}
	for _, tc := range cases {
		ce := Classify(zap.NewNop(), &RevertError{Reason: tc.reason})
		require.NotNil(t, ce, tc.reason)
		assert.Equal(t, tc.want, ce.Message, tc.reason)
	}
}

func TestClassifyRevertFromRPCData(t *testing.T) {
	err := &fakeDataError{fakeRPCError{
		msg:  "execution reverted",
		code: 3,
		data: revertData(t, "Daily limit exceeded"),
	}}
	ce := Classify(zap.NewNop(), err)
	assert.Equal(t, "Daily betting limit exceeded.", ce.Message)
}

func TestClassifyRevertFromMessageScrape(t *testing.T) {
	ce := Classify(zap.NewNop(), errors.New("execution reverted: Insufficient balance"))
	assert.Equal(t, "Insufficient CHAD balance.", ce.Message)
}

func TestClassifyRPCCodeFallback(t *testing.T) {
	ce := Classify(zap.NewNop(), &fakeRPCError{msg: "something odd", code: -32000})
	assert.Equal(t, "Unexpected error (code -32000). Please try again.", ce.Message)
}

func TestClassifyTotalFallback(t *testing.T) {
	ce := Classify(zap.NewNop(), errors.New("wat"))
	assert.Equal(t, "Transaction failed. Please try again.", ce.Message)
}

func TestClassifySentinelsKeepKind(t *testing.T) {
	cases := []error{
		ErrNotConnected,
		ErrMisconfiguredCollateral,
		ErrInsufficientCollateral,
		ErrMissingBetID,
		ErrEventNotFound,
		ErrBetInFlight,
		ErrStaleSession,
		ErrTxPending,
	}
	for _, sentinel := range cases {
		ce := Classify(zap.NewNop(), fmt.Errorf("wrapped: %w", sentinel))
		require.NotNil(t, ce)
		assert.ErrorIs(t, ce, sentinel)
		assert.NotEmpty(t, ce.Message)
		assert.NotContains(t, ce.Message, "wrapped")
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := classifiedf(ErrNetworkMismatch, "Could not switch to Monad Testnet. Please switch networks manually.")
	ce := Classify(zap.NewNop(), orig)
	assert.Same(t, orig, ce)
}
