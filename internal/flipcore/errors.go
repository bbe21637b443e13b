package flipcore

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the caller is expected to branch on.
// Network-level failures are wrapped by Classify before they leave the
// orchestration boundary; these sentinels survive the wrapping so
// errors.Is keeps working on the classified value.
var (
	ErrUserRejected            = errors.New("user rejected the request")
	ErrNoWalletFound           = errors.New("no compatible wallet available")
	ErrNetworkMismatch         = errors.New("wallet is on the wrong network")
	ErrUnknownChain            = errors.New("chain is not registered with the wallet")
	ErrNotConnected            = errors.New("wallet is not connected")
	ErrMisconfiguredCollateral = errors.New("collateral token is not configured")
	ErrInsufficientCollateral  = errors.New("insufficient collateral balance")
	ErrInsufficientGas         = errors.New("insufficient native balance for gas")
	ErrEventNotFound           = errors.New("confirmation event not found in receipt")
	ErrMissingBetID            = errors.New("bet has no contract-assigned id")
	ErrBetInFlight             = errors.New("another bet is already in flight")
	ErrStaleSession            = errors.New("session has been invalidated")

	// ErrTxPending means we stopped waiting for a broadcast transaction.
	// The transaction may still land; it must not be reported as failed.
	ErrTxPending = errors.New("transaction still pending")
)

// RevertError carries a decoded contract revert reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// ClassifiedError is the sanitized form of a transaction/RPC failure.
// Message is display-ready; Kind is the matching taxonomy sentinel (or a
// *RevertError) when one was recognized. The raw provider error is logged
// at the classification site and never attached here.
type ClassifiedError struct {
	Kind    error
	Message string
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.Kind }

func classifiedf(kind error, format string, a ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: fmt.Sprintf(format, a...)}
}
