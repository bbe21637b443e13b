package flipcore

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Classify maps a raw transaction/RPC failure to a display-ready message.
// It is total: any input (including nil-adjacent garbage) produces a
// sanitized *ClassifiedError, never a panic. The raw error is logged here
// with full detail; only the sanitized form reaches the caller, so
// provider internals never leak into the presentation layer.
func Classify(log *zap.Logger, err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Error("transaction failed", zap.Error(err))

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	// Local validation sentinels are already display-safe.
	switch {
	case errors.Is(err, ErrUserRejected):
		return classifiedf(ErrUserRejected, "You rejected the transaction.")
	case errors.Is(err, ErrNotConnected):
		return classifiedf(ErrNotConnected, "Please connect your wallet first.")
	case errors.Is(err, ErrMisconfiguredCollateral):
		return classifiedf(ErrMisconfiguredCollateral, "Leveraged bets are unavailable: no collateral token is configured.")
	case errors.Is(err, ErrInsufficientCollateral):
		return classifiedf(ErrInsufficientCollateral, "Insufficient collateral balance for this leverage.")
	case errors.Is(err, ErrMissingBetID):
		return classifiedf(ErrMissingBetID, "This bet has no confirmed id yet and cannot be resolved.")
	case errors.Is(err, ErrEventNotFound):
		return classifiedf(ErrEventNotFound, "Transaction succeeded but its confirmation event was not found. Refresh before retrying.")
	case errors.Is(err, ErrBetInFlight):
		return classifiedf(ErrBetInFlight, "Another bet is still being placed. Wait for it to finish.")
	case errors.Is(err, ErrStaleSession):
		return classifiedf(ErrStaleSession, "Your wallet session changed. Please reconnect.")
	case errors.Is(err, ErrTxPending):
		return classifiedf(ErrTxPending, "Transaction is still pending. It may confirm later; refresh before retrying.")
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "user denied") || strings.Contains(msg, "action_rejected") || hasRPCCode(err, 4001) {
		return classifiedf(ErrUserRejected, "You rejected the transaction.")
	}
	if strings.Contains(msg, "insufficient funds") {
		return classifiedf(ErrInsufficientGas, "Insufficient native balance to pay the gas fee.")
	}
	if reason, ok := revertReason(err); ok {
		return classifyRevert(reason)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return classifiedf(nil, "Unexpected error (code %d). Please try again.", rpcErr.ErrorCode())
	}
	return classifiedf(nil, "Transaction failed. Please try again.")
}

// classifyRevert maps known revert reasons from the game and token
// contracts to friendlier phrasings.
func classifyRevert(reason string) *ClassifiedError {
	kind := &RevertError{Reason: reason}
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "insufficient allowance"):
		return &ClassifiedError{Kind: kind, Message: "Token allowance is too low. Approve the contract and retry."}
	case strings.Contains(lower, "transfer amount exceeds balance"):
		return &ClassifiedError{Kind: kind, Message: "Insufficient MON balance for collateral."}
	case strings.Contains(lower, "insufficient balance"):
		return &ClassifiedError{Kind: kind, Message: "Insufficient CHAD balance."}
	case strings.Contains(lower, "daily limit exceeded"):
		return &ClassifiedError{Kind: kind, Message: "Daily betting limit exceeded."}
	case reason == "":
		return &ClassifiedError{Kind: kind, Message: "Transaction reverted. Please try again."}
	default:
		return &ClassifiedError{Kind: kind, Message: "Transaction failed: " + reason}
	}
}

// revertReason extracts a revert reason from an error, preferring ABI-coded
// revert data over message scraping.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok && strings.HasPrefix(s, "0x") {
			if reason, uerr := abi.UnpackRevert(common.FromHex(s)); uerr == nil {
				return reason, true
			}
		}
	}
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		rest := s[i+len("execution reverted"):]
		rest = strings.TrimPrefix(rest, ":")
		return strings.TrimSpace(rest), true
	}
	return "", false
}

func hasRPCCode(err error, code int) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == code
}
