package flipcore

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func refreshRig(t *testing.T, withCollateral bool) (*Fetcher, *SessionManager, *fakeBackend) {
	t.Helper()
	mgr, be, _ := connectRig(t, withCollateral)
	f := NewFetcher(testConfig(nil, withCollateral), zap.NewNop())
	return f, mgr, be
}

func doRefresh(t *testing.T, f *Fetcher, mgr *SessionManager) (Snapshot, []string, error) {
	t.Helper()
	sess, err := mgr.Session()
	require.NoError(t, err)
	h, err := mgr.CurrentHandles()
	require.NoError(t, err)
	be, err := mgr.Backend()
	require.NoError(t, err)
	return f.Refresh(context.Background(), sess, h, be)
}

func TestRefreshHappyPath(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)

	snap, warnings, err := doRefresh(t, f, mgr)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "CHAD", snap.Wager.Symbol)
	assert.Equal(t, uint8(18), snap.Wager.Decimals)
	assert.Equal(t, chad(1000).String(), snap.Wager.Raw.String())
	assert.Equal(t, chad(1000).String(), snap.Collateral.Raw.String())
	assert.Equal(t, chad(5000).String(), snap.Limit.Limit.String())
	assert.Equal(t, "0", snap.Limit.Used.String())
	assert.Equal(t, int64(500), snap.HouseEdgeBps.Int64())
	assert.False(t, snap.FetchedAt.IsZero())

	cached, ok := f.Last()
	assert.True(t, ok)
	assert.Equal(t, snap.Wager.Raw.String(), cached.Wager.Raw.String())
}

func TestRefreshNativeCollateralFallback(t *testing.T) {
	f, mgr, be := refreshRig(t, false)
	stubHealthyReads(t, be, false)
	be.balances[testAccount] = chad(3)

	snap, warnings, err := doRefresh(t, f, mgr)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "MON", snap.Collateral.Symbol)
	assert.Equal(t, uint8(18), snap.Collateral.Decimals)
	assert.Equal(t, chad(3).String(), snap.Collateral.Raw.String())
}

func TestRefreshPartialFailureWarns(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)
	be.stubViewErr(testBetAddr, chadFlipABI, "dailyBetLimit", errors.New("rpc exploded"))
	be.stubViewErr(testCollTok, erc20ABI, "balanceOf", errors.New("rpc exploded"))

	snap, warnings, err := doRefresh(t, f, mgr)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
	// Fallbacks: default limit, zero collateral balance.
	assert.Equal(t, chad(5000).String(), snap.Limit.Limit.String())
	assert.Equal(t, "0", snap.Collateral.Raw.String())
}

func TestRefreshUsesLastKnownOnFailure(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)

	_, _, err := doRefresh(t, f, mgr)
	require.NoError(t, err)

	be.stubViewErr(testCollTok, erc20ABI, "balanceOf", errors.New("flaky"))
	snap, warnings, err := doRefresh(t, f, mgr)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.Equal(t, chad(1000).String(), snap.Collateral.Raw.String())
}

func TestRefreshWagerBalanceIsMandatory(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)
	be.stubViewErr(testWagerTok, erc20ABI, "balanceOf", errors.New("rpc exploded"))

	_, _, err := doRefresh(t, f, mgr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAD balance")

	_, ok := f.Last()
	assert.False(t, ok, "failed refresh must not be cached")
}

func TestRefreshMissingContractCode(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)
	be.mu.Lock()
	be.code[testBetAddr] = nil
	be.mu.Unlock()

	_, _, err := doRefresh(t, f, mgr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on this network")
}

func TestRefreshStaleSession(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)

	sess, err := mgr.Session()
	require.NoError(t, err)
	h, err := mgr.CurrentHandles()
	require.NoError(t, err)
	mgr.Invalidate("test")

	_, _, err = f.Refresh(context.Background(), sess, h, be)
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestForgetDropsCache(t *testing.T) {
	f, mgr, be := refreshRig(t, true)
	stubHealthyReads(t, be, true)
	_, _, err := doRefresh(t, f, mgr)
	require.NoError(t, err)

	f.Forget()
	_, ok := f.Last()
	assert.False(t, ok)
}

func TestDefaultLimitOverride(t *testing.T) {
	cfg := testConfig(nil, false)
	cfg.DefaultDailyLimit = big.NewInt(123)
	f := NewFetcher(cfg, zap.NewNop())
	assert.Equal(t, int64(123), f.defaultLimit(18).Int64())
}
