package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
)

// AllowanceManager reads and grants the ERC20 allowance the settlement contract spends
// from. Reads are never cached.
type AllowanceManager struct {
	session *Session
	waiter  *ConfirmationWaiter
}

func NewAllowanceManager(session *Session, waiter *ConfirmationWaiter) *AllowanceManager {
	return &AllowanceManager{session: session, waiter: waiter}
}

// HasAllowance reads the taker's allowance for asset (a ticker) on the asset proxy.
func (m *AllowanceManager) HasAllowance(ctx context.Context, asset string) (*model.AllowanceState, error) {
	nc, token, err := m.resolve(asset)
	if err != nil {
		return nil, err
	}
	return m.check(ctx, nc, asset, token)
}

func (m *AllowanceManager) check(ctx context.Context, nc *model.NetworkContext, asset string, token common.Address) (*model.AllowanceState, error) {
	spender := nc.Contracts.ERC20Proxy
	amount, err := chain.Allowance(ctx, m.session.backend, token, nc.Taker, spender)
	if err != nil {
		metrics.AllowanceOps.WithLabelValues("check", "error").Inc()
		return nil, apperrors.New(apperrors.ErrUpstream, "failed to read allowance for "+asset, err)
	}
	state := &model.AllowanceState{
		Asset:      asset,
		Token:      token.Hex(),
		Owner:      nc.Taker.Hex(),
		Spender:    spender.Hex(),
		Allowance:  amount,
		Sufficient: chain.SufficientAllowance(amount),
	}
	result := "insufficient"
	if state.Sufficient {
		result = "sufficient"
	}
	metrics.AllowanceOps.WithLabelValues("check", result).Inc()
	return state, nil
}

// SetAllowance approves the maximum allowance and waits for the approval to be mined.
// Calling it on an already sufficient allowance re-approves the same maximum.
func (m *AllowanceManager) SetAllowance(ctx context.Context, asset string) (*model.Confirmation, error) {
	nc, token, err := m.resolve(asset)
	if err != nil {
		return nil, err
	}
	return m.approve(ctx, nc, asset, token)
}

func (m *AllowanceManager) approve(ctx context.Context, nc *model.NetworkContext, asset string, token common.Address) (*model.Confirmation, error) {
	data, err := chain.PackApprove(nc.Contracts.ERC20Proxy, chain.MaxAllowance)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to encode approval", err)
	}

	start := time.Now()
	hash, err := m.session.provider.SendTransaction(ctx, token, data)
	if err != nil {
		metrics.AllowanceOps.WithLabelValues("approve", "error").Inc()
		return nil, apperrors.New(apperrors.ErrSigningFailed, "approval transaction for "+asset+" was not sent", err)
	}
	logger.Info("approval sent", "asset", asset, "token", token.Hex(), "tx_id", hash.Hex())

	conf, err := m.waiter.Await(ctx, hash.Hex())
	metrics.StageLatency.WithLabelValues("approve").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AllowanceOps.WithLabelValues("approve", "error").Inc()
		return nil, err
	}
	if conf.Status != model.TxSuccess {
		metrics.AllowanceOps.WithLabelValues("approve", "reverted").Inc()
		return conf, apperrors.Newf(apperrors.ErrAllowanceInsufficient, "approval %s for %s reverted", conf.TxID, asset)
	}
	metrics.AllowanceOps.WithLabelValues("approve", "ok").Inc()
	return conf, nil
}

func (m *AllowanceManager) resolve(asset string) (*model.NetworkContext, common.Address, error) {
	nc, err := m.session.Context()
	if err != nil {
		return nil, common.Address{}, err
	}
	token, ok := nc.AssetAddress(asset)
	if !ok {
		return nil, common.Address{}, apperrors.Newf(apperrors.ErrUnsupportedMarket, "asset %q is not served by the dealer", asset)
	}
	if nc.Contracts.ERC20Proxy == (common.Address{}) {
		return nil, common.Address{}, apperrors.Newf(apperrors.ErrUnsupportedNetwork, "no asset proxy known for chain %s", nc.ChainID)
	}
	return nc, token, nil
}
