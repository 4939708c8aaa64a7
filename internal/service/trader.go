package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

type TraderOptions struct {
	Store        SettlementStore
	Verifier     *chain.EIP1271Verifier
	PollInterval time.Duration
	// AutoApprove grants a missing allowance instead of failing the trade.
	AutoApprove bool
}

// Trader runs the trade pipeline over one session: allowance gate, sign, submit and
// optionally wait for the settlement to be mined. Stages run strictly in order and the
// first failure ends the trade.
type Trader struct {
	Quotes      *QuoteRequester
	Allowances  *AllowanceManager
	Fills       *FillBuilder
	Settlements *SettlementSubmitter
	Waiter      *ConfirmationWaiter

	session     *Session
	autoApprove bool
}

func NewTrader(session *Session, opts TraderOptions) *Trader {
	waiter := NewConfirmationWaiter(session.backend, opts.PollInterval)
	return &Trader{
		Quotes:      NewQuoteRequester(session),
		Allowances:  NewAllowanceManager(session, waiter),
		Fills:       NewFillBuilder(session, opts.Verifier),
		Settlements: NewSettlementSubmitter(session, opts.Store),
		Waiter:      waiter,
		session:     session,
		autoApprove: opts.AutoApprove,
	}
}

func (t *Trader) Session() *Session {
	return t.session
}

type TradeResult struct {
	Quote        *model.Quote            `json:"quote"`
	Hash         common.Hash             `json:"hash"`
	Settlement   *model.SettlementRecord `json:"settlement"`
	Approval     *model.Confirmation     `json:"approval,omitempty"`
	Confirmation *model.Confirmation     `json:"confirmation,omitempty"`
}

// Execute trades quote. With wait, it also blocks until the settlement transaction is
// mined; a reverted settlement is reported in the result, not as an error.
func (t *Trader) Execute(ctx context.Context, quote *model.Quote, wait bool) (*TradeResult, error) {
	if quote == nil {
		return nil, apperrors.NewInvalidInput("quote is required")
	}
	if err := checkLive(quote, time.Now()); err != nil {
		return nil, err
	}
	log := logger.With("quote_id", quote.ID, "pair", quote.Pair)
	result := &TradeResult{Quote: quote}

	approval, err := t.ensureAllowance(ctx, quote)
	if err != nil {
		return nil, err
	}
	result.Approval = approval

	signed, err := t.Fills.BuildAndSign(ctx, quote)
	if err != nil {
		log.Warn("trade aborted at signing", "error", err)
		return nil, err
	}
	result.Hash = signed.Hash

	rec, err := t.Settlements.Submit(ctx, quote, signed)
	if err != nil {
		log.Warn("trade aborted at submission", "error", err)
		return nil, err
	}
	result.Settlement = rec

	if !wait {
		return result, nil
	}
	conf, err := t.Waiter.Await(ctx, rec.TxID)
	if err != nil {
		return result, err
	}
	result.Confirmation = conf
	if conf.Status == model.TxReverted {
		log.Warn("settlement reverted", "tx_id", conf.TxID)
	}
	return result, nil
}

// ensureAllowance checks the asset the taker pays with. It approves only when the trader
// is configured to.
func (t *Trader) ensureAllowance(ctx context.Context, quote *model.Quote) (*model.Confirmation, error) {
	nc, err := t.session.Context()
	if err != nil {
		return nil, err
	}
	token, err := chain.DecodeERC20AssetData(quote.Order.TakerAssetData)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUnsupportedMarket, "taker asset data is not an ERC20 asset", err)
	}
	ticker, ok := nc.TickerFor(token)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedMarket, "taker asset %s is not served by the dealer", token.Hex())
	}
	if nc.Contracts.ERC20Proxy == (common.Address{}) {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedNetwork, "no asset proxy known for chain %s", nc.ChainID)
	}

	state, err := t.Allowances.check(ctx, nc, ticker, token)
	if err != nil {
		return nil, err
	}
	if state.Sufficient {
		return nil, nil
	}
	if !t.autoApprove {
		return nil, apperrors.Newf(apperrors.ErrAllowanceInsufficient, "allowance for %s is not set on %s", ticker, state.Spender)
	}
	logger.Info("approving allowance before trade", "quote_id", quote.ID, "asset", ticker)
	return t.Allowances.approve(ctx, nc, ticker, token)
}
