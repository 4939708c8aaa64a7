package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
)

// QuoteRequester asks the dealer for firm quotes. Every call is exactly one round trip
// and failures are never retried: a retried quote would carry a stale price.
type QuoteRequester struct {
	session *Session
}

func NewQuoteRequester(session *Session) *QuoteRequester {
	return &QuoteRequester{session: session}
}

// RequestQuote quotes size units of the pair's base asset.
func (r *QuoteRequester) RequestQuote(ctx context.Context, size decimal.Decimal, pair string, side model.Side) (*model.Quote, error) {
	nc, err := r.session.Context()
	if err != nil {
		return nil, err
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}
	base, quote, err := model.SplitPair(pair)
	if err != nil {
		return nil, apperrors.NewInvalidInput(err.Error())
	}
	if side != model.SideBid && side != model.SideAsk {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "invalid side %q", side)
	}
	pair = model.Pair(base, quote)
	if !nc.SupportsPair(pair) {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedMarket, "pair %s is not served by the dealer", pair)
	}

	start := time.Now()
	resp, err := r.session.dealer.Quote(ctx, dealer.QuoteParams{
		Size:   size,
		Symbol: pair,
		Side:   side,
		Taker:  nc.Taker,
	})
	metrics.StageLatency.WithLabelValues("quote").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("direct", "error").Inc()
		return nil, err
	}
	return r.accept(resp, "direct", pair, side)
}

// RequestSwapQuote quotes buying size units of buyAsset with sellAsset. The request goes
// out under whichever ordering of the two tickers the dealer serves: BUY/SELL as a bid,
// or SELL/BUY as an ask.
func (r *QuoteRequester) RequestSwapQuote(ctx context.Context, size decimal.Decimal, sellAsset, buyAsset string) (*model.Quote, error) {
	nc, err := r.session.Context()
	if err != nil {
		return nil, err
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}
	sellAsset = strings.ToUpper(strings.TrimSpace(sellAsset))
	buyAsset = strings.ToUpper(strings.TrimSpace(buyAsset))
	if sellAsset == "" || buyAsset == "" || sellAsset == buyAsset {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "invalid swap %q -> %q", sellAsset, buyAsset)
	}

	pair, side, err := routeSwap(nc, sellAsset, buyAsset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.session.dealer.Swap(ctx, dealer.SwapParams{
		Size:        size,
		DealerAsset: buyAsset,
		ClientAsset: sellAsset,
		Taker:       nc.Taker,
	})
	metrics.StageLatency.WithLabelValues("quote").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("swap", "error").Inc()
		return nil, err
	}
	return r.accept(resp, "swap", pair, side)
}

func routeSwap(nc *model.NetworkContext, sellAsset, buyAsset string) (string, model.Side, error) {
	if pair := model.Pair(buyAsset, sellAsset); nc.SupportsPair(pair) {
		return pair, model.SideBid, nil
	}
	if pair := model.Pair(sellAsset, buyAsset); nc.SupportsPair(pair) {
		return pair, model.SideAsk, nil
	}
	return "", "", apperrors.Newf(apperrors.ErrUnsupportedMarket,
		"neither %s nor %s is served by the dealer", model.Pair(buyAsset, sellAsset), model.Pair(sellAsset, buyAsset))
}

// accept normalizes the dealer response and rejects quotes that are dead on arrival.
func (r *QuoteRequester) accept(resp *dealer.QuoteResponse, kind, pair string, side model.Side) (*model.Quote, error) {
	now := time.Now()
	q := resp.Quote(now)
	if q.ID == "" {
		metrics.QuotesTotal.WithLabelValues(kind, "error").Inc()
		return nil, apperrors.New(apperrors.ErrUpstream, "dealer quote has no id", nil)
	}
	q.Pair = pair
	q.Side = side
	if q.Expired(now) {
		metrics.QuotesTotal.WithLabelValues(kind, "expired").Inc()
		return nil, apperrors.Newf(apperrors.ErrQuoteExpired, "quote %s expired at %s on arrival", q.ID, q.Expiration.Format(time.RFC3339))
	}

	metrics.QuotesTotal.WithLabelValues(kind, "ok").Inc()
	logger.Info("quote received",
		"quote_id", q.ID,
		"pair", q.Pair,
		"side", q.Side,
		"size", q.Size.String(),
		"price", q.Price.String(),
		"expires_in", q.Expiration.Sub(now).Round(time.Second).String())
	return q, nil
}

func validateSize(size decimal.Decimal) error {
	if !size.IsPositive() {
		return apperrors.Newf(apperrors.ErrInvalidInput, "size must be positive, got %s", size.String())
	}
	return nil
}

// checkLive fails with QUOTE_EXPIRED once either the quote or the maker order it carries
// has expired. The order can lapse before the quote when the dealer signs it short.
func checkLive(quote *model.Quote, now time.Time) error {
	if quote.Expired(now) {
		return apperrors.Newf(apperrors.ErrQuoteExpired, "quote %s expired at %s", quote.ID, quote.Expiration.Format(time.RFC3339))
	}
	orderExp, err := quote.Order.Expiration()
	if err != nil {
		return apperrors.New(apperrors.ErrSigningFailed, "quote "+quote.ID+" carries a malformed order", err)
	}
	if !now.Before(orderExp) {
		return apperrors.Newf(apperrors.ErrQuoteExpired, "order of quote %s expired at %s", quote.ID, orderExp.UTC().Format(time.RFC3339))
	}
	return nil
}
