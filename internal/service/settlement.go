package service

import (
	"context"
	"time"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
)

// journalTimeout bounds journal writes made after the dealer has answered.
const journalTimeout = 5 * time.Second

// journalContext detaches from the caller's cancellation: once the dealer has been
// called, the claim must be released or recorded even if the request went away.
func journalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
}

// SettlementSubmitter hands signed fill transactions to the dealer, which broadcasts them.
// The journal guarantees at most one accepted submission per quote.
type SettlementSubmitter struct {
	session *Session
	store   SettlementStore
}

func NewSettlementSubmitter(session *Session, store SettlementStore) *SettlementSubmitter {
	if store == nil {
		store = NewMemorySettlementStore(0)
	}
	return &SettlementSubmitter{session: session, store: store}
}

// Submit posts signed for quote and records the transaction id the dealer reports.
//
// A SUBMISSION_FAILED error releases the claim: the same signed payload may be submitted
// again while the quote is live. SETTLEMENT_REJECTED is final for the quote.
func (s *SettlementSubmitter) Submit(ctx context.Context, quote *model.Quote, signed *model.SignedFillTransaction) (*model.SettlementRecord, error) {
	if _, err := s.session.Context(); err != nil {
		return nil, err
	}
	if quote == nil || signed == nil {
		return nil, apperrors.NewInvalidInput("quote and signed transaction are required")
	}
	if err := checkLive(quote, time.Now()); err != nil {
		return nil, err
	}

	taker := signed.SignerAddress.Hex()
	if err := s.store.Acquire(ctx, quote.ID, taker); err != nil {
		return nil, err
	}

	start := time.Now()
	txID, err := s.session.dealer.SubmitOrder(ctx, model.NewOrderRequest(signed, quote.ID))
	metrics.StageLatency.WithLabelValues("submit").Observe(time.Since(start).Seconds())

	rec := &model.SettlementRecord{
		QuoteID:     quote.ID,
		Taker:       taker,
		SubmittedAt: start,
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSettlementRejected) {
			metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
			rec.State = model.SettlementRejected
			rec.Reason = err.Error()
			s.save(ctx, rec)
			return nil, err
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		jctx, cancel := journalContext(ctx)
		relErr := s.store.Release(jctx, quote.ID)
		cancel()
		if relErr != nil {
			logger.Warn("failed to release settlement claim", "quote_id", quote.ID, "error", relErr)
		}
		return nil, err
	}

	if !model.ValidTxID(txID) {
		metrics.SettlementsTotal.WithLabelValues("invalid_tx_id").Inc()
		rec.State = model.SettlementRejected
		rec.Reason = "dealer returned malformed transaction id " + txID
		s.save(ctx, rec)
		return nil, apperrors.Newf(apperrors.ErrInvalidTransactionID, "dealer returned malformed transaction id %q for quote %s", txID, quote.ID)
	}

	rec.TxID = txID
	rec.State = model.SettlementSettled
	jctx, cancel := journalContext(ctx)
	defer cancel()
	if err := s.store.Save(jctx, rec); err != nil {
		// Already broadcast by the dealer, so the tx id is still returned.
		logger.Error("failed to journal settlement", "quote_id", quote.ID, "tx_id", txID, "error", err)
	}
	metrics.SettlementsTotal.WithLabelValues("submitted").Inc()
	logger.Info("settlement submitted", "quote_id", quote.ID, "pair", quote.Pair, "tx_id", txID)
	return rec, nil
}

// Record returns the journal entry for quoteID.
func (s *SettlementSubmitter) Record(ctx context.Context, quoteID string) (*model.SettlementRecord, error) {
	return s.store.Get(ctx, quoteID)
}

func (s *SettlementSubmitter) save(ctx context.Context, rec *model.SettlementRecord) {
	ctx, cancel := journalContext(ctx)
	defer cancel()
	if err := s.store.Save(ctx, rec); err != nil {
		logger.Error("failed to journal settlement", "quote_id", rec.QuoteID, "state", rec.State, "error", err)
	}
}
