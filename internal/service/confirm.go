package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
)

const defaultPollInterval = 2 * time.Second

// ConfirmationWaiter polls the node until a transaction is mined. It applies no timeout
// of its own; bound the wait through ctx.
type ConfirmationWaiter struct {
	backend  chain.Backend
	interval time.Duration
}

func NewConfirmationWaiter(backend chain.Backend, interval time.Duration) *ConfirmationWaiter {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &ConfirmationWaiter{backend: backend, interval: interval}
}

// Await blocks until txID has a receipt. A reverted transaction is a normal result, not
// an error. It returns ctx.Err() when ctx ends first.
func (w *ConfirmationWaiter) Await(ctx context.Context, txID string) (*model.Confirmation, error) {
	if !model.ValidTxID(txID) {
		return nil, apperrors.Newf(apperrors.ErrInvalidTransactionID, "malformed transaction id %q", txID)
	}
	if w == nil || w.backend == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "confirmation waiter has no chain backend", nil)
	}
	hash := common.HexToHash(txID)
	limiter := rate.NewLimiter(rate.Every(w.interval), 1)
	start := time.Now()

	for polls := 1; ; polls++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Wait also fails when the next token lies past ctx's deadline.
			<-ctx.Done()
			return nil, ctx.Err()
		}

		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			c := confirmationFrom(txID, receipt)
			metrics.ConfirmationsTotal.WithLabelValues(string(c.Status)).Inc()
			metrics.StageLatency.WithLabelValues("confirm").Observe(time.Since(start).Seconds())
			logger.Info("transaction confirmed",
				"tx_id", txID,
				"status", c.Status,
				"block", c.BlockNumber,
				"polls", polls)
			return c, nil
		case err == nil, errors.Is(err, ethereum.NotFound):
			// pending
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("receipt lookup failed, retrying", "tx_id", txID, "error", err)
		}
	}
}

func confirmationFrom(txID string, r *types.Receipt) *model.Confirmation {
	c := &model.Confirmation{
		TxID:    txID,
		Status:  model.TxReverted,
		GasUsed: r.GasUsed,
	}
	if r.Status == types.ReceiptStatusSuccessful {
		c.Status = model.TxSuccess
	}
	if r.BlockNumber != nil {
		c.BlockNumber = r.BlockNumber.Uint64()
	}
	return c
}
