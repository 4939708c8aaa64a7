package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second

	statusClientClosedRequest = 499
)

type TradeRequest struct {
	QuoteID string `json:"quote_id" binding:"required"`
	// Wait holds the response until the settlement is mined.
	Wait bool `json:"wait"`
}

// StreamMessage is pushed to trade status subscribers.
type StreamMessage struct {
	TxID         string              `json:"txId"`
	State        string              `json:"state"`
	Confirmation *model.Confirmation `json:"confirmation,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type TradeHandler struct {
	trader   *service.Trader
	book     *service.QuoteBook
	upgrader websocket.Upgrader
}

func NewTradeHandler(trader *service.Trader, book *service.QuoteBook) *TradeHandler {
	return &TradeHandler{
		trader: trader,
		book:   book,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Access is gated by the gateway key, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Trade fills a quote previously issued by this gateway.
func (h *TradeHandler) Trade(c *gin.Context) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInput(err.Error()))
		return
	}

	quote, err := h.book.Get(req.QuoteID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.trader.Execute(c.Request.Context(), quote, req.Wait)
	if result != nil && result.Settlement != nil {
		h.book.Remove(quote.ID)
	}
	if err != nil {
		_ = c.Error(err)
		if result != nil && result.Settlement != nil {
			// The dealer already broadcast; the caller still needs the tx id.
			status, code := awaitFailure(err)
			c.JSON(status, gin.H{"code": code, "message": err.Error(), "result": result})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// awaitFailure maps an error raised while waiting on a submitted trade to a response status.
func awaitFailure(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "CONFIRMATION_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "CANCELLED"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, string(appErr.Type)
	}
	return http.StatusInternalServerError, string(apperrors.ErrInternal)
}

func (h *TradeHandler) Settlement(c *gin.Context) {
	rec, err := h.trader.Settlements.Record(c.Request.Context(), c.Param("quote_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Status blocks until the transaction is mined or the client goes away.
func (h *TradeHandler) Status(c *gin.Context) {
	conf, err := h.trader.Waiter.Await(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// Stream upgrades to a websocket, reports the transaction as pending and pushes the
// terminal status once it is mined. Closing the socket stops the polling.
func (h *TradeHandler) Stream(c *gin.Context) {
	txID := c.Param("tx_id")
	if !model.ValidTxID(txID) {
		_ = c.Error(apperrors.Newf(apperrors.ErrInvalidTransactionID, "malformed transaction id %q", txID))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "tx_id", txID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var mu sync.Mutex
	write := func(msg StreamMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(msg)
	}

	// The subscriber never sends anything meaningful; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
				mu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	if err := write(StreamMessage{TxID: txID, State: "pending"}); err != nil {
		return
	}

	conf, err := h.trader.Waiter.Await(ctx, txID)
	final := StreamMessage{TxID: txID}
	switch {
	case err == nil:
		final.State = "mined"
		final.Confirmation = conf
	case errors.Is(err, context.Canceled):
		return
	default:
		final.State = "failed"
		final.Error = err.Error()
	}
	if err := write(final); err != nil {
		logger.Warn("failed to push trade status", "tx_id", txID, "error", err)
		return
	}

	mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
	mu.Unlock()
}
