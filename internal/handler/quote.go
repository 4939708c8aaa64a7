package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

type QuoteRequest struct {
	Size decimal.Decimal `json:"size"`
	Pair string          `json:"pair" binding:"required"`
	Side string          `json:"side" binding:"required"`
}

type SwapQuoteRequest struct {
	Size      decimal.Decimal `json:"size"`
	SellAsset string          `json:"sell_asset" binding:"required"`
	BuyAsset  string          `json:"buy_asset" binding:"required"`
}

type QuoteHandler struct {
	quotes *service.QuoteRequester
	book   *service.QuoteBook
}

func NewQuoteHandler(quotes *service.QuoteRequester, book *service.QuoteBook) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, book: book}
}

func (h *QuoteHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInput(err.Error()))
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		_ = c.Error(apperrors.NewInvalidInput(err.Error()))
		return
	}

	q, err := h.quotes.RequestQuote(c.Request.Context(), req.Size, req.Pair, side)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.book.Put(q)
	c.JSON(http.StatusOK, q)
}

func (h *QuoteHandler) SwapQuote(c *gin.Context) {
	var req SwapQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInput(err.Error()))
		return
	}

	q, err := h.quotes.RequestSwapQuote(c.Request.Context(), req.Size, req.SellAsset, req.BuyAsset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.book.Put(q)
	c.JSON(http.StatusOK, q)
}
