package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

type MarketHandler struct {
	session *service.Session
}

func NewMarketHandler(session *service.Session) *MarketHandler {
	return &MarketHandler{session: session}
}

// Markets lists the dealer's pairs straight from the dealer.
func (h *MarketHandler) Markets(c *gin.Context) {
	markets, err := h.session.Markets(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets})
}

func (h *MarketHandler) Assets(c *gin.Context) {
	assets, err := h.session.Assets(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make(map[string]string, len(assets))
	for ticker, addr := range assets {
		out[ticker] = addr.Hex()
	}
	c.JSON(http.StatusOK, gin.H{"assets": out})
}

// Network returns the session snapshot trades are currently built against.
func (h *MarketHandler) Network(c *gin.Context) {
	nc, err := h.session.Context()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, nc)
}
