package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/market"
	"github.com/cleancoindev/zaidan-dealer-client/internal/middleware"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

// RouterDeps are the long-lived components the gateway routes are served by.
type RouterDeps struct {
	Config    *config.Config
	Trader    *service.Trader
	Quotes    *service.QuoteBook
	Refresher *market.Refresher // optional
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", health(deps))
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	session := deps.Trader.Session()
	markets := NewMarketHandler(session)
	quotes := NewQuoteHandler(deps.Trader.Quotes, deps.Quotes)
	trades := NewTradeHandler(deps.Trader, deps.Quotes)
	allowances := NewAllowanceHandler(deps.Trader.Allowances)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Server.APIKey))
	v1.Use(middleware.RateLimitMiddleware(middleware.NewClientLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	{
		v1.GET("/network", markets.Network)
		v1.GET("/markets", markets.Markets)
		v1.GET("/assets", markets.Assets)

		v1.POST("/quotes", quotes.Quote)
		v1.POST("/quotes/swap", quotes.SwapQuote)

		v1.POST("/trades", trades.Trade)
		v1.GET("/trades/:tx_id", trades.Status)
		v1.GET("/trades/:tx_id/stream", trades.Stream)
		v1.GET("/settlements/:quote_id", trades.Settlement)

		v1.GET("/allowances/:asset", allowances.Get)
		v1.POST("/allowances/:asset", allowances.Set)
	}
	return r
}

func health(deps RouterDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "service": "zaidan-gateway"}
		nc, err := deps.Trader.Session().Context()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		body["chain_id"] = nc.ChainID.String()
		body["taker"] = nc.Taker.Hex()
		if deps.Refresher != nil {
			last, refreshErr := deps.Refresher.Status()
			if !last.IsZero() {
				body["last_refresh"] = last.UTC().Format(time.RFC3339)
			}
			if refreshErr != nil {
				body["status"] = "degraded"
				body["refresh_error"] = refreshErr.Error()
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
