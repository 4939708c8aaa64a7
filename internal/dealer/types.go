package dealer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

type AuthorizedResponse struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
}

type QuoteParams struct {
	Size   decimal.Decimal
	Symbol string
	Side   model.Side
	Taker  common.Address
}

type SwapParams struct {
	Size        decimal.Decimal
	DealerAsset string
	ClientAsset string
	Taker       common.Address
}

// QuoteResponse is the dealer's quote payload. Expiration is unix seconds.
type QuoteResponse struct {
	QuoteID    string           `json:"quoteId"`
	Expiration int64            `json:"expiration"`
	Size       decimal.Decimal  `json:"size"`
	Price      decimal.Decimal  `json:"price"`
	Fee        decimal.Decimal  `json:"fee"`
	Pair       string           `json:"pair,omitempty"`
	Side       model.Side       `json:"side,omitempty"`
	Order      model.MakerOrder `json:"order"`
}

// Quote converts the wire payload into a Quote stamped with receivedAt.
func (r *QuoteResponse) Quote(receivedAt time.Time) *model.Quote {
	return &model.Quote{
		ID:         r.QuoteID,
		Pair:       r.Pair,
		Side:       r.Side,
		Size:       r.Size,
		Price:      r.Price,
		Fee:        r.Fee,
		Expiration: time.Unix(r.Expiration, 0),
		Order:      r.Order,
		ReceivedAt: receivedAt,
	}
}

type OrderResponse struct {
	TxID string `json:"txId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorResponse) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}
