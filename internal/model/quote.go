package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBid:
		return SideBid, nil
	case SideAsk:
		return SideAsk, nil
	default:
		return "", fmt.Errorf("unknown side %q, expected bid or ask", s)
	}
}

// Pair builds the "BASE/QUOTE" market symbol.
func Pair(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// SplitPair returns the base and quote tickers of a "BASE/QUOTE" symbol.
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pair %q", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// Quote is a dealer-issued, time-bounded price together with the signed maker order.
// It is never mutated after it is received.
type Quote struct {
	ID         string          `json:"quoteId"`
	Pair       string          `json:"pair"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	Expiration time.Time       `json:"expiration"`
	Order      MakerOrder      `json:"order"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.Expiration)
}

// MakerOrder is the dealer-signed 0x order carried by a Quote. Amounts are base-10 strings
// exactly as the dealer sent them.
type MakerOrder struct {
	ChainID               int64          `json:"chainId"`
	ExchangeAddress       common.Address `json:"exchangeAddress"`
	MakerAddress          common.Address `json:"makerAddress"`
	TakerAddress          common.Address `json:"takerAddress"`
	FeeRecipientAddress   common.Address `json:"feeRecipientAddress"`
	SenderAddress         common.Address `json:"senderAddress"`
	MakerAssetAmount      string         `json:"makerAssetAmount"`
	TakerAssetAmount      string         `json:"takerAssetAmount"`
	MakerFee              string         `json:"makerFee"`
	TakerFee              string         `json:"takerFee"`
	ExpirationTimeSeconds string         `json:"expirationTimeSeconds"`
	Salt                  string         `json:"salt"`
	MakerAssetData        hexutil.Bytes  `json:"makerAssetData"`
	TakerAssetData        hexutil.Bytes  `json:"takerAssetData"`
	MakerFeeAssetData     hexutil.Bytes  `json:"makerFeeAssetData,omitempty"`
	TakerFeeAssetData     hexutil.Bytes  `json:"takerFeeAssetData,omitempty"`
	Signature             hexutil.Bytes  `json:"signature"`
}

// Expiration returns the order's own expiry, which may be earlier than the quote's.
func (o *MakerOrder) Expiration() (time.Time, error) {
	secs, err := ParseUint256(o.ExpirationTimeSeconds)
	if err != nil {
		return time.Time{}, fmt.Errorf("expirationTimeSeconds: %w", err)
	}
	if !secs.IsInt64() {
		return time.Time{}, fmt.Errorf("expirationTimeSeconds out of range")
	}
	return time.Unix(secs.Int64(), 0), nil
}

// ParseUint256 parses a non-negative base-10 integer that fits in 256 bits.
func ParseUint256(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("%q is not a uint256", s)
	}
	return n, nil
}
