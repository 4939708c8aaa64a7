package model

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" BID ")
	require.NoError(t, err)
	assert.Equal(t, SideBid, s)

	_, err = ParseSide("buy")
	assert.Error(t, err)
}

func TestSplitPair(t *testing.T) {
	base, quote, err := SplitPair("weth/dai")
	require.NoError(t, err)
	assert.Equal(t, "WETH", base)
	assert.Equal(t, "DAI", quote)

	for _, bad := range []string{"WETH", "WETH/", "/DAI", "A/B/C"} {
		_, _, err := SplitPair(bad)
		assert.Error(t, err, bad)
	}
}

func TestQuoteExpired(t *testing.T) {
	now := time.Now()
	q := Quote{Expiration: now.Add(time.Second)}
	assert.False(t, q.Expired(now))
	assert.True(t, q.Expired(now.Add(time.Second)))
}

func TestParseUint256(t *testing.T) {
	n, err := ParseUint256("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", n.String())

	_, err = ParseUint256("-1")
	assert.Error(t, err)
	_, err = ParseUint256("1.5")
	assert.Error(t, err)
	_, err = ParseUint256(new(big.Int).Lsh(big.NewInt(1), 256).String())
	assert.Error(t, err)
}

func TestValidTxID(t *testing.T) {
	assert.True(t, ValidTxID("0x"+common.Bytes2Hex(make([]byte, 32))))
	assert.False(t, ValidTxID("0x1234"))
	assert.False(t, ValidTxID(common.Bytes2Hex(make([]byte, 32))))
	assert.False(t, ValidTxID("0x"+common.Bytes2Hex(make([]byte, 31))+"zz"))
}

func TestNetworkContextLookups(t *testing.T) {
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	n := NetworkContext{
		Pairs:  []string{"WETH/DAI"},
		Assets: map[string]common.Address{"WETH": weth},
	}

	assert.True(t, n.SupportsPair("weth/dai"))
	assert.False(t, n.SupportsPair("DAI/WETH"))

	addr, ok := n.AssetAddress("weth")
	assert.True(t, ok)
	assert.Equal(t, weth, addr)

	ticker, ok := n.TickerFor(weth)
	assert.True(t, ok)
	assert.Equal(t, "WETH", ticker)
}

func TestBaseUnits(t *testing.T) {
	wei, err := ToBaseUnits(decimal.RequireFromString("1.5"), 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", wei.String())

	_, err = ToBaseUnits(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)

	back := FromBaseUnits(wei, 18)
	assert.True(t, back.Equal(decimal.RequireFromString("1.5")))
}
