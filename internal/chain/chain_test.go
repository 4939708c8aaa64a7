package chain_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/chain/chaintest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

var (
	weth  = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	dai   = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	taker = common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")
	proxy = common.HexToAddress("0x1dc4c1cefef38a777b15aa20260a54e584b16c48")
)

func TestERC20AssetData(t *testing.T) {
	data := chain.EncodeERC20AssetData(weth)
	assert.Equal(t, "0xf47261b0000000000000000000000000c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", "0x"+common.Bytes2Hex(data))

	addr, err := chain.DecodeERC20AssetData(data)
	require.NoError(t, err)
	assert.Equal(t, weth, addr)

	_, err = chain.DecodeERC20AssetData(data[:20])
	assert.Error(t, err)

	bad := append([]byte{0x02, 0x57, 0x17, 0x92}, data[4:]...)
	_, err = chain.DecodeERC20AssetData(bad)
	assert.Error(t, err)
}

func TestLookupContracts(t *testing.T) {
	v2, ok := chain.LookupContracts(1, 2)
	require.True(t, ok)
	v3, ok := chain.LookupContracts(1, 3)
	require.True(t, ok)
	assert.NotEqual(t, v2.Exchange, v3.Exchange)
	assert.Equal(t, v2.ERC20Proxy, v3.ERC20Proxy)

	_, ok = chain.LookupContracts(137, 3)
	assert.False(t, ok)
}

func TestSufficientAllowance(t *testing.T) {
	assert.False(t, chain.SufficientAllowance(nil))
	assert.False(t, chain.SufficientAllowance(big.NewInt(0)))
	assert.False(t, chain.SufficientAllowance(new(big.Int).Set(chain.AllowanceThreshold)))
	assert.True(t, chain.SufficientAllowance(new(big.Int).Add(chain.AllowanceThreshold, big.NewInt(1))))

	spent := new(big.Int).Sub(math.MaxBig256, big.NewInt(1_000_000))
	assert.True(t, chain.SufficientAllowance(spent))
}

func TestAllowanceRead(t *testing.T) {
	backend := chaintest.New(50)
	ctx := context.Background()

	a, err := chain.Allowance(ctx, backend, weth, taker, proxy)
	require.NoError(t, err)
	assert.Zero(t, a.Sign())

	backend.SetAllowance(weth, taker, proxy, chain.MaxAllowance)
	a, err = chain.Allowance(ctx, backend, weth, taker, proxy)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Cmp(chain.MaxAllowance))

	backend.CallErr = errors.New("node down")
	_, err = chain.Allowance(ctx, backend, weth, taker, proxy)
	assert.Error(t, err)
}

func testOrder() *model.MakerOrder {
	return &model.MakerOrder{
		ChainID:               50,
		MakerAddress:          common.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb"),
		MakerAssetAmount:      "2000000000000000000",
		TakerAssetAmount:      "700000000000000000000",
		ExpirationTimeSeconds: "1900000000",
		Salt:                  "12345",
		MakerAssetData:        chain.EncodeERC20AssetData(weth),
		TakerAssetData:        chain.EncodeERC20AssetData(dai),
		Signature:             common.FromHex("0x1b" + "11" + "22"),
	}
}

func TestEncodeFillOrKillOrder(t *testing.T) {
	for _, version := range []int{2, 3} {
		data, amount, err := chain.EncodeFillOrKillOrder(version, testOrder())
		require.NoError(t, err)
		assert.Equal(t, "700000000000000000000", amount.String())

		decoded, err := chain.DecodeFillOrKillOrderTaker(version, data)
		require.NoError(t, err)
		assert.Equal(t, 0, decoded.Cmp(amount), "version %d", version)
	}

	v2, _, _ := chain.EncodeFillOrKillOrder(2, testOrder())
	v3, _, _ := chain.EncodeFillOrKillOrder(3, testOrder())
	assert.NotEqual(t, v2[:4], v3[:4])
}

func TestEncodeFillOrKillOrderRejectsBadAmounts(t *testing.T) {
	o := testOrder()
	o.TakerAssetAmount = "0"
	_, _, err := chain.EncodeFillOrKillOrder(3, o)
	assert.Error(t, err)

	o = testOrder()
	o.TakerAssetAmount = "abc"
	_, _, err = chain.EncodeFillOrKillOrder(3, o)
	assert.Error(t, err)

	_, _, err = chain.EncodeFillOrKillOrder(4, testOrder())
	assert.Error(t, err)
}

func TestEIP1271Verifier(t *testing.T) {
	backend := chaintest.New(50)
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend.SetCode(wallet, []byte{0x60, 0x80})

	v := chain.NewEIP1271Verifier(backend, time.Minute, time.Second, 0)
	hash := common.HexToHash("0x01")
	ctx := context.Background()

	ok, err := v.Verify(ctx, wallet, hash, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(ctx, wallet, hash, []byte{0x00, 0x02})
	require.NoError(t, err)
	assert.False(t, ok)

	// cached result survives a node outage
	backend.CallErr = errors.New("node down")
	ok, err = v.Verify(ctx, wallet, hash, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = v.Verify(ctx, wallet, common.HexToHash("0x02"), []byte{0x01})
	assert.Error(t, err)
}

func TestIsContract(t *testing.T) {
	backend := chaintest.New(50)
	backend.SetCode(weth, []byte{0x01})

	ok, err := chain.IsContract(context.Background(), backend, weth)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = chain.IsContract(context.Background(), backend, taker)
	require.NoError(t, err)
	assert.False(t, ok)
}
