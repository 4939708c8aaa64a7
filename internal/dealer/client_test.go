package dealer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain/chaintest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer"
	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer/dealertest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

var taker = common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")

func newClient(t *testing.T, baseURL string) *dealer.Client {
	t.Helper()
	c, err := dealer.NewClient(config.DealerConfig{
		BaseURL:    baseURL,
		APIVersion: dealer.APIVersion,
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsOtherVersions(t *testing.T) {
	_, err := dealer.NewClient(config.DealerConfig{BaseURL: "http://localhost", APIVersion: "v1.1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleDealer))

	_, err = dealer.NewClient(config.DealerConfig{BaseURL: "not a url", APIVersion: dealer.APIVersion})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}

func TestClientListCalls(t *testing.T) {
	d := dealertest.New(chaintest.New(50), 3)
	defer d.Close()
	c := newClient(t, d.BaseURL())
	ctx := context.Background()

	auth, err := c.Authorized(ctx, taker)
	require.NoError(t, err)
	assert.True(t, auth.Authorized)
	assert.Contains(t, d.LastRequest(), "GET /api/v1.0/authorized?address="+taker.Hex())

	markets, err := c.Markets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"WETH/DAI", "ZRX/WETH"}, markets)

	assets, err := c.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, dealertest.WETH, assets["WETH"])
}

func TestClientQuote(t *testing.T) {
	d := dealertest.New(chaintest.New(50), 3)
	defer d.Close()
	c := newClient(t, d.BaseURL())

	resp, err := c.Quote(context.Background(), dealer.QuoteParams{
		Size:   decimal.NewFromInt(2),
		Symbol: "WETH/DAI",
		Side:   model.SideBid,
		Taker:  taker,
	})
	require.NoError(t, err)

	q := resp.Quote(time.Now())
	assert.NotEmpty(t, q.ID)
	assert.True(t, q.Size.Equal(decimal.NewFromInt(2)))
	assert.True(t, q.Expiration.After(time.Now()))
	assert.Equal(t, "2000000000000000000", q.Order.MakerAssetAmount)

	req := d.LastRequest()
	assert.True(t, strings.HasPrefix(req, "GET /api/v1.0/quote?"))
	assert.Contains(t, req, "symbol=WETH%2FDAI")
	assert.Contains(t, req, "side=bid")
}

func TestClientSwapQuery(t *testing.T) {
	d := dealertest.New(chaintest.New(50), 3)
	defer d.Close()
	c := newClient(t, d.BaseURL())

	_, err := c.Swap(context.Background(), dealer.SwapParams{
		Size:        decimal.NewFromInt(100),
		DealerAsset: "WETH",
		ClientAsset: "DAI",
		Taker:       taker,
	})
	require.NoError(t, err)
	assert.Contains(t, d.LastRequest(), "dealerAsset=WETH")
	assert.Contains(t, d.LastRequest(), "clientAsset=DAI")
}

func TestClientQuoteErrorsAreUpstream(t *testing.T) {
	d := dealertest.New(chaintest.New(50), 3)
	defer d.Close()
	c := newClient(t, d.BaseURL())

	_, err := c.Quote(context.Background(), dealer.QuoteParams{
		Size: decimal.NewFromInt(1), Symbol: "FOO/BAR", Side: model.SideBid, Taker: taker,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))
	assert.Contains(t, err.Error(), "unsupported market")
	// no retry
	assert.Equal(t, 1, d.RequestCount())
}

func TestClientVersionHeaderMismatch(t *testing.T) {
	d := dealertest.New(chaintest.New(50), 3)
	defer d.Close()
	d.VersionHeader = "v2.0"
	c := newClient(t, d.BaseURL())

	_, err := c.Markets(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleDealer))
}

func TestSubmitOrderClassification(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/order", r.URL.Path)
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"txId":"0x` + strings.Repeat("ab", 32) + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"quote already consumed"}`))
	}))
	defer srv.Close()
	c := newClient(t, srv.URL+"/api")
	ctx := context.Background()

	status = http.StatusOK
	txID, err := c.SubmitOrder(ctx, model.OrderRequest{QuoteID: "q"})
	require.NoError(t, err)
	assert.True(t, model.ValidTxID(txID))

	status = http.StatusBadRequest
	_, err = c.SubmitOrder(ctx, model.OrderRequest{QuoteID: "q"})
	assert.True(t, apperrors.Is(err, apperrors.ErrSettlementRejected))
	assert.Contains(t, err.Error(), "quote already consumed")

	status = http.StatusBadGateway
	_, err = c.SubmitOrder(ctx, model.OrderRequest{QuoteID: "q"})
	assert.True(t, apperrors.Is(err, apperrors.ErrSubmissionFailed))
}

func TestSubmitOrderTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newClient(t, url+"/api")
	_, err := c.SubmitOrder(context.Background(), model.OrderRequest{QuoteID: "q"})
	assert.True(t, apperrors.Is(err, apperrors.ErrSubmissionFailed))
}
