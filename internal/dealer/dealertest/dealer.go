// Package dealertest runs an in-process dealer that quotes fixed prices and verifies
// submitted fill transactions the way a real dealer would before broadcasting them.
package dealertest

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/chain/chaintest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/signer"
)

const Version = "v1.0"

var (
	WETH = common.HexToAddress("0x0b1ba0af832d7c05fd64161e0db78e85978e8082")
	DAI  = common.HexToAddress("0x34d402f14d58e001d8efbe6585051bf9706aa064")
	ZRX  = common.HexToAddress("0x871dd7c2b4b25e1aa18728e9d5f2af4c4e431f5c")
)

type issuedQuote struct {
	quote    *model.Quote
	consumed bool
}

// Dealer is a fake dealer bound to a fake chain.
type Dealer struct {
	Server *httptest.Server

	mu              sync.Mutex
	Pairs           []string
	Assets          map[string]common.Address
	ChainID         int64
	ProtocolVersion int
	Exchange        common.Address
	Backend         *chaintest.Backend
	Price           decimal.Decimal
	QuoteTTL        time.Duration
	Unauthorized    bool
	VersionHeader   string
	// FailSubmissions answers that many order posts with 503 before accepting.
	FailSubmissions int
	// PendingPolls delays each settlement receipt by that many lookups.
	PendingPolls int
	// RevertSettlements mines settlements as reverted.
	RevertSettlements bool
	// SubmitDelay holds each order post this long, or until the client gives up.
	SubmitDelay time.Duration

	Requests []string
	makerKey *ecdsa.PrivateKey
	quotes   map[string]*issuedQuote
}

// New starts a dealer on chain 50 serving WETH/DAI and ZRX/WETH.
func New(backend *chaintest.Backend, protocolVersion int) *Dealer {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	contracts, _ := chain.LookupContracts(50, protocolVersion)
	d := &Dealer{
		Pairs:           []string{"WETH/DAI", "ZRX/WETH"},
		Assets:          map[string]common.Address{"WETH": WETH, "DAI": DAI, "ZRX": ZRX},
		ChainID:         50,
		ProtocolVersion: protocolVersion,
		Exchange:        contracts.Exchange,
		Backend:         backend,
		Price:           decimal.NewFromInt(350),
		QuoteTTL:        time.Minute,
		makerKey:        key,
		quotes:          make(map[string]*issuedQuote),
	}

	mux := http.NewServeMux()
	prefix := "/api/" + Version + "/"
	mux.HandleFunc(prefix+"authorized", d.handleAuthorized)
	mux.HandleFunc(prefix+"quote", d.handleQuote)
	mux.HandleFunc(prefix+"swap", d.handleSwap)
	mux.HandleFunc(prefix+"order", d.handleOrder)
	mux.HandleFunc(prefix+"markets", d.handleMarkets)
	mux.HandleFunc(prefix+"assets", d.handleAssets)
	d.Server = httptest.NewServer(d.record(mux))
	return d
}

// BaseURL is the value for dealer.base_url.
func (d *Dealer) BaseURL() string {
	return d.Server.URL + "/api"
}

func (d *Dealer) Close() {
	d.Server.Close()
}

func (d *Dealer) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

func (d *Dealer) LastRequest() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Requests) == 0 {
		return ""
	}
	return d.Requests[len(d.Requests)-1]
}

// ExpireQuote moves a quote's expiry into the past on the dealer side.
func (d *Dealer) ExpireQuote(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.quotes[id]; ok {
		q.quote.Expiration = time.Now().Add(-time.Second)
	}
}

func (d *Dealer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.Requests = append(d.Requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		header := d.VersionHeader
		d.mu.Unlock()
		if header != "" {
			w.Header().Set("X-Api-Version", header)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (d *Dealer) handleAuthorized(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	denied := d.Unauthorized
	d.mu.Unlock()
	if denied {
		writeJSON(w, http.StatusOK, map[string]any{"authorized": false, "reason": "address is blacklisted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": true})
}

func (d *Dealer) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writeJSON(w, http.StatusOK, d.Pairs)
}

func (d *Dealer) handleAssets(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.Assets))
	for k, v := range d.Assets {
		out[k] = v.Hex()
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Dealer) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := decimal.NewFromString(q.Get("size"))
	if err != nil || !size.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid size")
		return
	}
	side, err := model.ParseSide(q.Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.issue(w, size, strings.ToUpper(q.Get("symbol")), side, common.HexToAddress(q.Get("taker")))
}

// handleSwap routes to the same pricing as handleQuote: the dealer asset is bought by the taker.
func (d *Dealer) handleSwap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := decimal.NewFromString(q.Get("size"))
	if err != nil || !size.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid size")
		return
	}
	dealerAsset := strings.ToUpper(q.Get("dealerAsset"))
	clientAsset := strings.ToUpper(q.Get("clientAsset"))
	pair, side := model.Pair(dealerAsset, clientAsset), model.SideBid
	if !d.supports(pair) {
		pair, side = model.Pair(clientAsset, dealerAsset), model.SideAsk
	}
	d.issue(w, size, pair, side, common.HexToAddress(q.Get("taker")))
}

func (d *Dealer) supports(pair string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.Pairs {
		if p == pair {
			return true
		}
	}
	return false
}

var wei = decimal.New(1, 18)

func (d *Dealer) issue(w http.ResponseWriter, size decimal.Decimal, pair string, side model.Side, taker common.Address) {
	if !d.supports(pair) {
		writeError(w, http.StatusBadRequest, "unsupported market "+pair)
		return
	}
	base, quote, _ := model.SplitPair(pair)

	d.mu.Lock()
	defer d.mu.Unlock()

	baseAmount := size.Mul(wei).Truncate(0).BigInt()
	quoteAmount := size.Mul(d.Price).Mul(wei).Truncate(0).BigInt()
	makerAsset, takerAsset := d.Assets[base], d.Assets[quote]
	makerAmount, takerAmount := baseAmount, quoteAmount
	if side == model.SideAsk {
		makerAsset, takerAsset = takerAsset, makerAsset
		makerAmount, takerAmount = quoteAmount, baseAmount
	}

	expiration := time.Now().Add(d.QuoteTTL).Truncate(time.Second)
	salt := new(big.Int).SetBytes(crypto.Keccak256([]byte(uuid.NewString())))
	makerSig, _ := crypto.Sign(crypto.Keccak256(salt.Bytes()), d.makerKey)

	order := model.MakerOrder{
		ChainID:               d.ChainID,
		ExchangeAddress:       d.Exchange,
		MakerAddress:          crypto.PubkeyToAddress(d.makerKey.PublicKey),
		TakerAddress:          d.Exchange,
		SenderAddress:         d.Exchange,
		MakerAssetAmount:      makerAmount.String(),
		TakerAssetAmount:      takerAmount.String(),
		MakerFee:              "0",
		TakerFee:              "0",
		ExpirationTimeSeconds: fmt.Sprint(expiration.Unix()),
		Salt:                  salt.String(),
		MakerAssetData:        chain.EncodeERC20AssetData(makerAsset),
		TakerAssetData:        chain.EncodeERC20AssetData(takerAsset),
		Signature:             append(append([]byte{makerSig[64] + 27}, makerSig[:64]...), byte(signer.SignatureEIP712)),
	}

	issued := &model.Quote{
		ID:         uuid.NewString(),
		Pair:       pair,
		Side:       side,
		Size:       size,
		Price:      d.Price,
		Fee:        decimal.Zero,
		Expiration: expiration,
		Order:      order,
	}
	d.quotes[issued.ID] = &issuedQuote{quote: issued}

	writeJSON(w, http.StatusOK, map[string]any{
		"quoteId":    issued.ID,
		"expiration": expiration.Unix(),
		"size":       size.String(),
		"price":      d.Price.String(),
		"fee":        "0",
		"pair":       pair,
		"side":       side,
		"order":      order,
	})
}

func (d *Dealer) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var body model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if d.SubmitDelay > 0 {
		select {
		case <-time.After(d.SubmitDelay):
		case <-r.Context().Done():
			return
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailSubmissions > 0 {
		d.FailSubmissions--
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}

	issued, ok := d.quotes[body.QuoteID]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown quote")
		return
	}
	if issued.consumed {
		writeError(w, http.StatusBadRequest, "quote already consumed")
		return
	}
	if !time.Now().Before(issued.quote.Expiration) {
		writeError(w, http.StatusBadRequest, "quote expired")
		return
	}

	expected, _, err := chain.EncodeFillOrKillOrder(d.ProtocolVersion, &issued.quote.Order)
	if err != nil || !strings.EqualFold(common.Bytes2Hex(expected), common.Bytes2Hex(body.Data)) {
		writeError(w, http.StatusBadRequest, "calldata does not fill the quoted order")
		return
	}

	salt, ok := new(big.Int).SetString(body.Salt, 10)
	if !ok || !common.IsHexAddress(body.Address) {
		writeError(w, http.StatusBadRequest, "malformed salt or address")
		return
	}
	gasPrice, _ := d.Backend.SuggestGasPrice(r.Context())
	tx := &model.FillTransaction{
		ProtocolVersion:       d.ProtocolVersion,
		ChainID:               big.NewInt(d.ChainID),
		VerifyingContract:     d.Exchange,
		Salt:                  salt,
		SignerAddress:         common.HexToAddress(body.Address),
		Data:                  body.Data,
		ExpirationTimeSeconds: big.NewInt(issued.quote.Expiration.Unix()),
		GasPrice:              gasPrice,
	}
	hash, err := signer.TransactionHash(tx)
	if err != nil || hash != body.Hash {
		writeError(w, http.StatusBadRequest, "transaction hash mismatch")
		return
	}
	if err := signer.VerifySignature(hash, body.Sig, tx.SignerAddress); err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	issued.consumed = true
	txID := crypto.Keccak256Hash(hash.Bytes(), []byte("settle"))
	status := types.ReceiptStatusSuccessful
	if d.RevertSettlements {
		status = types.ReceiptStatusFailed
	}
	d.Backend.Mine(txID, status, d.PendingPolls)
	writeJSON(w, http.StatusOK, map[string]string{"txId": txID.Hex()})
}
