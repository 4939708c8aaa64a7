package dealer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

// APIVersion is the dealer API this client speaks. Dealers on any other version are refused.
const APIVersion = "v1.0"

const apiVersionHeader = "X-Api-Version"

// Client talks to the dealer REST API at {base_url}/{version}/.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(cfg config.DealerConfig) (*Client, error) {
	if cfg.APIVersion != APIVersion {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleDealer,
			"dealer api version %q is not supported, client speaks %q", cfg.APIVersion, APIVersion)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.NewInvalidInput(fmt.Sprintf("invalid dealer base url %q", cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 16
	}

	return &Client{
		endpoint: base.String() + "/" + cfg.APIVersion + "/",
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        maxIdle,
				MaxIdleConnsPerHost: maxIdle,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *Client) Authorized(ctx context.Context, taker common.Address) (*AuthorizedResponse, error) {
	var out AuthorizedResponse
	q := url.Values{"address": {taker.Hex()}}
	if err := c.get(ctx, "authorized", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Quote(ctx context.Context, p QuoteParams) (*QuoteResponse, error) {
	q := url.Values{
		"size":   {p.Size.String()},
		"symbol": {p.Symbol},
		"side":   {string(p.Side)},
		"taker":  {p.Taker.Hex()},
	}
	var out QuoteResponse
	if err := c.get(ctx, "quote", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Swap(ctx context.Context, p SwapParams) (*QuoteResponse, error) {
	q := url.Values{
		"size":        {p.Size.String()},
		"dealerAsset": {p.DealerAsset},
		"clientAsset": {p.ClientAsset},
		"taker":       {p.Taker.Hex()},
	}
	var out QuoteResponse
	if err := c.get(ctx, "swap", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Markets(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.get(ctx, "markets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Assets(ctx context.Context) (map[string]common.Address, error) {
	var raw map[string]string
	if err := c.get(ctx, "assets", nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]common.Address, len(raw))
	for ticker, addr := range raw {
		if !common.IsHexAddress(addr) {
			return nil, apperrors.Newf(apperrors.ErrUpstream, "dealer returned invalid address %q for %s", addr, ticker)
		}
		out[strings.ToUpper(ticker)] = common.HexToAddress(addr)
	}
	return out, nil
}

// SubmitOrder posts a signed fill transaction. A 4xx answer is a business rejection of the
// quote; anything that prevents an answer is a transport failure the caller may retry.
func (c *Client) SubmitOrder(ctx context.Context, body model.OrderRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to marshal order", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"order", bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.ErrSubmissionFailed, "order submission failed", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.New(apperrors.ErrSubmissionFailed, "failed to read order response", err)
	}
	if err := checkVersion(resp); err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", apperrors.New(apperrors.ErrSettlementRejected,
			fmt.Sprintf("dealer rejected order: %s", errorText(resp, bodyBytes)), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", apperrors.New(apperrors.ErrSubmissionFailed,
			fmt.Sprintf("dealer returned HTTP %d: %s", resp.StatusCode, errorText(resp, bodyBytes)), nil)
	}

	var out OrderResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", apperrors.New(apperrors.ErrSubmissionFailed,
			fmt.Sprintf("failed to decode order response (body: %s)", snippet(bodyBytes)), err)
	}
	return out.TxID, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, fmt.Sprintf("dealer %s request failed", path), err)
	}
	defer resp.Body.Close()
	return decodeJSONResponse(resp, path, result)
}

// decodeJSONResponse reads the response body, checks version and HTTP status, and decodes JSON
func decodeJSONResponse(resp *http.Response, path string, result any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, "failed to read response body", err)
	}
	if err := checkVersion(resp); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Newf(apperrors.ErrUpstream, "dealer %s: HTTP %d: %s", path, resp.StatusCode, errorText(resp, bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, result); err != nil {
		return apperrors.New(apperrors.ErrUpstream,
			fmt.Sprintf("failed to decode dealer %s response (body: %s)", path, snippet(bodyBytes)), err)
	}
	return nil
}

func checkVersion(resp *http.Response) error {
	if v := resp.Header.Get(apiVersionHeader); v != "" && v != APIVersion {
		return apperrors.Newf(apperrors.ErrIncompatibleDealer, "dealer reports api version %q, client speaks %q", v, APIVersion)
	}
	return nil
}

func errorText(resp *http.Response, body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.text() != "" {
		return e.text()
	}
	if s := snippet(body); s != "" {
		return s
	}
	return resp.Status
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
