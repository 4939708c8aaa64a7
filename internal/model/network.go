package model

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ProviderKind string

const (
	ProviderWallet ProviderKind = "wallet"
	ProviderNode   ProviderKind = "node"
)

type Contracts struct {
	Exchange   common.Address `json:"exchange"`
	ERC20Proxy common.Address `json:"erc20Proxy"`
}

// NetworkContext is an immutable snapshot of everything a trade needs to know about the
// session. Refreshing the session publishes a new value instead of editing this one.
type NetworkContext struct {
	ChainID         *big.Int                  `json:"chainId"`
	Taker           common.Address            `json:"taker"`
	Provider        ProviderKind              `json:"provider"`
	GasPrice        *big.Int                  `json:"gasPrice"`
	ProtocolVersion int                       `json:"protocolVersion"`
	Contracts       Contracts                 `json:"contracts"`
	Pairs           []string                  `json:"pairs"`
	Assets          map[string]common.Address `json:"assets"`
	APIVersion      string                    `json:"apiVersion"`
	CreatedAt       time.Time                 `json:"createdAt"`
}

func (n *NetworkContext) SupportsPair(pair string) bool {
	pair = strings.ToUpper(pair)
	for _, p := range n.Pairs {
		if strings.ToUpper(p) == pair {
			return true
		}
	}
	return false
}

func (n *NetworkContext) AssetAddress(ticker string) (common.Address, bool) {
	addr, ok := n.Assets[strings.ToUpper(ticker)]
	return addr, ok
}

// TickerFor is the reverse lookup of AssetAddress.
func (n *NetworkContext) TickerFor(addr common.Address) (string, bool) {
	for ticker, a := range n.Assets {
		if a == addr {
			return ticker, true
		}
	}
	return "", false
}

// AllowanceState is the outcome of a single allowance read. It is never cached.
type AllowanceState struct {
	Asset      string   `json:"asset"`
	Token      string   `json:"token"`
	Owner      string   `json:"owner"`
	Spender    string   `json:"spender"`
	Allowance  *big.Int `json:"allowance"`
	Sufficient bool     `json:"sufficient"`
}
