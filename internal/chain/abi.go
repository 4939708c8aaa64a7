package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// 0x v2 Exchange, fillOrKillOrder only.
const exchangeV2ABIJSON = `[
	{"constant":false,"inputs":[
		{"name":"order","type":"tuple","components":[
			{"name":"makerAddress","type":"address"},
			{"name":"takerAddress","type":"address"},
			{"name":"feeRecipientAddress","type":"address"},
			{"name":"senderAddress","type":"address"},
			{"name":"makerAssetAmount","type":"uint256"},
			{"name":"takerAssetAmount","type":"uint256"},
			{"name":"makerFee","type":"uint256"},
			{"name":"takerFee","type":"uint256"},
			{"name":"expirationTimeSeconds","type":"uint256"},
			{"name":"salt","type":"uint256"},
			{"name":"makerAssetData","type":"bytes"},
			{"name":"takerAssetData","type":"bytes"}
		]},
		{"name":"takerAssetFillAmount","type":"uint256"},
		{"name":"signature","type":"bytes"}
	],"name":"fillOrKillOrder","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// 0x v3 Exchange, fillOrKillOrder only.
const exchangeV3ABIJSON = `[
	{"constant":false,"inputs":[
		{"name":"order","type":"tuple","components":[
			{"name":"makerAddress","type":"address"},
			{"name":"takerAddress","type":"address"},
			{"name":"feeRecipientAddress","type":"address"},
			{"name":"senderAddress","type":"address"},
			{"name":"makerAssetAmount","type":"uint256"},
			{"name":"takerAssetAmount","type":"uint256"},
			{"name":"makerFee","type":"uint256"},
			{"name":"takerFee","type":"uint256"},
			{"name":"expirationTimeSeconds","type":"uint256"},
			{"name":"salt","type":"uint256"},
			{"name":"makerAssetData","type":"bytes"},
			{"name":"takerAssetData","type":"bytes"},
			{"name":"makerFeeAssetData","type":"bytes"},
			{"name":"takerFeeAssetData","type":"bytes"}
		]},
		{"name":"takerAssetFillAmount","type":"uint256"},
		{"name":"signature","type":"bytes"}
	],"name":"fillOrKillOrder","outputs":[],"stateMutability":"payable","type":"function"}
]`

const eip1271ABIJSON = `[{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	erc20ABI      = mustParseABI("ERC20", erc20ABIJSON)
	exchangeV2ABI = mustParseABI("exchange v2", exchangeV2ABIJSON)
	exchangeV3ABI = mustParseABI("exchange v3", exchangeV3ABIJSON)
	eip1271ABI    = mustParseABI("EIP-1271", eip1271ABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// ERC20ABI returns the parsed ERC20 subset used for allowances.
func ERC20ABI() abi.ABI {
	return erc20ABI
}
