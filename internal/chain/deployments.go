package chain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

type deployment struct {
	exchangeV2 common.Address
	exchangeV3 common.Address
	erc20Proxy common.Address
}

// Known 0x deployments, keyed by chain id.
var deployments = map[int64]deployment{
	1: {
		exchangeV2: common.HexToAddress("0x080bf510fcbf18b91105470639e9561022937712"),
		exchangeV3: common.HexToAddress("0x61935cbdd02287b511119ddb11aeb42f1593b7ef"),
		erc20Proxy: common.HexToAddress("0x95e6f48254609a6ee006f7d493c8e5fb97094cef"),
	},
	42: {
		exchangeV2: common.HexToAddress("0x30589010550762d2f0d06f650d8e8b6ade6dbf4b"),
		exchangeV3: common.HexToAddress("0x4eacd0af335451709e1e7b570b8ea68edec8bc97"),
		erc20Proxy: common.HexToAddress("0xf1ec01d6236d3cd881a0bf0130ea25fe4234003e"),
	},
	// ganache snapshot used by the 0x contract migrations
	50: {
		exchangeV2: common.HexToAddress("0x48bacb9266a570d521063ef5dd96e61686dbe788"),
		exchangeV3: common.HexToAddress("0x48bacb9266a570d521063ef5dd96e61686dbe788"),
		erc20Proxy: common.HexToAddress("0x1dc4c1cefef38a777b15aa20260a54e584b16c48"),
	},
}

// LookupContracts returns the exchange and ERC20 proxy for chainID and protocol version.
func LookupContracts(chainID int64, protocolVersion int) (model.Contracts, bool) {
	d, ok := deployments[chainID]
	if !ok {
		return model.Contracts{}, false
	}
	exchange := d.exchangeV3
	if protocolVersion == 2 {
		exchange = d.exchangeV2
	}
	return model.Contracts{Exchange: exchange, ERC20Proxy: d.erc20Proxy}, true
}
