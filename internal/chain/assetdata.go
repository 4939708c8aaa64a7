package chain

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ERC20AssetProxyID is bytes4(keccak256("ERC20Token(address)")).
var ERC20AssetProxyID = []byte{0xf4, 0x72, 0x61, 0xb0}

// EncodeERC20AssetData returns the 36-byte asset data identifying token.
func EncodeERC20AssetData(token common.Address) []byte {
	out := make([]byte, 4+32)
	copy(out, ERC20AssetProxyID)
	copy(out[4+12:], token.Bytes())
	return out
}

// DecodeERC20AssetData extracts the token address from ERC20 asset data.
func DecodeERC20AssetData(data []byte) (common.Address, error) {
	if len(data) != 36 {
		return common.Address{}, fmt.Errorf("asset data %s: want 36 bytes, got %d", hexutil.Encode(data), len(data))
	}
	if !bytes.Equal(data[:4], ERC20AssetProxyID) {
		return common.Address{}, fmt.Errorf("asset data %s: not an ERC20 asset", hexutil.Encode(data))
	}
	if !bytes.Equal(data[4:16], make([]byte, 12)) {
		return common.Address{}, fmt.Errorf("asset data %s: malformed address word", hexutil.Encode(data))
	}
	return common.BytesToAddress(data[16:]), nil
}
