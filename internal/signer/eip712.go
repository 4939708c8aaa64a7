package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

const (
	EIP712DomainName = "0x Protocol"
	DomainVersionV2  = "2"
	DomainVersionV3  = "3.0.0"
)

var (
	// v2 domains carry no chainId
	DomainTypeHashV2 = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,address verifyingContract)"))
	DomainTypeHashV3 = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	TransactionTypeHashV2 = crypto.Keccak256Hash([]byte("ZeroExTransaction(uint256 salt,address signerAddress,bytes data)"))
	TransactionTypeHashV3 = crypto.Keccak256Hash([]byte("ZeroExTransaction(uint256 salt,uint256 expirationTimeSeconds,uint256 gasPrice,address signerAddress,bytes data)"))
)

// DomainSeparator computes hashStruct(EIP712Domain) for the exchange at verifyingContract.
func DomainSeparator(protocolVersion int, chainID *big.Int, verifyingContract common.Address) (common.Hash, error) {
	nameHash := crypto.Keccak256Hash([]byte(EIP712DomainName))

	switch protocolVersion {
	case 2:
		data := make([]byte, 32*4)
		copy(data[0:32], DomainTypeHashV2.Bytes())
		copy(data[32:64], nameHash.Bytes())
		copy(data[64:96], crypto.Keccak256([]byte(DomainVersionV2)))
		copy(data[96+12:128], verifyingContract.Bytes())
		return crypto.Keccak256Hash(data), nil
	case 3:
		if chainID == nil {
			return common.Hash{}, fmt.Errorf("chain id is required for protocol v3")
		}
		data := make([]byte, 32*5)
		copy(data[0:32], DomainTypeHashV3.Bytes())
		copy(data[32:64], nameHash.Bytes())
		copy(data[64:96], crypto.Keccak256([]byte(DomainVersionV3)))
		copy(data[96:128], math.U256Bytes(new(big.Int).Set(chainID)))
		copy(data[128+12:160], verifyingContract.Bytes())
		return crypto.Keccak256Hash(data), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported protocol version %d", protocolVersion)
	}
}

// TransactionHash is the canonical "execute transaction" hash of tx:
// keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(ZeroExTransaction)).
func TransactionHash(tx *model.FillTransaction) (common.Hash, error) {
	if tx.Salt == nil {
		return common.Hash{}, fmt.Errorf("salt is required")
	}
	domain, err := DomainSeparator(tx.ProtocolVersion, tx.ChainID, tx.VerifyingContract)
	if err != nil {
		return common.Hash{}, err
	}

	var structHash []byte
	switch tx.ProtocolVersion {
	case 2:
		data := make([]byte, 32*4)
		copy(data[0:32], TransactionTypeHashV2.Bytes())
		copy(data[32:64], math.U256Bytes(new(big.Int).Set(tx.Salt)))
		copy(data[64+12:96], tx.SignerAddress.Bytes())
		copy(data[96:128], crypto.Keccak256(tx.Data))
		structHash = crypto.Keccak256(data)
	case 3:
		if tx.ExpirationTimeSeconds == nil || tx.GasPrice == nil {
			return common.Hash{}, fmt.Errorf("expiration and gas price are required for protocol v3")
		}
		data := make([]byte, 32*6)
		copy(data[0:32], TransactionTypeHashV3.Bytes())
		copy(data[32:64], math.U256Bytes(new(big.Int).Set(tx.Salt)))
		copy(data[64:96], math.U256Bytes(new(big.Int).Set(tx.ExpirationTimeSeconds)))
		copy(data[96:128], math.U256Bytes(new(big.Int).Set(tx.GasPrice)))
		copy(data[128+12:160], tx.SignerAddress.Bytes())
		copy(data[160:192], crypto.Keccak256(tx.Data))
		structHash = crypto.Keccak256(data)
	}

	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash), nil
}
