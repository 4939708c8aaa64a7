package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

// TypedData renders tx as an EIP-712 document, the form wallets display and
// eth_signTypedData_v4 expects.
func TypedData(tx *model.FillTransaction) (apitypes.TypedData, error) {
	if tx == nil || tx.Salt == nil {
		return apitypes.TypedData{}, fmt.Errorf("transaction is required")
	}

	domain := apitypes.TypedDataDomain{
		Name:              EIP712DomainName,
		VerifyingContract: tx.VerifyingContract.Hex(),
	}
	domainFields := []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	}
	var txFields []apitypes.Type
	message := apitypes.TypedDataMessage{
		"salt":          (*math.HexOrDecimal256)(new(big.Int).Set(tx.Salt)),
		"signerAddress": tx.SignerAddress.Hex(),
		"data":          hexutil.Encode(tx.Data),
	}

	switch tx.ProtocolVersion {
	case 2:
		domain.Version = DomainVersionV2
		txFields = []apitypes.Type{
			{Name: "salt", Type: "uint256"},
			{Name: "signerAddress", Type: "address"},
			{Name: "data", Type: "bytes"},
		}
	case 3:
		if tx.ChainID == nil || tx.ExpirationTimeSeconds == nil || tx.GasPrice == nil {
			return apitypes.TypedData{}, fmt.Errorf("chain id, expiration and gas price are required for protocol v3")
		}
		domain.Version = DomainVersionV3
		domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(tx.ChainID))
		domainFields = append(domainFields, apitypes.Type{Name: "chainId", Type: "uint256"})
		txFields = []apitypes.Type{
			{Name: "salt", Type: "uint256"},
			{Name: "expirationTimeSeconds", Type: "uint256"},
			{Name: "gasPrice", Type: "uint256"},
			{Name: "signerAddress", Type: "address"},
			{Name: "data", Type: "bytes"},
		}
		message["expirationTimeSeconds"] = (*math.HexOrDecimal256)(new(big.Int).Set(tx.ExpirationTimeSeconds))
		message["gasPrice"] = (*math.HexOrDecimal256)(new(big.Int).Set(tx.GasPrice))
	default:
		return apitypes.TypedData{}, fmt.Errorf("unsupported protocol version %d", tx.ProtocolVersion)
	}
	domainFields = append(domainFields, apitypes.Type{Name: "verifyingContract", Type: "address"})

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":      domainFields,
			"ZeroExTransaction": txFields,
		},
		PrimaryType: "ZeroExTransaction",
		Domain:      domain,
		Message:     message,
	}, nil
}

// TypedDataHash hashes tx through apitypes. It must agree with TransactionHash.
func TypedDataHash(tx *model.FillTransaction) ([]byte, error) {
	typedData, err := TypedData(tx)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}
	return hash, nil
}
