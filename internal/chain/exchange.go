package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

type orderV2 struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
}

type orderV3 struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
	MakerFeeAssetData     []byte
	TakerFeeAssetData     []byte
}

type orderAmounts struct {
	makerAssetAmount *big.Int
	takerAssetAmount *big.Int
	makerFee         *big.Int
	takerFee         *big.Int
	expiration       *big.Int
	salt             *big.Int
}

func parseOrderAmounts(o *model.MakerOrder) (*orderAmounts, error) {
	out := &orderAmounts{}
	fields := []struct {
		name     string
		raw      string
		optional bool
		dst      **big.Int
	}{
		{"makerAssetAmount", o.MakerAssetAmount, false, &out.makerAssetAmount},
		{"takerAssetAmount", o.TakerAssetAmount, false, &out.takerAssetAmount},
		{"makerFee", o.MakerFee, true, &out.makerFee},
		{"takerFee", o.TakerFee, true, &out.takerFee},
		{"expirationTimeSeconds", o.ExpirationTimeSeconds, false, &out.expiration},
		{"salt", o.Salt, false, &out.salt},
	}
	for _, f := range fields {
		raw := f.raw
		if raw == "" && f.optional {
			raw = "0"
		}
		n, err := model.ParseUint256(raw)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", f.name, err)
		}
		*f.dst = n
	}
	if out.takerAssetAmount.Sign() <= 0 {
		return nil, fmt.Errorf("order takerAssetAmount must be positive")
	}
	return out, nil
}

// EncodeFillOrKillOrder returns the calldata filling the whole order, together with the
// taker asset amount it fills.
func EncodeFillOrKillOrder(protocolVersion int, o *model.MakerOrder) ([]byte, *big.Int, error) {
	amounts, err := parseOrderAmounts(o)
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	switch protocolVersion {
	case 2:
		data, err = exchangeV2ABI.Pack("fillOrKillOrder", orderV2{
			MakerAddress:          o.MakerAddress,
			TakerAddress:          o.TakerAddress,
			FeeRecipientAddress:   o.FeeRecipientAddress,
			SenderAddress:         o.SenderAddress,
			MakerAssetAmount:      amounts.makerAssetAmount,
			TakerAssetAmount:      amounts.takerAssetAmount,
			MakerFee:              amounts.makerFee,
			TakerFee:              amounts.takerFee,
			ExpirationTimeSeconds: amounts.expiration,
			Salt:                  amounts.salt,
			MakerAssetData:        o.MakerAssetData,
			TakerAssetData:        o.TakerAssetData,
		}, amounts.takerAssetAmount, []byte(o.Signature))
	case 3:
		data, err = exchangeV3ABI.Pack("fillOrKillOrder", orderV3{
			MakerAddress:          o.MakerAddress,
			TakerAddress:          o.TakerAddress,
			FeeRecipientAddress:   o.FeeRecipientAddress,
			SenderAddress:         o.SenderAddress,
			MakerAssetAmount:      amounts.makerAssetAmount,
			TakerAssetAmount:      amounts.takerAssetAmount,
			MakerFee:              amounts.makerFee,
			TakerFee:              amounts.takerFee,
			ExpirationTimeSeconds: amounts.expiration,
			Salt:                  amounts.salt,
			MakerAssetData:        o.MakerAssetData,
			TakerAssetData:        o.TakerAssetData,
			MakerFeeAssetData:     nonNil(o.MakerFeeAssetData),
			TakerFeeAssetData:     nonNil(o.TakerFeeAssetData),
		}, amounts.takerAssetAmount, []byte(o.Signature))
	default:
		return nil, nil, fmt.Errorf("unsupported protocol version %d", protocolVersion)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pack fillOrKillOrder: %w", err)
	}
	return data, amounts.takerAssetAmount, nil
}

// DecodeFillOrKillOrderTaker returns the takerAssetFillAmount encoded in data.
func DecodeFillOrKillOrderTaker(protocolVersion int, data []byte) (*big.Int, error) {
	a := exchangeV3ABI
	if protocolVersion == 2 {
		a = exchangeV2ABI
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	method, err := a.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected takerAssetFillAmount type %T", args[1])
	}
	return amount, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
