package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// MaxAllowance is the value granted by an unlimited approval.
var MaxAllowance = new(big.Int).Set(math.MaxBig256)

// AllowanceThreshold is half of MaxAllowance. An allowance above it is treated as an
// unlimited approval that has been partially spent.
var AllowanceThreshold = new(big.Int).Rsh(math.MaxBig256, 1)

// SufficientAllowance applies the unlimited-approval threshold.
func SufficientAllowance(allowance *big.Int) bool {
	return allowance != nil && allowance.Cmp(AllowanceThreshold) > 0
}

// Allowance returns the ERC20 allowance owner granted to spender.
func Allowance(ctx context.Context, b Backend, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}

	result, err := b.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call on %s: %w", token.Hex(), err)
	}

	var allowance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&allowance, "allowance", result); err != nil {
		return nil, fmt.Errorf("decode allowance from %s: %w", token.Hex(), err)
	}
	return allowance, nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// Decimals reads the token's decimals().
func Decimals(ctx context.Context, b Backend, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	result, err := b.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals call on %s: %w", token.Hex(), err)
	}
	var decimals uint8
	if err := erc20ABI.UnpackIntoInterface(&decimals, "decimals", result); err != nil {
		return 0, fmt.Errorf("decode decimals from %s: %w", token.Hex(), err)
	}
	return decimals, nil
}
