package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

// Provider is the taker's signing capability. It is chosen once per session and every
// signing or transaction-sending step goes through it.
type Provider interface {
	Kind() model.ProviderKind
	Address() common.Address
	// SignFillTransaction returns a 66-byte 0x signature over hash, the canonical hash of tx.
	SignFillTransaction(ctx context.Context, tx *model.FillTransaction, hash common.Hash) ([]byte, error)
	// SendTransaction broadcasts a plain contract call from the taker and returns its hash.
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}
